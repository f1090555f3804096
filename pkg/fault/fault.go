// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fault defines the error taxonomy shared by the pipeline.
//
// Every error leaving a stage is classified into one Kind; the
// coordinator uses the kind to decide between recovery and propagation,
// and the stream writer uses it to hint recoverability to the client.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the classification of an error.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindNetwork    Kind = "network"
	KindTransient  Kind = "transient"
	KindTimeout    Kind = "timeout"
	KindAbort      Kind = "abort"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it for Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Auth reports a missing or rejected credential. envVar names the
// environment variable the user has to fix.
func Auth(envVar string) *Error {
	return New(KindAuth, "missing or invalid credential (set %s)", envVar)
}

// RateLimited reports an upstream 429 with an optional retry hint.
func RateLimited(source string, retryAfter time.Duration) *Error {
	e := New(KindRateLimit, "%s rate limited", source)
	if retryAfter > 0 {
		e.Message = fmt.Sprintf("%s rate limited, retry after %s", source, retryAfter)
	}
	return e
}

// Aborted is the terminal error for a user-initiated stop.
func Aborted(reason string) *Error {
	return New(KindAbort, "%s", reason)
}

// Classify maps an arbitrary error to its Kind. Context cancellation is
// an abort, a context deadline is a timeout, anything unrecognized is
// internal.
func Classify(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindAbort
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Recoverable reports whether the coordinator may retry or continue with
// a partial result after this error.
func Recoverable(err error) bool {
	switch Classify(err) {
	case KindRateLimit, KindNetwork, KindTransient, KindTimeout, KindValidation:
		return true
	default:
		return false
	}
}

// IsAbort reports whether the error is a user stop.
func IsAbort(err error) bool { return Classify(err) == KindAbort }

// FromStatus classifies an HTTP response status.
func FromStatus(status int, source string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(KindAuth, "%s rejected credentials (status %d)", source, status)
	case status == http.StatusTooManyRequests:
		return RateLimited(source, 0)
	case status >= 500:
		return New(KindTransient, "%s returned status %d", source, status)
	default:
		return New(KindNetwork, "%s returned status %d", source, status)
	}
}

// Scrub returns a user-safe message for terminal emission. Internal
// errors are reduced to a generic message so provider payloads never
// leak to the stream.
func Scrub(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindInternal {
		return fe.Message
	}
	return "internal error"
}
