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

package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAuth, Classify(Auth("OPENROUTER_API_KEY")))
	assert.Equal(t, KindRateLimit, Classify(RateLimited("openalex", 0)))
	assert.Equal(t, KindAbort, Classify(Aborted("user stop")))
	assert.Equal(t, KindAbort, Classify(context.Canceled))
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, Classify(errors.New("mystery")))

	// Classification survives wrapping in both directions.
	wrapped := fmt.Errorf("searching: %w", New(KindNetwork, "connection reset"))
	assert.Equal(t, KindNetwork, Classify(wrapped))
	assert.Equal(t, KindTransient, Classify(Wrap(KindTransient, errors.New("io"), "retrying")))
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, KindAuth, FromStatus(http.StatusUnauthorized, "core").Kind)
	assert.Equal(t, KindAuth, FromStatus(http.StatusForbidden, "core").Kind)
	assert.Equal(t, KindRateLimit, FromStatus(http.StatusTooManyRequests, "pubmed").Kind)
	assert.Equal(t, KindTransient, FromStatus(http.StatusBadGateway, "arxiv").Kind)
	assert.Equal(t, KindNetwork, FromStatus(http.StatusNotFound, "openalex").Kind)
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(RateLimited("s2", 0)))
	assert.True(t, Recoverable(New(KindTimeout, "deadline")))
	assert.False(t, Recoverable(Auth("CORE_API_KEY")))
	assert.False(t, Recoverable(Aborted("stop")))
	assert.False(t, Recoverable(errors.New("mystery")))
}

func TestScrubHidesInternalDetail(t *testing.T) {
	internal := Wrap(KindInternal, errors.New("pq: secret dsn"), "saving report")
	assert.Equal(t, "internal error", Scrub(internal))
	assert.Equal(t, "internal error", Scrub(errors.New("raw provider payload")))

	visible := New(KindRateLimit, "openalex rate limited")
	assert.Equal(t, "openalex rate limited", Scrub(visible))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindNetwork, cause, "fetching")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "fetching")
}
