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

// Package stream defines the typed event frames a session emits and
// the single-writer channel that carries them to the transport.
// Transient frames keep the connection alive but must never land in a
// persisted message record.
package stream

import (
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// FrameType discriminates the wire payload.
type FrameType string

const (
	FrameNotification       FrameType = "data-notification"
	FrameAgentEvent         FrameType = "data-agent-event"
	FrameAgentEventUpdate   FrameType = "data-agent-event-update"
	FrameAgentEventComplete FrameType = "data-agent-event-complete"
	FramePlan               FrameType = "data-plan"
	FramePaperList          FrameType = "data-paper-list"
	FrameQuality            FrameType = "data-quality"
	FrameDocument           FrameType = "data-document"
	FrameTextDelta          FrameType = "text-delta"
	FrameCheckpoint         FrameType = "data-checkpoint"
	FrameLogLine            FrameType = "data-log-line"
	FrameAgentPaused        FrameType = "data-agent-paused"
	FrameSessionComplete    FrameType = "data-session-complete"
	FrameSessionError       FrameType = "data-session-error"
)

// Transient reports whether frames of this type are excluded from the
// persisted message history.
func (t FrameType) Transient() bool { return t == FrameNotification }

// Frame is one event on the wire.
type Frame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Stage names the pipeline phase an agent event belongs to.
type Stage string

const (
	StagePlanning   Stage = "planning"
	StageSearching  Stage = "searching"
	StageAnalyzing  Stage = "analyzing"
	StageWriting    Stage = "writing"
	StageReviewing  Stage = "reviewing"
	StageValidating Stage = "validating"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Status is the lifecycle state of an agent event.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// AgentEvent is the unified timeline unit. Updates reuse the id.
type AgentEvent struct {
	ID              string         `json:"id"`
	Stage           Stage          `json:"stage"`
	Status          Status         `json:"status"`
	TitleEn         string         `json:"titleEn"`
	TitleZh         string         `json:"titleZh,omitempty"`
	Iteration       int            `json:"iteration,omitempty"`
	TotalIterations int            `json:"totalIterations,omitempty"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// AgentEventComplete closes an agent event under its original id.
type AgentEventComplete struct {
	ID       string         `json:"id"`
	Status   Status         `json:"status"`
	Duration time.Duration  `json:"duration"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// NewAgentEvent starts a timeline entry with a fresh stable id.
func NewAgentEvent(stage Stage, titleEn, titleZh string) AgentEvent {
	return AgentEvent{
		ID:      uuid.NewString(),
		Stage:   stage,
		Status:  StatusRunning,
		TitleEn: titleEn,
		TitleZh: titleZh,
	}
}

// Notification is a transient, non-persisted message.
type Notification struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

// PlanCard carries the research plan, keyed by card id.
type PlanCard struct {
	ID   string               `json:"id"`
	Plan *memory.ResearchPlan `json:"plan"`
}

// PaperListCard carries a batch of found papers, keyed by card id.
type PaperListCard struct {
	ID     string         `json:"id"`
	Round  int            `json:"round,omitempty"`
	Papers []*paper.Paper `json:"papers"`
}

// QualityCard carries the critic's verdict, keyed by card id.
type QualityCard struct {
	ID       string                 `json:"id"`
	Metrics  *memory.QualityMetrics `json:"metrics,omitempty"`
	Analysis *memory.CriticAnalysis `json:"analysis,omitempty"`
	Decision string                 `json:"decision,omitempty"`
}

// DocumentCard carries a report version, keyed by card id.
type DocumentCard struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Version int    `json:"version,omitempty"`
}

// TextDelta is one chunk of the writer's streamed output; the id
// groups the full delta stream.
type TextDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

// LogLine is a user-visible progress line.
type LogLine struct {
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
}

// Paused reports a user-initiated stop.
type Paused struct {
	Reason string `json:"reason"`
}

// SessionComplete is the terminal success frame.
type SessionComplete struct {
	Timestamp time.Time `json:"timestamp"`
}

// SessionError is the terminal failure frame.
type SessionError struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// Heartbeat is the transient keep-alive frame the transport injects
// while the pipeline is busy.
func Heartbeat() Frame {
	return Frame{Type: FrameNotification, Data: Notification{Message: "working", Level: "info"}}
}

// CheckpointFrame wraps a checkpoint for the wire.
func CheckpointFrame(cp *checkpoint.Checkpoint) Frame {
	return Frame{Type: FrameCheckpoint, Data: cp}
}
