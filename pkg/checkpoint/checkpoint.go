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

// Package checkpoint defines the pausable decision points where the
// pipeline suspends and awaits client input.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates what decision the checkpoint asks for.
type Type string

const (
	PlanApproval    Type = "plan_approval"
	QualityDecision Type = "quality_decision"
	ReportReview    Type = "report_review"
)

// Action is the client's decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionEdit    Action = "edit"
	ActionIterate Action = "iterate"
)

// Option is one selectable choice presented to the client.
type Option struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Variant string `json:"variant,omitempty"`
	Action  Action `json:"action"`
}

// Resolution is the filled decision for a pending checkpoint.
type Resolution struct {
	Action Action `json:"action"`
	Data   string `json:"data,omitempty"`
}

// Checkpoint is a decision point. Once resolved it is immutable.
type Checkpoint struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CardID      string   `json:"card_id,omitempty"`
	Options     []Option `json:"options"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Action     Action     `json:"action,omitempty"`
	Data       string     `json:"data,omitempty"`
}

// New creates an unresolved checkpoint linked to an emitted card.
func New(kind Type, title, description, cardID string, options []Option) *Checkpoint {
	return &Checkpoint{
		ID:          uuid.NewString(),
		Type:        kind,
		Title:       title,
		Description: description,
		CardID:      cardID,
		Options:     options,
		CreatedAt:   time.Now(),
	}
}

// Resolve stamps the checkpoint with its outcome.
func (c *Checkpoint) Resolve(res Resolution) {
	now := time.Now()
	c.ResolvedAt = &now
	c.Action = res.Action
	c.Data = res.Data
}

// Resolved reports whether the checkpoint has been decided.
func (c *Checkpoint) Resolved() bool { return c.ResolvedAt != nil }

// DefaultOptions returns the standard option set for a checkpoint type.
func DefaultOptions(kind Type) []Option {
	switch kind {
	case PlanApproval:
		return []Option{
			{ID: "approve", Label: "Approve plan", Variant: "primary", Action: ActionApprove},
			{ID: "edit", Label: "Edit plan", Variant: "secondary", Action: ActionEdit},
		}
	case QualityDecision:
		return []Option{
			{ID: "accept", Label: "Accept as is", Variant: "primary", Action: ActionApprove},
			{ID: "iterate", Label: "Improve further", Variant: "secondary", Action: ActionIterate},
		}
	case ReportReview:
		return []Option{
			{ID: "approve", Label: "Accept report", Variant: "primary", Action: ActionApprove},
			{ID: "edit", Label: "Request changes", Variant: "secondary", Action: ActionEdit},
		}
	default:
		return nil
	}
}
