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

// Package coordinator drives the research pipeline for one session:
// plan, approve, search, analyze, write, review, iterate, finalise.
// It is the only component that knows the stage order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/citation"
	"github.com/kadirpekel/deepquest/pkg/compression"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/session"
	"github.com/kadirpekel/deepquest/pkg/sources"
	"github.com/kadirpekel/deepquest/pkg/stage"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

// Config is the per-run pipeline configuration.
type Config struct {
	MaxSearchRounds          int
	MaxIterations            int
	MinPapersRequired        int
	EnableMultiSource        bool
	EnableCitationValidation bool
	EnableContextCompression bool
	CitationStyle            string
	MinOverallScore          float64
	SessionTimeout           time.Duration
	CheckpointTimeout        time.Duration

	// Enricher, when set, lets the analysis stage pull full text for
	// open-access papers.
	Enricher *sources.FullTextEnricher
}

func (c *Config) setDefaults() {
	if c.MaxSearchRounds <= 0 {
		c.MaxSearchRounds = 5
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.MinPapersRequired <= 0 {
		c.MinPapersRequired = 5
	}
	if c.MinOverallScore <= 0 {
		c.MinOverallScore = 70
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Minute
	}
	if c.CheckpointTimeout <= 0 {
		c.CheckpointTimeout = 5 * time.Minute
	}
}

// Coordinator runs sessions against the shared services.
type Coordinator struct {
	sessions   *session.Manager
	provider   llm.Provider
	search     stage.SearchService
	compressor *compression.Service
	cfg        Config
}

// New assembles a coordinator. The compressor may be nil when context
// compression is disabled.
func New(sessions *session.Manager, provider llm.Provider, search stage.SearchService, compressor *compression.Service, cfg Config) *Coordinator {
	cfg.setDefaults()
	return &Coordinator{
		sessions:   sessions,
		provider:   provider,
		search:     search,
		compressor: compressor,
		cfg:        cfg,
	}
}

// Run drives one session to a terminal state, closing its event
// writer when done. It blocks; callers run it in its own goroutine.
func (c *Coordinator) Run(ctx context.Context, s *session.Session) {
	defer s.Writer.Close()

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.SessionTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.Aborted():
			cancel()
		case <-runCtx.Done():
			// When the deadline fires there may be no consumer left on
			// the stream, and Emit blocks until one accepts the frame.
			// Closing the writer turns those emits into drops so the
			// pipeline can unwind to a terminal state.
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				s.Writer.Close()
			}
		}
	}()

	em := stage.NewEmitter(s.Writer)
	err := c.run(runCtx, s, em)

	switch {
	case s.IsAborted() || fault.IsAbort(err):
		em.Emit(stream.Frame{Type: stream.FrameAgentPaused, Data: stream.Paused{Reason: "User stopped"}})
		c.sessions.Abort(s.ID)
	case err != nil:
		slog.Error("session failed", "session", s.ID, "error", err)
		em.Emit(stream.Frame{Type: stream.FrameSessionError, Data: stream.SessionError{
			Error:       fault.Scrub(err),
			Recoverable: fault.Recoverable(err),
		}})
		c.sessions.SetError(s.ID, fault.Scrub(err))
	default:
		em.Emit(stream.Frame{Type: stream.FrameSessionComplete, Data: stream.SessionComplete{Timestamp: time.Now()}})
		c.sessions.Complete(s.ID)
	}
}

func (c *Coordinator) run(ctx context.Context, s *session.Session, em *stage.Emitter) error {
	if err := c.sessions.Start(s.ID); err != nil {
		return err
	}
	mem := s.Memory

	// Planning, with one corrective retry on a structurally bad plan.
	planner := &stage.Planner{Provider: c.provider}
	plan, cardID, err := planner.Run(ctx, s.Query, "", mem, em)
	if err != nil && fault.Classify(err) == fault.KindValidation && ctx.Err() == nil {
		em.Log("Plan failed validation, retrying once", "🔁")
		plan, cardID, err = planner.Run(ctx, s.Query, "The previous plan was structurally invalid: "+err.Error()+". Produce a complete plan.", mem, em)
	}
	if err != nil {
		return err
	}

	// Plan approval checkpoint.
	res, err := c.awaitCheckpoint(s, em, checkpoint.New(
		checkpoint.PlanApproval,
		"Approve research plan",
		fmt.Sprintf("%d sub-questions, %d search strategies", len(plan.SubQuestions), len(plan.SearchStrategies)),
		cardID,
		checkpoint.DefaultOptions(checkpoint.PlanApproval),
	))
	if err != nil {
		return err
	}
	if res.Action == checkpoint.ActionEdit {
		// Re-run the planner once with the feedback folded in.
		plan, _, err = planner.Run(ctx, s.Query, res.Data, mem, em)
		if err != nil {
			return err
		}
	}

	// Search and analyze rounds.
	searcher := &stage.Searcher{Service: c.search, MaxRounds: c.cfg.MaxSearchRounds}
	if _, err := searcher.Run(ctx, s.ID, plan, mem, em); err != nil {
		return err
	}
	if total := len(mem.Papers()); total < c.cfg.MinPapersRequired {
		em.Notify(fmt.Sprintf("Only %d papers found (wanted at least %d); continuing with a thin corpus", total, c.cfg.MinPapersRequired), "warning")
	}

	analyzer := &stage.Analyzer{Provider: c.provider, Enricher: c.cfg.Enricher}
	if err := analyzer.Run(ctx, plan, mem, em); err != nil {
		if !fault.Recoverable(err) || ctx.Err() != nil {
			return err
		}
		em.Notify("Analysis failed, retrying once: "+fault.Scrub(err), "warning")
		if err := analyzer.Run(ctx, plan, mem, em); err != nil {
			return err
		}
	}

	// Write/review loop.
	writer := &stage.Writer{Provider: c.provider}
	critic := &stage.Critic{Provider: c.provider, Gate: stage.Gate{MinOverallScore: c.cfg.MinOverallScore}}
	validator := &stage.Validator{}

	feedback := ""
	var content string
	for {
		bundle, berr := c.bundle(ctx, s.Query, mem)
		if berr != nil {
			return berr
		}

		content, err = writer.Run(ctx, plan, bundle, feedback, mem, em)
		if err != nil {
			return err
		}

		metrics, analysis, decision, err := critic.Run(ctx, plan, content, mem, em)
		if err != nil {
			return err
		}
		version := mem.SaveReportVersion(content, metrics, analysis)
		em.Emit(stream.Frame{Type: stream.FrameDocument, Data: stream.DocumentCard{
			ID:      uuid.NewString(),
			Title:   plan.MainQuestion,
			Content: content,
			Version: version,
		}})
		em.Emit(stream.Frame{Type: stream.FrameQuality, Data: stream.QualityCard{
			ID:       uuid.NewString(),
			Metrics:  metrics,
			Analysis: analysis,
			Decision: string(decision),
		}})

		if c.cfg.EnableCitationValidation {
			validator.Run(content, mem, em)
		}

		switch decision {
		case stage.DecisionPass:
			final, err := c.reviewAndFinalise(ctx, s, em, plan, writer, mem, content)
			if err != nil {
				return err
			}
			content = final
			return nil

		case stage.DecisionIterate:
			if mem.Iteration() < c.cfg.MaxIterations {
				feedback = iterationFeedback(analysis)
				mem.IncrementIteration()
				em.Log(fmt.Sprintf("Quality below gate, starting iteration %d of %d", mem.Iteration(), c.cfg.MaxIterations), "🔁")
				continue
			}
			fallthrough

		case stage.DecisionFail:
			res, err := c.awaitCheckpoint(s, em, checkpoint.New(
				checkpoint.QualityDecision,
				"Quality gate not met",
				fmt.Sprintf("Overall score %.0f after %d iterations", metrics.OverallScore, mem.Iteration()),
				"",
				checkpoint.DefaultOptions(checkpoint.QualityDecision),
			))
			if err != nil {
				return err
			}
			if res.Action == checkpoint.ActionIterate {
				feedback = iterationFeedback(analysis)
				if res.Data != "" {
					feedback = res.Data + "\n" + feedback
				}
				mem.IncrementIteration()
				continue
			}
			// Accepted as is.
			return c.finalise(s, em, plan, mem, content)
		}
	}
}

// reviewAndFinalise runs the report_review checkpoint on a passing
// draft. An edit re-runs the writing stage once with the feedback.
func (c *Coordinator) reviewAndFinalise(ctx context.Context, s *session.Session, em *stage.Emitter, plan *memory.ResearchPlan, writer *stage.Writer, mem *memory.ResearchMemory, content string) (string, error) {
	res, err := c.awaitCheckpoint(s, em, checkpoint.New(
		checkpoint.ReportReview,
		"Review final report",
		"The report passed the quality gate",
		"",
		checkpoint.DefaultOptions(checkpoint.ReportReview),
	))
	if err != nil {
		return content, err
	}

	if res.Action == checkpoint.ActionEdit && res.Data != "" {
		bundle, berr := c.bundle(ctx, s.Query, mem)
		if berr != nil {
			return content, berr
		}
		content, err = writer.Run(ctx, plan, bundle, res.Data, mem, em)
		if err != nil {
			return content, err
		}
		version := mem.SaveReportVersion(content, nil, nil)
		em.Emit(stream.Frame{Type: stream.FrameDocument, Data: stream.DocumentCard{
			ID:      uuid.NewString(),
			Title:   plan.MainQuestion,
			Content: content,
			Version: version,
		}})
	}
	return content, c.finalise(s, em, plan, mem, content)
}

// finalise appends the formatted reference list and emits the final
// document card.
func (c *Coordinator) finalise(s *session.Session, em *stage.Emitter, plan *memory.ResearchPlan, mem *memory.ResearchMemory, content string) error {
	style, err := citation.ParseStyle(c.cfg.CitationStyle)
	if err != nil {
		style = citation.StyleAPA
	}

	var data []citation.Data
	for _, cite := range mem.Citations() {
		if p, ok := mem.GetPaper(cite.PaperID); ok {
			data = append(data, citation.Data{ID: cite.ID, Paper: p})
		}
	}
	if len(data) > 0 {
		formatter, err := citation.Format(style, data)
		if err == nil {
			content += "\n\n## References\n\n" + formatter.List() + "\n"
		}
	}

	final := mem.SaveReportVersion(content, nil, nil)
	em.Emit(stream.Frame{Type: stream.FrameDocument, Data: stream.DocumentCard{
		ID:      uuid.NewString(),
		Title:   plan.MainQuestion,
		Content: content,
		Version: final,
	}})
	em.Log("Research complete", "✅")
	return nil
}

// bundle compresses memory's papers when compression is enabled.
func (c *Coordinator) bundle(ctx context.Context, query string, mem *memory.ResearchMemory) (*compression.Bundle, error) {
	if !c.cfg.EnableContextCompression || c.compressor == nil {
		return nil, nil
	}
	b, err := c.compressor.Compress(ctx, query, mem.Papers())
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("context compression failed, writing from raw memory", "error", err)
		return nil, nil
	}
	return b, nil
}

// awaitCheckpoint registers the checkpoint, emits its frame, and
// blocks for a resolution. A timeout is an implicit approve.
func (c *Coordinator) awaitCheckpoint(s *session.Session, em *stage.Emitter, cp *checkpoint.Checkpoint) (checkpoint.Resolution, error) {
	if err := c.sessions.SetCheckpoint(s.ID, cp); err != nil {
		return checkpoint.Resolution{}, err
	}
	em.Emit(stream.CheckpointFrame(cp))

	res, err := c.sessions.WaitForCheckpoint(s.ID, c.cfg.CheckpointTimeout)
	if err != nil {
		if fault.Classify(err) == fault.KindTimeout {
			c.sessions.ClearCheckpoint(s.ID)
			em.Log(fmt.Sprintf("No response to %q within %s, proceeding with implicit approve", cp.Title, c.cfg.CheckpointTimeout), "⏱")
			return checkpoint.Resolution{Action: checkpoint.ActionApprove}, nil
		}
		return checkpoint.Resolution{}, err
	}
	c.sessions.ClearCheckpoint(s.ID)
	return res, nil
}

func iterationFeedback(analysis *memory.CriticAnalysis) string {
	var parts []string
	if len(analysis.ImprovementSuggestions) > 0 {
		parts = append(parts, "Improvements requested:\n- "+strings.Join(analysis.ImprovementSuggestions, "\n- "))
	}
	if len(analysis.GapsIdentified) > 0 {
		parts = append(parts, "Gaps to address:\n- "+strings.Join(analysis.GapsIdentified, "\n- "))
	}
	return strings.Join(parts, "\n")
}
