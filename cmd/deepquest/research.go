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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/config"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/report"
	"github.com/kadirpekel/deepquest/pkg/session"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

// ResearchCmd runs one session end to end in the terminal, approving
// checkpoints automatically.
type ResearchCmd struct {
	Query string `arg:"" help:"Research question."`
	Out   string `help:"Write the final report as Markdown to this file." type:"path"`
	Docx  string `help:"Write the final report as a Word document to this file." type:"path"`
	Quiet bool   `short:"q" help:"Suppress streamed report text; print only progress."`
}

func (c *ResearchCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	app := buildApp(cfg)
	defer app.Close()

	sess, err := app.sessions.Create("", c.Query)
	if err != nil {
		return err
	}

	go autoApprove(app.sessions, sess)
	go app.coord.Run(context.Background(), sess)

	final := c.consume(sess)

	switch sess.State() {
	case session.StateError:
		return fault.New(fault.KindInternal, "research failed: %s", sess.Err())
	case session.StateAborted:
		return fault.Aborted("research aborted")
	}

	if final == "" {
		return fault.New(fault.KindInternal, "pipeline finished without a report")
	}
	if c.Out != "" {
		if err := report.WriteMarkdownFile(c.Out, final, report.MetaFrom(sess.Memory)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", c.Out)
	}
	if c.Docx != "" {
		if err := report.WriteDocxFile(c.Docx, c.Query, final); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", c.Docx)
	}
	if c.Out == "" && c.Docx == "" && c.Quiet {
		fmt.Println(final)
	}
	return nil
}

// consume drains the session's frames, echoing progress to the
// terminal, and returns the last full document seen.
func (c *ResearchCmd) consume(sess *session.Session) string {
	final := ""
	for {
		select {
		case f := <-sess.Writer.Frames():
			final = c.render(f, final)
		case <-sess.Writer.Done():
			for {
				select {
				case f := <-sess.Writer.Frames():
					final = c.render(f, final)
				default:
					return final
				}
			}
		}
	}
}

func (c *ResearchCmd) render(f stream.Frame, final string) string {
	switch f.Type {
	case stream.FrameTextDelta:
		if !c.Quiet {
			fmt.Print(f.Data.(stream.TextDelta).Delta)
		}
	case stream.FrameLogLine:
		line := f.Data.(stream.LogLine)
		fmt.Fprintf(os.Stderr, "%s %s\n", line.Icon, line.Text)
	case stream.FrameNotification:
		n := f.Data.(stream.Notification)
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	case stream.FrameDocument:
		final = f.Data.(stream.DocumentCard).Content
	case stream.FrameSessionError:
		e := f.Data.(stream.SessionError)
		fmt.Fprintf(os.Stderr, "error: %s\n", e.Error)
	}
	return final
}

// autoApprove resolves checkpoints as they appear so the session never
// waits on a human.
func autoApprove(m *session.Manager, sess *session.Session) {
	for {
		select {
		case <-sess.Writer.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
		if cp := sess.Checkpoint(); cp != nil {
			fmt.Fprintf(os.Stderr, "auto-approving checkpoint: %s\n", cp.Title)
			_ = m.ResolveCheckpoint(sess.ID, cp.ID, checkpoint.Resolution{Action: checkpoint.ActionApprove})
		}
	}
}
