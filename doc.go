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

// Package deepquest is a deep research orchestrator for scholarly
// literature.
//
// A research session moves through a fixed pipeline: an LLM plans the
// research, a federated layer searches bibliographic catalogs
// (OpenAlex, Semantic Scholar, arXiv, PubMed, CORE), an analyzer
// distills insights, a writer streams a cited report, and a critic
// scores it against a quality gate, iterating until the gate passes or
// the iteration budget runs out. Human checkpoints gate the plan, the
// quality escalation, and the final report; an unanswered checkpoint
// is treated as approval.
//
// # Quick Start
//
// Install:
//
//	go install github.com/kadirpekel/deepquest/cmd/deepquest@latest
//
// Run a session in the terminal:
//
//	export OPENROUTER_API_KEY=sk-...
//	deepquest research "How does sleep affect memory consolidation?" --out report.md
//
// Or serve the streaming HTTP API:
//
//	deepquest serve --config config.yaml
//
// POST /api/research streams newline-delimited JSON frames (agent
// events, report text deltas, checkpoint cards); POST /api/checkpoint
// resolves a pending checkpoint; POST /api/sessions/{id}/abort stops a
// session.
//
// # Packages
//
//   - pkg/coordinator: the pipeline state machine
//   - pkg/stage: planner, searcher, analyzer, writer, critic, validator
//   - pkg/federation, pkg/sources, pkg/cache: federated paper retrieval
//   - pkg/memory, pkg/compression, pkg/citation: session knowledge
//   - pkg/session, pkg/checkpoint, pkg/stream: lifecycle and events
//   - pkg/server, cmd/deepquest: HTTP and CLI entry points
package deepquest
