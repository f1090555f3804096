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
	"log/slog"

	"github.com/kadirpekel/deepquest/pkg/cache"
	"github.com/kadirpekel/deepquest/pkg/compression"
	"github.com/kadirpekel/deepquest/pkg/config"
	"github.com/kadirpekel/deepquest/pkg/coordinator"
	"github.com/kadirpekel/deepquest/pkg/federation"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/session"
	"github.com/kadirpekel/deepquest/pkg/sources"
)

// app wires the shared services behind both entry points.
type app struct {
	cfg      *config.Config
	sessions *session.Manager
	coord    *coordinator.Coordinator
}

func buildApp(cfg *config.Config) *app {
	provider := llm.NewOpenRouter(cfg.LLM)

	papers := cache.NewPaperCache(cache.PaperCacheConfig{
		MaxEntries:               cfg.Cache.PaperMaxEntries,
		TTL:                      cfg.Cache.PaperTTL,
		CleanupInterval:          cfg.Cache.CleanupInterval,
		PreferHigherAvailability: cfg.Cache.PreferHigherAvail,
	})
	queries := cache.NewQueryCache(cache.QueryCacheConfig{
		MaxEntries: cfg.Cache.QueryMaxEntries,
		GlobalTTL:  cfg.Cache.QueryGlobalTTL,
		SessionTTL: cfg.Cache.QuerySessionTTL,
	}, papers)

	clients := sources.FromConfig(&cfg.Sources)
	if len(clients) == 0 {
		// Keyless defaults so a bare install still searches something.
		slog.Info("no sources configured, defaulting to openalex and arxiv")
		clients = []sources.Client{
			sources.NewOpenAlex(cfg.Sources.OpenAlex.BaseURL, cfg.Sources.OpenAlex.Email, cfg.Sources.Contact, cfg.Sources.OpenAlex.RateLimit),
			sources.NewArXiv(cfg.Sources.ArXiv.BaseURL, cfg.Sources.Contact, cfg.Sources.ArXiv.RateLimit),
		}
	}
	if !cfg.Coordinator.EnableMultiSource && len(clients) > 1 {
		clients = clients[:1]
		slog.Info("multi-source disabled, using primary source only", "source", clients[0].Name())
	}

	federator := federation.New(clients, queries, papers, federation.Config{
		Timeout:    cfg.Sources.SearchTimeout,
		MaxResults: cfg.Sources.MaxResults,
	})

	var compressor *compression.Service
	if cfg.Coordinator.EnableContextCompression {
		compressor = compression.NewService(provider, compression.Config{
			MaxTokensPerPaper: cfg.Cache.MaxTokensPerPaper,
			MaxTotalTokens:    cfg.Cache.MaxTotalTokens,
			MinAbstractChars:  cfg.Cache.CompressionMinAbstract,
			Parallelism:       cfg.Cache.CompressionParallelism,
		})
	}

	sessions := session.NewManager(session.Config{
		RemoveAfter:     cfg.Session.RemoveAfter,
		MaxLiveSessions: cfg.Session.MaxLiveSessions,
	})

	var enricher *sources.FullTextEnricher
	if cfg.Sources.EnableFullText {
		enricher = sources.NewFullTextEnricher(cfg.Sources.Contact)
	}

	coord := coordinator.New(sessions, provider, federator, compressor, coordinator.Config{
		MaxSearchRounds:          cfg.Coordinator.MaxSearchRounds,
		MaxIterations:            cfg.Coordinator.QualityGate.MaxIterations,
		MinPapersRequired:        cfg.Coordinator.MinPapersRequired,
		EnableMultiSource:        cfg.Coordinator.EnableMultiSource,
		EnableCitationValidation: cfg.Coordinator.EnableCitationValidation,
		EnableContextCompression: cfg.Coordinator.EnableContextCompression,
		CitationStyle:            cfg.Coordinator.CitationStyle,
		MinOverallScore:          cfg.Coordinator.QualityGate.MinOverallScore,
		SessionTimeout:           cfg.Coordinator.SessionTimeout,
		CheckpointTimeout:        cfg.Coordinator.CheckpointTimeout,
		Enricher:                 enricher,
	})

	return &app{cfg: cfg, sessions: sessions, coord: coord}
}

func (a *app) Close() {
	a.sessions.Close()
}
