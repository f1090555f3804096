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

// Package config holds the orchestrator configuration: YAML file plus
// environment overlay, with defaults and validation on every section.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/deepquest/pkg/fault"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Sources     SourcesConfig     `yaml:"sources"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Cache       CacheConfig       `yaml:"cache"`
	Session     SessionConfig     `yaml:"session"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LLMConfig configures the completion provider (OpenRouter).
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`
}

// SourceConfig configures a single bibliographic source client.
type SourceConfig struct {
	Enabled   bool    `yaml:"enabled"`
	APIKey    string  `yaml:"api_key"`
	Email     string  `yaml:"email"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	BaseURL   string  `yaml:"base_url"`
}

// SourcesConfig configures the federated retrieval layer.
type SourcesConfig struct {
	OpenAlex        SourceConfig  `yaml:"openalex"`
	SemanticScholar SourceConfig  `yaml:"semantic_scholar"`
	ArXiv           SourceConfig  `yaml:"arxiv"`
	PubMed          SourceConfig  `yaml:"pubmed"`
	CORE            SourceConfig  `yaml:"core"`
	Contact         string        `yaml:"contact"`
	SearchTimeout   time.Duration `yaml:"search_timeout"`
	MaxResults      int           `yaml:"max_results"`
	EnableFullText  bool          `yaml:"enable_full_text"`
}

// QualityGateConfig bounds the critic-driven iteration loop.
type QualityGateConfig struct {
	MinOverallScore float64 `yaml:"min_overall_score"`
	MaxIterations   int     `yaml:"max_iterations"`
}

// CoordinatorConfig is the per-run pipeline configuration.
type CoordinatorConfig struct {
	MaxSearchRounds          int               `yaml:"max_search_rounds"`
	MaxIterations            int               `yaml:"max_iterations"`
	MinPapersRequired        int               `yaml:"min_papers_required"`
	EnableMultiSource        bool              `yaml:"enable_multi_source"`
	EnableCitationValidation bool              `yaml:"enable_citation_validation"`
	EnableContextCompression bool              `yaml:"enable_context_compression"`
	CitationStyle            string            `yaml:"citation_style"`
	QualityGate              QualityGateConfig `yaml:"quality_gate"`
	SessionTimeout           time.Duration     `yaml:"session_timeout"`
	CheckpointTimeout        time.Duration     `yaml:"checkpoint_timeout"`
}

// CacheConfig configures the shared paper and query caches.
type CacheConfig struct {
	PaperMaxEntries         int           `yaml:"paper_max_entries"`
	PaperTTL                time.Duration `yaml:"paper_ttl"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	PreferHigherAvail       bool          `yaml:"prefer_higher_availability"`
	QueryMaxEntries         int           `yaml:"query_max_entries"`
	QueryGlobalTTL          time.Duration `yaml:"query_global_ttl"`
	QuerySessionTTL         time.Duration `yaml:"query_session_ttl"`
	MaxTokensPerPaper       int           `yaml:"max_tokens_per_paper"`
	MaxTotalTokens          int           `yaml:"max_total_tokens"`
	CompressionModel        string        `yaml:"compression_model"`
	CompressionParallelism  int           `yaml:"compression_parallelism"`
	CompressionMinAbstract  int           `yaml:"compression_min_abstract"`
}

// SessionConfig configures session lifecycle.
type SessionConfig struct {
	RemoveAfter     time.Duration `yaml:"remove_after"`
	MaxLiveSessions int           `yaml:"max_live_sessions"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// SetDefaults fills zero values with the documented defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = 15 * time.Second
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "anthropic/claude-sonnet-4"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}

	c.Sources.setDefaults()

	if c.Coordinator.MaxSearchRounds == 0 {
		c.Coordinator.MaxSearchRounds = 5
	}
	if c.Coordinator.MaxIterations == 0 {
		c.Coordinator.MaxIterations = 3
	}
	if c.Coordinator.MinPapersRequired == 0 {
		c.Coordinator.MinPapersRequired = 5
	}
	if c.Coordinator.CitationStyle == "" {
		c.Coordinator.CitationStyle = "apa"
	}
	if c.Coordinator.QualityGate.MinOverallScore == 0 {
		c.Coordinator.QualityGate.MinOverallScore = 70
	}
	if c.Coordinator.QualityGate.MaxIterations == 0 {
		c.Coordinator.QualityGate.MaxIterations = c.Coordinator.MaxIterations
	}
	if c.Coordinator.SessionTimeout == 0 {
		c.Coordinator.SessionTimeout = 10 * time.Minute
	}
	if c.Coordinator.CheckpointTimeout == 0 {
		c.Coordinator.CheckpointTimeout = 5 * time.Minute
	}

	if c.Cache.PaperMaxEntries == 0 {
		c.Cache.PaperMaxEntries = 2000
	}
	if c.Cache.PaperTTL == 0 {
		c.Cache.PaperTTL = time.Hour
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = 5 * time.Minute
	}
	if c.Cache.QueryMaxEntries == 0 {
		c.Cache.QueryMaxEntries = 200
	}
	if c.Cache.QueryGlobalTTL == 0 {
		c.Cache.QueryGlobalTTL = 5 * time.Minute
	}
	if c.Cache.QuerySessionTTL == 0 {
		c.Cache.QuerySessionTTL = 30 * time.Minute
	}
	if c.Cache.MaxTokensPerPaper == 0 {
		c.Cache.MaxTokensPerPaper = 200
	}
	if c.Cache.MaxTotalTokens == 0 {
		c.Cache.MaxTotalTokens = 8000
	}
	if c.Cache.CompressionParallelism == 0 {
		c.Cache.CompressionParallelism = 4
	}
	if c.Cache.CompressionMinAbstract == 0 {
		c.Cache.CompressionMinAbstract = 300
	}

	if c.Session.RemoveAfter == 0 {
		c.Session.RemoveAfter = 60 * time.Second
	}
	if c.Session.MaxLiveSessions == 0 {
		c.Session.MaxLiveSessions = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

func (s *SourcesConfig) setDefaults() {
	if s.SearchTimeout == 0 {
		s.SearchTimeout = 30 * time.Second
	}
	if s.MaxResults == 0 {
		s.MaxResults = 25
	}

	def := func(sc *SourceConfig, rate float64, baseURL string) {
		if sc.RateLimit == 0 {
			sc.RateLimit = rate
		}
		if sc.BaseURL == "" {
			sc.BaseURL = baseURL
		}
	}
	def(&s.OpenAlex, 10, "https://api.openalex.org")
	def(&s.SemanticScholar, 1, "https://api.semanticscholar.org/graph/v1")
	def(&s.ArXiv, 0.33, "https://export.arxiv.org/api")
	def(&s.PubMed, 3, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	def(&s.CORE, 1, "https://api.core.ac.uk/v3")

	// PubMed allows a higher rate once a key is supplied.
	if s.PubMed.APIKey != "" && s.PubMed.RateLimit < 10 {
		s.PubMed.RateLimit = 10
	}
}

// ApplyEnv overlays well-known environment variables onto the config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENALEX_EMAIL"); v != "" {
		c.Sources.OpenAlex.Email = v
		c.Sources.OpenAlex.Enabled = true
	}
	if v := os.Getenv("PUBMED_API_KEY"); v != "" {
		c.Sources.PubMed.APIKey = v
	}
	if v := os.Getenv("CORE_API_KEY"); v != "" {
		c.Sources.CORE.APIKey = v
		c.Sources.CORE.Enabled = true
	}
	if v := os.Getenv("SEMANTIC_SCHOLAR_API_KEY"); v != "" {
		c.Sources.SemanticScholar.APIKey = v
	}
}

// Validate checks cross-field constraints. The LLM credential is the
// only hard requirement; a missing key is an auth fault naming the
// environment variable to set.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fault.Auth("OPENROUTER_API_KEY")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Coordinator.QualityGate.MinOverallScore < 0 || c.Coordinator.QualityGate.MinOverallScore > 100 {
		return fmt.Errorf("coordinator.quality_gate.min_overall_score must be in [0,100]")
	}
	switch c.Coordinator.CitationStyle {
	case "apa", "mla", "chicago", "ieee", "gbt7714":
	default:
		return fmt.Errorf("coordinator.citation_style unknown: %q", c.Coordinator.CitationStyle)
	}
	if c.Cache.PaperMaxEntries < 1 {
		return fmt.Errorf("cache.paper_max_entries must be positive")
	}
	return nil
}

// EnabledSourceCount reports how many source clients are switched on.
func (s *SourcesConfig) EnabledSourceCount() int {
	n := 0
	for _, sc := range []SourceConfig{s.OpenAlex, s.SemanticScholar, s.ArXiv, s.PubMed, s.CORE} {
		if sc.Enabled {
			n++
		}
	}
	return n
}
