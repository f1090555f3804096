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

package sources

import (
	"log/slog"

	"github.com/kadirpekel/deepquest/pkg/config"
)

// FromConfig builds the enabled catalog clients.
func FromConfig(cfg *config.SourcesConfig) []Client {
	var clients []Client

	if cfg.OpenAlex.Enabled {
		clients = append(clients, NewOpenAlex(cfg.OpenAlex.BaseURL, cfg.OpenAlex.Email, cfg.Contact, cfg.OpenAlex.RateLimit))
	}
	if cfg.SemanticScholar.Enabled {
		clients = append(clients, NewSemanticScholar(cfg.SemanticScholar.BaseURL, cfg.SemanticScholar.APIKey, cfg.Contact, cfg.SemanticScholar.RateLimit))
	}
	if cfg.ArXiv.Enabled {
		clients = append(clients, NewArXiv(cfg.ArXiv.BaseURL, cfg.Contact, cfg.ArXiv.RateLimit))
	}
	if cfg.PubMed.Enabled {
		clients = append(clients, NewPubMed(cfg.PubMed.BaseURL, cfg.PubMed.APIKey, cfg.Contact, cfg.PubMed.RateLimit))
	}
	if cfg.CORE.Enabled {
		clients = append(clients, NewCORE(cfg.CORE.BaseURL, cfg.CORE.APIKey, cfg.Contact, cfg.CORE.RateLimit))
	}

	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.Name()
	}
	slog.Info("bibliographic sources enabled", "sources", names)
	return clients
}
