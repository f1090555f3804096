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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/deepquest/pkg/config"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/server"
)

// ServeCmd starts the research API server.
type ServeCmd struct {
	Host string `help:"Interface to bind." default:""`
	Port int    `help:"Port to listen on." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	// The server starts without credentials; research requests report
	// the missing key instead.
	cfg, err := config.LoadLenient(cli.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	app := buildApp(cfg)
	defer app.Close()

	srv := server.New(app.sessions, app.coord, server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		ReadyCheck: func() error {
			if cfg.LLM.APIKey == "" {
				return fault.Auth("OPENROUTER_API_KEY")
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	return srv.ListenAndServe(ctx)
}
