// Package cmd wires the long-lived components together and runs the service:
// credential store, token manager, PKCE session sweeper, upstream client,
// preset cache, HTTP server, and config hot reload.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yszxh/claude-bridge/internal/api"
	"github.com/yszxh/claude-bridge/internal/api/handlers"
	"github.com/yszxh/claude-bridge/internal/auth"
	"github.com/yszxh/claude-bridge/internal/browser"
	"github.com/yszxh/claude-bridge/internal/config"
	"github.com/yszxh/claude-bridge/internal/credentials"
	"github.com/yszxh/claude-bridge/internal/logging"
	"github.com/yszxh/claude-bridge/internal/presets"
	"github.com/yszxh/claude-bridge/internal/upstream"
)

const shutdownTimeout = 5 * time.Second

// StartService runs the proxy until interrupted. When openLogin is set, the
// default browser is pointed at the login flow once the server is listening.
func StartService(cfg *config.Config, configFile string, openLogin bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := credentials.NewStore(cfg.CredentialsFile)
	redirectURI := fmt.Sprintf("http://localhost:%d/auth/callback", cfg.Port)
	oauthClient := auth.NewAnthropicAuth(redirectURI, cfg.ProxyURL)
	tokens := auth.NewManager(oauthClient, store)
	sessions := auth.NewSessionStore()
	sessions.StartSweeper(ctx)

	base := handlers.NewBaseAPIHandler(cfg, tokens, oauthClient, sessions,
		upstream.NewClient(cfg, tokens), presets.NewCache(cfg.PresetsDir))
	server := api.NewServer(cfg, base)

	if configFile != "" {
		if err := config.Watch(ctx, configFile, func(newCfg *config.Config) {
			logging.SetLevel(newCfg.Debug)
			server.UpdateConfig(newCfg)
		}); err != nil {
			log.Warnf("config hot reload disabled: %v", err)
		}
	}

	if tokens.IsAuthenticated() {
		log.Info("stored credentials found")
	} else {
		log.Infof("no stored credentials; visit http://localhost:%d/auth/login to authenticate", cfg.Port)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	if openLogin {
		go func() {
			// Give the listener a moment before pointing the browser at it.
			time.Sleep(500 * time.Millisecond)
			loginURL := fmt.Sprintf("http://localhost:%d/auth/login", cfg.Port)
			if err := browser.OpenURL(loginURL); err != nil {
				log.Warnf("could not open browser automatically, visit %s manually: %v", loginURL, err)
			}
		}()
	}

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}
	}
}
