package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/yszxh/claude-bridge/internal/cmd"
	"github.com/yszxh/claude-bridge/internal/config"
	"github.com/yszxh/claude-bridge/internal/logging"
)

func main() {
	var login bool
	var configPath string

	flag.BoolVar(&login, "login", false, "Open the browser login flow after startup")
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.Parse()

	logging.SetupBaseLogger()

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		configPath = filepath.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Infof("no config file at %s, using defaults", configPath)
			cfg = config.Default()
			configPath = ""
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	logging.SetLevel(cfg.Debug)
	if err = logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	cmd.StartService(cfg, configPath, login)
}
