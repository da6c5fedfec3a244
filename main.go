package main

import (
	"log"
	"os"

	"github.com/avstrong/roomshare/internal/app"
	"github.com/avstrong/roomshare/internal/config"
	"github.com/avstrong/roomshare/internal/logger"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	if !found {
		l.LogInfo("Config %s not found, using defaults", path)
	}

	var exitCode int

	if err := app.Run(l, cfg); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	l.Sync()
	os.Exit(exitCode)
}
