// Command siteapi runs the Nordmedica marketing-site backend.
package main

import (
	"go.uber.org/zap"

	"github.com/nordmedica/siteapi"
)

func main() {
	cfg := siteapi.ConfigFromEnv()

	logger := newLogger(cfg.Environment)
	defer logger.Sync()

	app := siteapi.New(cfg, logger)
	defer app.Close()

	if err := app.Start(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(environment string) *zap.Logger {
	if environment == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}
