package main

import (
	"fmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/api"
	"github.com/skybi/grade-proxy/internal/config"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Set up zerolog to use pretty printing
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr,
	})
	log.Info().Msg("starting up...")

	// Load the application configuration
	log.Info().Msg("loading configuration...")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load the configuration")
	}
	if cfg.IsEnvProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Debug().Str("config", fmt.Sprintf("%+v", cfg)).Msg("")

	// Create the browser automation used to acquire gids
	acquirer, err := acquire.New(cfg.BrowserEngine, cfg.AcquireOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("could not create the gid acquirer")
	}

	// Start up the proxy API
	log.Info().Str("address", cfg.ListenAddress).Str("engine", cfg.BrowserEngine).Msg("starting up the proxy API...")
	apis := &api.Service{
		Config:   cfg,
		Acquirer: acquirer,
	}
	apiErrs := make(chan error, 1)
	apis.Startup(apiErrs)
	go func() {
		err := <-apiErrs
		log.Fatal().Err(err).Msg("the API service raised an unexpected error")
	}()
	defer func() {
		log.Info().Msg("shutting down the proxy API...")
		apis.Shutdown()
	}()

	log.Info().Msg("done!")
	defer log.Info().Msg("shutting down...")

	// Wait for the application to be terminated
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
}
