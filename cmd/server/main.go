package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/api"
	"github.com/cbodonnell/tickrelay/pkg/config"
	"github.com/cbodonnell/tickrelay/pkg/game"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/cbodonnell/tickrelay/pkg/version"
	"github.com/cbodonnell/tickrelay/pkg/workers"
)

func main() {
	cfg := config.DefaultServer()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, parsedLogLevel, cfg.Development)
	log.SetDefaultLogger(logger)
	defer logger.Sync()
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := game.ParseMode(cfg.Mode)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse game mode: %v", err))
	}

	var repository repositories.Repository
	var resultsChan chan workers.SaveMatchResultRequest
	var saveWorker *workers.SaveMatchResultWorker
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if cfg.DatabaseURL != "" {
		repository, err = repositories.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			panic(fmt.Sprintf("Failed to open match history: %v", err))
		}
		defer repository.Close(context.Background())

		resultsChan = make(chan workers.SaveMatchResultRequest, cfg.ResultsBuffer)
		saveWorker = workers.NewSaveMatchResultWorker(workers.NewSaveMatchResultWorkerOptions{
			Repository:  repository,
			RequestChan: resultsChan,
		})
		go saveWorker.Start(workerCtx)
	}

	opts := server.Options{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		MapName:        cfg.MapName,
		Mode:           mode,
		TickRate:       cfg.TickRate,
		MaxConnections: cfg.MaxConnections,
		ResultsChan:    resultsChan,
	}
	if cfg.WebSocketPort != 0 {
		opts.WebSocketAddr = fmt.Sprintf(":%d", cfg.WebSocketPort)
	}
	session, err := server.Host(opts)
	if err != nil {
		panic(fmt.Sprintf("Failed to host session: %v", err))
	}

	var apiServer *api.APIServer
	if cfg.StatusPort != 0 {
		apiServer = api.NewAPIServer(api.NewAPIServerOptions{
			Port:       cfg.StatusPort,
			Session:    session,
			Repository: repository,
		})
		go apiServer.Start()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		session.Stop()
		<-session.Done()
	case <-session.Done():
		log.Info("Session %s ended", session.ID())
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server: %v", err)
		}
		cancel()
	}
	if saveWorker != nil {
		close(resultsChan)
		<-saveWorker.Done()
		log.Info("Saved %d match results (%d failed)", saveWorker.Saved(), saveWorker.Failed())
	}
}
