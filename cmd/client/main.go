package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/client"
	"github.com/cbodonnell/tickrelay/pkg/config"
	"github.com/cbodonnell/tickrelay/pkg/game"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/cbodonnell/tickrelay/pkg/version"
)

const joinTimeout = 5 * time.Second

func main() {
	cfg := config.DefaultClient()
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

	log.Info("Starting client version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	joinOpts := client.Options{
		Name:            cfg.Name,
		TickRate:        cfg.TickRate,
		DisconnectGrace: cfg.DisconnectGrace,
	}

	var remote *client.RemoteChannel
	if cfg.Host {
		mode, err := game.ParseMode(cfg.Server.Mode)
		if err != nil {
			panic(fmt.Sprintf("Failed to parse game mode: %v", err))
		}
		var session *server.Session
		session, remote, err = client.HostAndJoin(ctx, server.Options{
			Addr:     fmt.Sprintf(":%d", cfg.Server.Port),
			MapName:  cfg.Server.MapName,
			Mode:     mode,
			TickRate: cfg.Server.TickRate,
		}, joinOpts)
		if err != nil {
			panic(fmt.Sprintf("Failed to host session: %v", err))
		}
		log.Info("Hosting session %s on %s", session.ID(), session.Addr())
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		remote, err = client.Join(dialCtx, cfg.Addr, joinOpts)
		cancel()
		if err != nil {
			panic(fmt.Sprintf("Failed to join %s: %v", cfg.Addr, err))
		}
	}

	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	err = remote.WaitJoined(joinCtx)
	cancel()
	if err != nil {
		remote.Disconnect()
		panic(fmt.Sprintf("Failed to join: %v", err))
	}
	log.Info("Playing as %d on %s. Commands: n, e, s, w, f, q", remote.Session().PlayerID(), remote.Session().MapName())

	go readCommands(remote)

	for {
		select {
		case <-ctx.Done():
			remote.Disconnect()
			return
		case <-remote.Session().Ended():
			log.Info("Session ended: %s", remote.Session().EndReason())
			remote.Disconnect()
			return
		case <-remote.Cache().Changed():
			logState(remote.State(), remote.Session().PlayerID())
		}
	}
}

// readCommands turns stdin lines into player commands until q or EOF.
func readCommands(remote *client.RemoteChannel) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		var err error
		switch line {
		case "":
			continue
		case "f", "fire":
			err = remote.Fire()
		case "q", "quit":
			remote.Disconnect()
			return
		default:
			dir, parseErr := types.ParseDirection(line)
			if parseErr != nil {
				log.Warn("Unknown command %q", line)
				continue
			}
			err = remote.Move(dir)
		}
		if err != nil {
			log.Error("Failed to send command: %v", err)
		}
	}
}

func logState(state types.GameState, playerID int64) {
	p, ok := state.Player(playerID)
	if !ok {
		log.Trace("Tick %d: not in game", state.Tick)
		return
	}
	tank, alive := state.Tank(playerID)
	if !alive {
		log.Debug("Tick %d: score %d, waiting to spawn", state.Tick, p.Score)
		return
	}
	log.Debug("Tick %d: score %d, health %d at (%.0f, %.0f) facing %s",
		state.Tick, p.Score, tank.Health, tank.Position.X, tank.Position.Y, tank.Direction)
}
