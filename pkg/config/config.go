// Package config holds the typed settings of the server and client binaries.
// Every flag falls back to a TICKRELAY_* environment variable when it is not
// given on the command line.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
)

const EnvPrefix = "TICKRELAY_"

const (
	DefaultPort            = 18000
	DefaultServerTickRate  = 20
	DefaultClientTickRate  = 120
	DefaultMaxConnections  = 10
	DefaultLogLevel        = "info"
	DefaultDatabaseURL     = "sqlite://tickrelay.db"
	DefaultResultsBuffer   = 16
	DefaultDisconnectGrace = time.Second
)

// Server configures cmd/server.
type Server struct {
	Port           int
	WebSocketPort  int
	StatusPort     int
	TickRate       int
	MaxConnections int
	MapName        string
	Mode           string
	DatabaseURL    string
	ResultsBuffer  int
	LogLevel       string
	Development    bool
}

// DefaultServer returns the server defaults. WebSocket and status listeners
// are disabled until a port is set.
func DefaultServer() Server {
	return Server{
		Port:           DefaultPort,
		TickRate:       DefaultServerTickRate,
		MaxConnections: DefaultMaxConnections,
		DatabaseURL:    DefaultDatabaseURL,
		ResultsBuffer:  DefaultResultsBuffer,
		LogLevel:       DefaultLogLevel,
	}
}

// RegisterFlags binds the fields to fs, using the environment to override
// defaults.
func (c *Server) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", envInt("PORT", c.Port), "TCP port to listen on")
	fs.IntVar(&c.WebSocketPort, "ws-port", envInt("WS_PORT", c.WebSocketPort), "WebSocket port to listen on (0 disables)")
	fs.IntVar(&c.StatusPort, "status-port", envInt("STATUS_PORT", c.StatusPort), "Status API port (0 disables)")
	fs.IntVar(&c.TickRate, "tick-rate", envInt("TICK_RATE", c.TickRate), "Ticks per second")
	fs.IntVar(&c.MaxConnections, "max-connections", envInt("MAX_CONNECTIONS", c.MaxConnections), "Maximum number of connections")
	fs.StringVar(&c.MapName, "map", envString("MAP", c.MapName), "Map to load")
	fs.StringVar(&c.Mode, "mode", envString("MODE", c.Mode), "Game mode (deathmatch, onelife)")
	fs.StringVar(&c.DatabaseURL, "database-url", envString("DATABASE_URL", c.DatabaseURL), "Match history database (sqlite://path, postgres://...; empty disables)")
	fs.IntVar(&c.ResultsBuffer, "results-buffer", envInt("RESULTS_BUFFER", c.ResultsBuffer), "Match results queued for saving")
	fs.StringVar(&c.LogLevel, "log-level", envString("LOG_LEVEL", c.LogLevel), "Log level")
	fs.BoolVar(&c.Development, "dev", envBool("DEV", c.Development), "Human readable logs")
}

func (c Server) Validate() error {
	var errs []error
	if err := validatePort("port", c.Port, false); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("ws-port", c.WebSocketPort, true); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("status-port", c.StatusPort, true); err != nil {
		errs = append(errs, err)
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick-rate must be positive, got %d", c.TickRate))
	}
	if c.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("max-connections must be positive, got %d", c.MaxConnections))
	}
	if c.ResultsBuffer < 0 {
		errs = append(errs, fmt.Errorf("results-buffer must not be negative, got %d", c.ResultsBuffer))
	}
	if _, err := log.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Client configures cmd/client.
type Client struct {
	Addr            string
	Name            string
	Host            bool
	TickRate        int
	DisconnectGrace time.Duration
	LogLevel        string
	Development     bool
	// Server is used when Host is set.
	Server Server
}

func DefaultClient() Client {
	return Client{
		Addr:            fmt.Sprintf("localhost:%d", DefaultPort),
		TickRate:        DefaultClientTickRate,
		DisconnectGrace: DefaultDisconnectGrace,
		LogLevel:        DefaultLogLevel,
		Server:          DefaultServer(),
	}
}

func (c *Client) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", envString("ADDR", c.Addr), "Server address (host:port or ws:// URL)")
	fs.StringVar(&c.Name, "name", envString("NAME", c.Name), "Player name")
	fs.BoolVar(&c.Host, "host", envBool("HOST", c.Host), "Host a session and join it")
	fs.IntVar(&c.TickRate, "tick-rate", envInt("CLIENT_TICK_RATE", c.TickRate), "Client ticks per second")
	fs.DurationVar(&c.DisconnectGrace, "disconnect-grace", envDuration("DISCONNECT_GRACE", c.DisconnectGrace), "Time to wait for the server after disconnecting")
	fs.StringVar(&c.LogLevel, "log-level", envString("LOG_LEVEL", c.LogLevel), "Log level")
	fs.BoolVar(&c.Development, "dev", envBool("DEV", c.Development), "Human readable logs")
	fs.IntVar(&c.Server.Port, "port", envInt("PORT", c.Server.Port), "TCP port to host on with -host")
	fs.IntVar(&c.Server.TickRate, "server-tick-rate", envInt("TICK_RATE", c.Server.TickRate), "Server ticks per second with -host")
	fs.StringVar(&c.Server.MapName, "map", envString("MAP", c.Server.MapName), "Map to host with -host")
	fs.StringVar(&c.Server.Mode, "mode", envString("MODE", c.Server.Mode), "Game mode to host with -host")
}

func (c Client) Validate() error {
	var errs []error
	if !c.Host && strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must be set unless hosting"))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick-rate must be positive, got %d", c.TickRate))
	}
	if c.DisconnectGrace < 0 {
		errs = append(errs, fmt.Errorf("disconnect-grace must not be negative, got %s", c.DisconnectGrace))
	}
	if _, err := log.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Host {
		if err := validatePort("port", c.Server.Port, false); err != nil {
			errs = append(errs, err)
		}
		if c.Server.TickRate <= 0 {
			errs = append(errs, fmt.Errorf("server-tick-rate must be positive, got %d", c.Server.TickRate))
		}
	}
	return errors.Join(errs...)
}

func validatePort(name string, port int, optional bool) error {
	if optional && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
		return fallback
	}
	return d
}
