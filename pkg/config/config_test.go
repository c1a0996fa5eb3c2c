package config

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Server)
		wantErr []string
	}{
		{name: "defaults", modify: func(c *Server) {}},
		{
			name: "optional ports set",
			modify: func(c *Server) {
				c.WebSocketPort = 18001
				c.StatusPort = 18080
			},
		},
		{
			name:    "port out of range",
			modify:  func(c *Server) { c.Port = 70000 },
			wantErr: []string{"port must be between 1 and 65535"},
		},
		{
			name:    "port required",
			modify:  func(c *Server) { c.Port = 0 },
			wantErr: []string{"port must be between"},
		},
		{
			name: "every error is reported",
			modify: func(c *Server) {
				c.TickRate = 0
				c.MaxConnections = -1
				c.ResultsBuffer = -1
				c.LogLevel = "loud"
			},
			wantErr: []string{
				"tick-rate must be positive",
				"max-connections must be positive",
				"results-buffer must not be negative",
				"unknown log level: loud",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultServer()
			tt.modify(&c)
			err := c.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestClient_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Client)
		wantErr string
	}{
		{name: "defaults", modify: func(c *Client) {}},
		{
			name:    "missing addr",
			modify:  func(c *Client) { c.Addr = " " },
			wantErr: "addr must be set",
		},
		{
			name: "hosting needs no addr",
			modify: func(c *Client) {
				c.Addr = ""
				c.Host = true
			},
		},
		{
			name: "hosting checks server settings",
			modify: func(c *Client) {
				c.Host = true
				c.Server.TickRate = 0
			},
			wantErr: "server-tick-rate must be positive",
		},
		{
			name:    "negative grace",
			modify:  func(c *Client) { c.DisconnectGrace = -time.Second },
			wantErr: "disconnect-grace must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultClient()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestServer_RegisterFlags(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	t.Setenv(EnvPrefix+"PORT", "19000")
	t.Setenv(EnvPrefix+"MODE", "onelife")
	t.Setenv(EnvPrefix+"DEV", "true")
	t.Setenv(EnvPrefix+"MAX_CONNECTIONS", "many")

	c := DefaultServer()
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-tick-rate", "30", "-mode", "deathmatch"}))

	assert.Equal(t, 19000, c.Port, "environment overrides the default")
	assert.Equal(t, "deathmatch", c.Mode, "flags override the environment")
	assert.Equal(t, 30, c.TickRate)
	assert.True(t, c.Development)
	assert.Equal(t, DefaultMaxConnections, c.MaxConnections, "unparsable values are ignored")
	assert.Equal(t, DefaultDatabaseURL, c.DatabaseURL)
	assert.NoError(t, c.Validate())
}

func TestClient_RegisterFlags(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	t.Setenv(EnvPrefix+"DISCONNECT_GRACE", "250ms")
	t.Setenv(EnvPrefix+"NAME", "alice")

	c := DefaultClient()
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-host", "-map", "crossroads"}))

	assert.Equal(t, 250*time.Millisecond, c.DisconnectGrace)
	assert.Equal(t, "alice", c.Name)
	assert.True(t, c.Host)
	assert.Equal(t, "crossroads", c.Server.MapName)
	assert.Equal(t, DefaultClientTickRate, c.TickRate)
	assert.Equal(t, DefaultServerTickRate, c.Server.TickRate)
}
