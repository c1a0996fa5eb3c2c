package client

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/communicator"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func hostOptions() server.Options {
	return server.Options{
		Addr:     "127.0.0.1:0",
		TickRate: 20,
	}
}

func hostAndJoin(t *testing.T, hostOpts server.Options) (*server.Session, *RemoteChannel) {
	t.Helper()
	log.SetDefaultLogger(log.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	session, host, err := HostAndJoin(ctx, hostOpts, Options{Name: "alice"})
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Stop()
		host.Disconnect()
	})
	require.NoError(t, host.WaitJoined(ctx))
	return session, host
}

func join(t *testing.T, addr string, name string) *RemoteChannel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	remote, err := Join(ctx, addr, Options{Name: name, DisconnectGrace: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(remote.Disconnect)
	require.NoError(t, remote.WaitJoined(ctx))
	return remote
}

func waitEnded(t *testing.T, r *RemoteChannel) {
	t.Helper()
	select {
	case <-r.Session().Ended():
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
	select {
	case <-r.Done():
	case <-time.After(waitFor):
		t.Fatal("client communicator did not stop")
	}
}

func TestHostAndJoin(t *testing.T) {
	session, host := hostAndJoin(t, hostOptions())

	playerID := host.Session().PlayerID()
	assert.NotZero(t, playerID)
	assert.Equal(t, "arena", host.Session().MapName())
	assert.Equal(t, 20, host.Session().ServerTickRate())

	assert.Eventually(t, func() bool {
		p, ok := host.State().Player(playerID)
		return ok && p.Host && p.Name == "alice"
	}, waitFor, tick)

	status := session.Status()
	assert.Equal(t, session.ID(), status.SessionID)
	assert.Equal(t, 1, status.Connections)
	assert.True(t, status.Accepting)
	assert.False(t, status.Stopped)
	assert.NotEmpty(t, status.Loops)
}

func TestRemoteChannel_Move(t *testing.T) {
	_, host := hostAndJoin(t, hostOptions())
	playerID := host.Session().PlayerID()

	var start types.EntityState
	require.Eventually(t, func() bool {
		var ok bool
		start, ok = host.State().Tank(playerID)
		return ok
	}, waitFor, tick)

	require.NoError(t, host.Move(types.DirectionEast))
	assert.Eventually(t, func() bool {
		tank, ok := host.State().Tank(playerID)
		return ok && tank.Position.X == start.Position.X+10 && tank.Direction == types.DirectionEast
	}, waitFor, tick)

	require.NoError(t, host.Fire())
	assert.Eventually(t, func() bool {
		return host.State().Count(types.EntityKindShell) > 0
	}, waitFor, tick)
}

func TestRemoteChannel_SecondPlayer(t *testing.T) {
	session, host := hostAndJoin(t, hostOptions())
	guest := join(t, session.Addr(), "bob")

	assert.NotEqual(t, host.Session().PlayerID(), guest.Session().PlayerID())
	assert.Eventually(t, func() bool {
		return len(host.State().Players) == 2 && len(guest.State().Players) == 2
	}, waitFor, tick)

	guest.Disconnect()
	waitEnded(t, guest)
	assert.Eventually(t, func() bool {
		return len(host.State().Players) == 1
	}, waitFor, tick)
	assert.False(t, session.Status().Stopped)
}

func TestRemoteChannel_HostLeavingEndsSession(t *testing.T) {
	session, host := hostAndJoin(t, hostOptions())
	guest := join(t, session.Addr(), "bob")

	host.Disconnect()
	waitEnded(t, host)
	waitEnded(t, guest)
	assert.Contains(t, []string{"server shut down", "connection lost"}, guest.Session().EndReason())

	select {
	case <-session.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
	assert.True(t, session.Status().Stopped)
	assert.ErrorIs(t, guest.Fire(), communicator.ErrStopped)
}

// serverTick is one tick of the session started with hostOptions.
const serverTick = time.Second / 20

func TestRemoteChannel_JoinWithinThreeTicks(t *testing.T) {
	session, _ := hostAndJoin(t, hostOptions())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	start := time.Now()
	guest, err := Join(ctx, session.Addr(), Options{Name: "bob", DisconnectGrace: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(guest.Disconnect)

	var visible time.Time
	require.Eventually(t, func() bool {
		_, ok := guest.State().Tank(guest.Session().PlayerID())
		if ok {
			visible = time.Now()
		}
		return ok
	}, waitFor, time.Millisecond)
	assert.LessOrEqual(t, visible.Sub(start), 3*serverTick)
}

func TestRemoteChannel_HostLeavingEndsGuestWithinTwoTicks(t *testing.T) {
	session, host := hostAndJoin(t, hostOptions())
	guest := join(t, session.Addr(), "bob")
	require.Eventually(t, func() bool {
		return len(guest.State().Players) == 2
	}, waitFor, tick)

	start := time.Now()
	go host.Disconnect()
	select {
	case <-guest.Session().Ended():
	case <-time.After(waitFor):
		t.Fatal("guest session did not end")
	}
	assert.LessOrEqual(t, time.Since(start), 2*serverTick)
	assert.Equal(t, "server shut down", guest.Session().EndReason())
}

func TestRemoteChannel_Capacity(t *testing.T) {
	opts := hostOptions()
	opts.MaxConnections = 1
	session, _ := hostAndJoin(t, opts)

	require.Eventually(t, func() bool {
		return !session.Status().Accepting
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := Join(ctx, session.Addr(), Options{Name: "late"})
	assert.Error(t, err)
}

func TestRemoteChannel_WebSocket(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	opts := hostOptions()
	opts.WebSocketAddr = "127.0.0.1:0"
	session, err := server.Host(opts)
	require.NoError(t, err)
	defer session.Stop()
	require.NotEmpty(t, session.WebSocketURL())

	remote := join(t, session.WebSocketURL(), "browser")
	assert.Eventually(t, func() bool {
		_, ok := remote.State().Tank(remote.Session().PlayerID())
		return ok
	}, waitFor, tick)

	session.Stop()
	waitEnded(t, remote)
}

func TestJoin_Unreachable(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := Join(ctx, "127.0.0.1:1", Options{})
	assert.Error(t, err)
}

func TestLocalAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: "[::]:18000", want: "127.0.0.1:18000"},
		{addr: "0.0.0.0:18000", want: "127.0.0.1:18000"},
		{addr: ":18000", want: "127.0.0.1:18000"},
		{addr: "10.0.0.2:18000", want: "10.0.0.2:18000"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, localAddr(tt.addr))
		})
	}
}
