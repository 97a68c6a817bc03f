package clientside

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/wire"
)

// fakeServer accepts exactly one control connection and replays a
// scripted Login/Register handshake, then blocks until the test tears
// it down — enough to exercise Client.login/register without a real
// session package on the other end.
func fakeServer(t *testing.T, ln net.Listener, loginSuccess, registerSuccess bool) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wc := wire.NewConn(conn, 0)

		msg, err := wc.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Type {
		case wire.TypeLogin:
			_ = wc.WriteMessage(wire.NewLoginResult(loginSuccess, "", "minted-token"))
		case wire.TypeLoginByToken:
			_ = wc.WriteMessage(wire.NewLoginResult(loginSuccess, "", ""))
		}
		if !loginSuccess {
			return
		}

		msg, err = wc.ReadMessage()
		if err != nil || msg.Type != wire.TypeRegister {
			return
		}
		_ = wc.WriteMessage(wire.NewRegisterResult(registerSuccess, ""))

		// Keep the connection open so the caller's steady loop can run
		// until it's done with it.
		buf := make([]byte, 4)
		_, _ = conn.Read(buf)
	}()
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	return New(Options{
		Config: config.ClientConfig{
			ClientID:         "client-1",
			ServerHost:       host,
			ControlPort:      port,
			LocalServiceAddr: "127.0.0.1:1", // unused by this test
			TokenFile:        filepath.Join(t.TempDir(), "token.json"),
		},
		FlagEmail:    "a@example.com",
		FlagPassword: "hunter2",
		DialTimeout:  time.Second,
	})
}

func TestClient_LoginAndRegisterSucceed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	fakeServer(t, ln, true, true)

	c := newTestClient(t, ln.Addr().String())

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	conn := wire.NewConn(raw, 0)

	require.NoError(t, c.login(context.Background(), conn))
	require.NoError(t, c.register(conn))

	token, ok := loadToken(c.opts.Config.TokenFile)
	assert.True(t, ok)
	assert.Equal(t, "minted-token", token)
}

func TestClient_LoginRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	fakeServer(t, ln, false, false)

	c := newTestClient(t, ln.Addr().String())

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	conn := wire.NewConn(raw, 0)

	assert.Error(t, c.login(context.Background(), conn))
}

func TestClient_RegisterRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	fakeServer(t, ln, true, false)

	c := newTestClient(t, ln.Addr().String())

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	conn := wire.NewConn(raw, 0)

	require.NoError(t, c.login(context.Background(), conn))
	assert.Error(t, c.register(conn))
}

func TestClient_LoginByTokenUsedWhenPersisted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	fakeServer(t, ln, true, true)

	c := newTestClient(t, ln.Addr().String())
	require.NoError(t, saveToken(c.opts.Config.TokenFile, "persisted-token"))

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	conn := wire.NewConn(raw, 0)

	require.NoError(t, c.login(context.Background(), conn))
}
