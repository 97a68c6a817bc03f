package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/storage"
	"github.com/modelgate/modelgate/internal/wire"
)

type fakeUsers struct {
	user *auth.User
	err  error
}

func (f *fakeUsers) Authenticate(ctx context.Context, email, password string) (*auth.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeValidator struct {
	ok  bool
	err error
}

func (f *fakeValidator) Validate(ctx context.Context, token string) (bool, error) {
	return f.ok, f.err
}

func newTestDeps(t *testing.T, users auth.UserStore) (Deps, *registry.Registry, *storage.MockPresenceStore) {
	t.Helper()
	reg := registry.New()
	presence := storage.NewMockPresenceStore()
	issuer := auth.NewTokenIssuer([]byte("test-signing-key"), nil)
	return Deps{
		Registry: reg,
		Users:    users,
		Tokens:   issuer,
		Presence: presence,
	}, reg, presence
}

func runClientSide(t *testing.T, conn net.Conn, steps func(*wire.Conn)) {
	t.Helper()
	wc := wire.NewConn(conn, 0)
	steps(wc)
}

func TestSession_FullHandshakeToSteady(t *testing.T) {
	users := &fakeUsers{user: &auth.User{ID: "user-1", Email: "a@example.com"}}
	deps, reg, presence := newTestDeps(t, users)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		New(deps, serverConn).Run(context.Background())
		close(done)
	}()

	wc := wire.NewConn(clientConn, 0)

	require.NoError(t, wc.WriteMessage(wire.NewLogin("a@example.com", "secret")))
	loginResp, err := wc.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.TypeLoginResult, loginResp.Type)
	assert.True(t, loginResp.LoginResult.Success)
	assert.NotEmpty(t, loginResp.LoginResult.Token)

	require.NoError(t, wc.WriteMessage(wire.NewRegister("client-1")))
	regResp, err := wc.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRegisterResult, regResp.Type)
	assert.True(t, regResp.RegisterResult.Success)

	assert.Eventually(t, func() bool {
		return reg.Get("client-1") != nil
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, online := presence.Online["client-1"]
		return online
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, wc.WriteMessage(wire.NewHeartbeat([]wire.Model{{ID: "model-a"}})))

	assert.Eventually(t, func() bool {
		id, ok := reg.FindByModel("model-a")
		return ok && id == "client-1"
	}, time.Second, 5*time.Millisecond)

	clientConn.Close()
	<-done

	assert.Nil(t, reg.Get("client-1"))
	_, stillOnline := presence.Online["client-1"]
	assert.False(t, stillOnline)
}

func TestSession_LoginRejectedOnBadCredentials(t *testing.T) {
	users := &fakeUsers{err: auth.ErrInvalidCredentials}
	deps, _, _ := newTestDeps(t, users)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		New(deps, serverConn).Run(context.Background())
		close(done)
	}()

	wc := wire.NewConn(clientConn, 0)
	require.NoError(t, wc.WriteMessage(wire.NewLogin("a@example.com", "wrong")))
	resp, err := wc.ReadMessage()
	require.NoError(t, err)
	assert.False(t, resp.LoginResult.Success)

	<-done
}

func TestSession_DuplicateClientIDRejected(t *testing.T) {
	users := &fakeUsers{user: &auth.User{ID: "user-1", Email: "a@example.com"}}
	deps, reg, _ := newTestDeps(t, users)

	existing := registry.NewRecord("dup-client", "someone-else", noopWriter{})
	require.True(t, reg.Insert("dup-client", existing))

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		New(deps, serverConn).Run(context.Background())
		close(done)
	}()

	wc := wire.NewConn(clientConn, 0)
	require.NoError(t, wc.WriteMessage(wire.NewLogin("a@example.com", "secret")))
	_, err := wc.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, wc.WriteMessage(wire.NewRegister("dup-client")))
	resp, err := wc.ReadMessage()
	require.NoError(t, err)
	assert.False(t, resp.RegisterResult.Success)

	<-done
	assert.Same(t, existing, reg.Get("dup-client"))
}

func TestSession_LoginByTokenDelegatesToValidator(t *testing.T) {
	deps, _, _ := newTestDeps(t, &fakeUsers{})
	deps.Validator = &fakeValidator{ok: true}

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		New(deps, serverConn).Run(context.Background())
		close(done)
	}()

	wc := wire.NewConn(clientConn, 0)
	require.NoError(t, wc.WriteMessage(wire.NewLoginByToken("some-token")))
	resp, err := wc.ReadMessage()
	require.NoError(t, err)
	assert.True(t, resp.LoginResult.Success)

	clientConn.Close()
	<-done
}

type noopWriter struct{}

func (noopWriter) WriteMessage(m wire.Message) error { return nil }
