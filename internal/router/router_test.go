package router

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/pairing"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/wire"
)

type capturingWriter struct {
	mu   sync.Mutex
	sent []wire.Message
	err  error
}

func (w *capturingWriter) WriteMessage(m wire.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.sent = append(w.sent, m)
	return nil
}

func (w *capturingWriter) last() wire.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent[len(w.sent)-1]
}

type fakeValidator struct {
	ok bool
}

func (f fakeValidator) Validate(ctx context.Context, token string) (bool, error) {
	return f.ok, nil
}

// buildRequest constructs a raw HTTP/1.1 request padded to exactly
// peekBudget bytes so bufio.Reader.Peek(peekBudget) is satisfied by a
// single net.Pipe write/read pair, without relying on EOF.
func buildRequest(t *testing.T, auth, body string) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("POST /v1/chat/completions HTTP/1.1\r\nHost: example\r\n")
	if auth != "" {
		b.WriteString("Authorization: " + auth + "\r\n")
	}
	b.WriteString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body)))
	b.WriteString(body)
	raw := b.String()
	require.LessOrEqual(t, len(raw), peekBudget)
	if len(raw) < peekBudget {
		raw += strings.Repeat("0", peekBudget-len(raw))
	}
	return []byte(raw)
}

func setup(t *testing.T) (*Router, *registry.Registry, *pairing.Table) {
	t.Helper()
	reg := registry.New()
	pt := pairing.New()
	rt := New(Deps{Registry: reg, Pairing: pt, Validator: fakeValidator{ok: true}})
	return rt, reg, pt
}

// writeAndHandle uses a real loopback TCP connection rather than
// net.Pipe: net.Pipe's unbuffered synchronous Write would deadlock
// against Handle's own Write of an error response on rejection paths,
// since nothing drains the client side concurrently.
func writeAndHandle(t *testing.T, rt *Router, raw []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(raw)
		_, _ = io.Copy(io.Discard, conn)
	}()

	serverSide, err := ln.Accept()
	require.NoError(t, err)

	rt.Handle(context.Background(), serverSide)
}

// writeAndCapture is writeAndHandle plus capturing whatever the router
// wrote back to the client, for rejection paths that assert on the
// response body.
func writeAndCapture(t *testing.T, rt *Router, raw []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	respCh := make(chan []byte, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(raw)
		resp, _ := io.ReadAll(conn)
		respCh <- resp
	}()

	serverSide, err := ln.Accept()
	require.NoError(t, err)

	rt.Handle(context.Background(), serverSide)
	return string(<-respCh)
}

func TestRouter_RoutesByModel(t *testing.T) {
	rt, reg, pt := setup(t)
	w := &capturingWriter{}
	rec := registry.NewRecord("client-a", "user-1", w)
	rec.SetModels([]wire.Model{{ID: "model-x"}})
	require.True(t, reg.Insert("client-a", rec))

	raw := buildRequest(t, "Bearer abc123", `{"model":"model-x"}`)
	writeAndHandle(t, rt, raw)

	assert.Equal(t, 1, pt.Len())
	assert.Equal(t, wire.TypeRequestNewProxyConn, w.last().Type)
}

func TestRouter_FallsBackToRandomWhenModelUnmatched(t *testing.T) {
	rt, reg, pt := setup(t)
	w := &capturingWriter{}
	rec := registry.NewRecord("client-a", "user-1", w)
	require.True(t, reg.Insert("client-a", rec))

	raw := buildRequest(t, "Bearer abc123", `{"model":"unknown-model"}`)
	writeAndHandle(t, rt, raw)

	assert.Equal(t, 1, pt.Len())
	assert.Equal(t, wire.TypeRequestNewProxyConn, w.last().Type)
}

func TestRouter_RejectsMissingToken(t *testing.T) {
	rt, _, pt := setup(t)
	raw := buildRequest(t, "", `{}`)
	resp := writeAndCapture(t, rt, raw)
	assert.Equal(t, 0, pt.Len())
	assert.Contains(t, resp, "401")
	assert.Contains(t, resp, `"message":"Missing API key in Authorization header"`)
	assert.Contains(t, resp, `"success":false`)
	assert.Contains(t, resp, `"data":null`)
}

func TestRouter_RejectsInvalidToken(t *testing.T) {
	reg := registry.New()
	pt := pairing.New()
	rt := New(Deps{Registry: reg, Pairing: pt, Validator: fakeValidator{ok: false}})

	raw := buildRequest(t, "Bearer bad", `{}`)
	resp := writeAndCapture(t, rt, raw)
	assert.Equal(t, 0, pt.Len())
	assert.Contains(t, resp, "401")
	assert.Contains(t, resp, `"message":"Invalid API key"`)
}


func TestRouter_NoClientsAvailable(t *testing.T) {
	rt, _, pt := setup(t)
	raw := buildRequest(t, "Bearer abc123", `{}`)
	writeAndHandle(t, rt, raw)
	assert.Equal(t, 0, pt.Len())
}

func TestRouter_WriteFailureCleansUpPairAndRegistry(t *testing.T) {
	rt, reg, pt := setup(t)
	w := &capturingWriter{err: fmt.Errorf("broken pipe")}
	rec := registry.NewRecord("client-a", "user-1", w)
	require.True(t, reg.Insert("client-a", rec))

	raw := buildRequest(t, "Bearer abc123", `{}`)
	writeAndHandle(t, rt, raw)

	assert.Equal(t, 0, pt.Len())
	assert.Nil(t, reg.Get("client-a"))
}
