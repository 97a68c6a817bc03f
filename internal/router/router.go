// Package router implements the public listener's request-dispatch
// logic: peek, authenticate, select a capable client, and issue a
// pair. Grounded on llm-gateway's AuthMiddleware +
// CreateCompletion pair (internal/middleware/auth.go,
// internal/proxy/handler.go), generalized from "look up a tenant by
// API key and proxy an HTTP request with net/http.Client" to "look up
// a client by advertised model and proxy a raw byte stream via the
// pairing table", since the core forwards arbitrary bytes to an
// unreachable backend rather than making an outbound HTTP call itself.
package router

import (
	"context"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/pairing"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/wire"
)

// Deps bundles the router's collaborators.
type Deps struct {
	Registry  *registry.Registry
	Pairing   *pairing.Table
	Validator auth.TokenValidator
	Logger    *slog.Logger
}

type Router struct {
	deps Deps
}

func New(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{deps: deps}
}

// Handle runs the full peek/authenticate/select/dispatch sequence for
// one accepted public connection. It never returns an error to the
// caller: every failure
// path writes an HTTP response (or simply closes) and is logged here.
// Ownership of conn passes to the pairing table on success; on every
// failure path this function closes conn itself.
func (rt *Router) Handle(ctx context.Context, conn net.Conn) {
	bc := newBufferedConn(conn)

	head, err := peekRequestHead(bc.br)
	if err != nil {
		rt.deps.Logger.Warn("router: failed to parse request head", "error", err)
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeMalformed).Inc()
		rt.reject(conn, 400, "malformed request")
		return
	}

	if head.authToken == "" {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeMissingToken).Inc()
		rt.reject(conn, 401, "Missing API key in Authorization header")
		return
	}
	ok, err := rt.deps.Validator.Validate(ctx, head.authToken)
	if err != nil {
		rt.deps.Logger.Error("router: token validation failed", "error", err)
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeValidatorDown).Inc()
		rt.reject(conn, 503, "Authentication unavailable")
		return
	}
	if !ok {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeInvalidToken).Inc()
		rt.reject(conn, 401, "Invalid API key")
		return
	}

	clientID, ok := rt.selectClient(head.model)
	if !ok {
		rt.deps.Logger.Warn("router: no capable client available", "model", head.model)
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeNoBackend).Inc()
		rt.reject(conn, 503, "No active clients available")
		return
	}

	rt.dispatch(clientID, bc)
}

// selectClient tries a model-aware match first, falling back to a
// uniformly random client when model is empty or unmatched.
func (rt *Router) selectClient(model string) (string, bool) {
	if model != "" {
		if id, ok := rt.deps.Registry.FindByModel(model); ok {
			return id, true
		}
	}
	return rt.deps.Registry.RandomClient()
}

// dispatch issues the pair: insert it first so the client's callback,
// even if it races in immediately, always finds its entry —
// pair-insertion happens-before the outbound RequestNewProxyConn.
func (rt *Router) dispatch(clientID string, bc *bufferedConn) {
	pairID := uuid.NewString()
	rt.deps.Pairing.Insert(pairID, bc)
	metrics.PendingPairs.Inc()

	rec := rt.deps.Registry.Get(clientID)
	if rec == nil {
		// Client vanished between selection and dispatch.
		rt.deps.Pairing.Remove(pairID)
		metrics.PendingPairs.Dec()
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeDispatchFailed).Inc()
		rt.reject(bc, 503, "backend disconnected")
		return
	}

	if err := rec.Send(wire.NewRequestNewProxyConn(pairID)); err != nil {
		rt.deps.Logger.Warn("router: write failed, dropping client", "client_id", clientID, "error", err)
		rt.deps.Registry.Remove(clientID)
		rt.deps.Pairing.Remove(pairID)
		metrics.PendingPairs.Dec()
		metrics.ProxyDialFailuresTotal.Inc()
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeDispatchFailed).Inc()
		rt.reject(bc, 502, "backend dispatch failed")
		return
	}
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeDispatched).Inc()
}

// reject writes a JSON error and closes conn. Used on every failure
// path that has not yet handed conn to the pairing table.
func (rt *Router) reject(conn net.Conn, status int, message string) {
	_, _ = conn.Write(writeJSONError(status, message))
	_ = conn.Close()
}
