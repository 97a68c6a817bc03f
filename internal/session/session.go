// Package session implements the per-connection control-plane state
// machine: INIT -> AWAIT_LOGIN -> AWAIT_REGISTER -> STEADY -> CLOSED.
// Grounded on llm-gateway's per-request handler shape
// (internal/proxy/handler.go's CreateCompletion: validate, look up,
// act, log), generalized from one-shot HTTP handling to a long-lived
// read loop over a framed connection that carries no HTTP of its own.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/storage"
	"github.com/modelgate/modelgate/internal/wire"
)

// persistenceTimeout bounds how long a SystemInfo-triggered upsert may
// block the steady-state read loop. A persistence failure is logged
// but never tears down the session.
const persistenceTimeout = 2 * time.Second

// Deps bundles the session's external collaborators so tests can swap
// any of them independently.
type Deps struct {
	Registry  *registry.Registry
	Users     auth.UserStore
	Tokens    *auth.TokenIssuer
	Validator auth.TokenValidator
	Presence  storage.PresenceStore
	Logger    *slog.Logger
}

// Session drives one control connection from login through steady
// state until it closes.
type Session struct {
	deps Deps
	conn *wire.Conn
	raw  net.Conn

	clientID string
	userID   string
}

func New(deps Deps, raw net.Conn) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger
	return &Session{deps: deps, conn: wire.NewConn(raw, 0), raw: raw}
}

// Run executes the full state machine. It returns once a read fails
// (peer close or error) or a handshake step is rejected; in steady
// state ctx cancellation is checked before each read, so it takes
// effect once the pending read completes. Run closes the connection
// on return.
func (s *Session) Run(ctx context.Context) {
	defer s.raw.Close()

	userID, ok := s.awaitLogin(ctx)
	if !ok {
		return
	}
	s.userID = userID

	if !s.awaitRegister(ctx) {
		return
	}

	s.steady(ctx)
}

func (s *Session) awaitLogin(ctx context.Context) (string, bool) {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		s.deps.Logger.Warn("control: read failed awaiting login", "error", err)
		return "", false
	}

	switch msg.Type {
	case wire.TypeLogin:
		return s.handleLogin(ctx, msg.Login)
	case wire.TypeLoginByToken:
		return s.handleLoginByToken(ctx, msg.LoginByToken)
	default:
		s.deps.Logger.Warn("control: unexpected message awaiting login", "type", msg.Type)
		_ = s.conn.WriteMessage(wire.NewLoginResult(false, "expected Login or LoginByToken", ""))
		return "", false
	}
}

func (s *Session) handleLogin(ctx context.Context, p *wire.LoginPayload) (string, bool) {
	user, err := s.deps.Users.Authenticate(ctx, p.Email, p.Password)
	if err != nil {
		s.deps.Logger.Warn("control: login failed", "email", p.Email, "error", err)
		metrics.ClientLoginFailuresTotal.Inc()
		_ = s.conn.WriteMessage(wire.NewLoginResult(false, "invalid email or password", ""))
		return "", false
	}

	token, err := s.deps.Tokens.Issue(ctx, user.ID, user.Email)
	if err != nil {
		s.deps.Logger.Error("control: failed to mint session token", "error", err)
		_ = s.conn.WriteMessage(wire.NewLoginResult(false, "internal error", ""))
		return "", false
	}

	if err := s.conn.WriteMessage(wire.NewLoginResult(true, "", token)); err != nil {
		s.deps.Logger.Warn("control: failed to send login result", "error", err)
		return "", false
	}
	return user.ID, true
}

func (s *Session) handleLoginByToken(ctx context.Context, p *wire.LoginByTokenPayload) (string, bool) {
	ok, err := s.deps.Validator.Validate(ctx, p.Token)
	if err != nil {
		s.deps.Logger.Error("control: token validation error", "error", err)
		_ = s.conn.WriteMessage(wire.NewLoginResult(false, "internal error", ""))
		return "", false
	}
	if !ok {
		metrics.ClientLoginFailuresTotal.Inc()
		_ = s.conn.WriteMessage(wire.NewLoginResult(false, "invalid or expired token", ""))
		return "", false
	}
	if err := s.conn.WriteMessage(wire.NewLoginResult(true, "", "")); err != nil {
		s.deps.Logger.Warn("control: failed to send login result", "error", err)
		return "", false
	}
	// The token carries no user identity resolvable without storage
	// round-trips the core shouldn't pay for on every reconnect; token
	// logins are attributed to a synthetic shared identity rather than
	// blocking registration on an extra lookup.
	return "token-session", true
}

func (s *Session) awaitRegister(ctx context.Context) bool {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		s.deps.Logger.Warn("control: read failed awaiting register", "error", err)
		return false
	}
	if msg.Type != wire.TypeRegister {
		s.deps.Logger.Warn("control: unexpected message awaiting register", "type", msg.Type)
		return false
	}

	clientID := msg.Register.ClientID
	rec := registry.NewRecord(clientID, s.userID, s.conn)
	if !s.deps.Registry.Insert(clientID, rec) {
		_ = s.conn.WriteMessage(wire.NewRegisterResult(false, "Client ID already in use"))
		return false
	}
	s.clientID = clientID
	metrics.RegisteredClients.Inc()

	if err := s.conn.WriteMessage(wire.NewRegisterResult(true, "")); err != nil {
		s.deps.Registry.Remove(clientID)
		return false
	}

	if s.deps.Presence != nil {
		pctx, cancel := context.WithTimeout(ctx, persistenceTimeout)
		if err := s.deps.Presence.UpsertOnline(pctx, clientID, s.userID); err != nil {
			s.deps.Logger.Error("control: presence upsert failed", "client_id", clientID, "error", err)
		}
		cancel()
	}
	return true
}

func (s *Session) steady(ctx context.Context) {
	defer s.cleanup(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := s.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.deps.Logger.Info("control: client disconnected", "client_id", s.clientID, "error", err)
			}
			return
		}

		switch msg.Type {
		case wire.TypeHeartbeat:
			s.handleHeartbeat(msg.Heartbeat)
		case wire.TypeSystemInfo:
			s.handleSystemInfo(ctx, msg.SystemInfo)
		default:
			s.deps.Logger.Warn("control: unexpected message in steady state", "client_id", s.clientID, "type", msg.Type)
		}
	}
}

func (s *Session) handleHeartbeat(p *wire.HeartbeatPayload) {
	s.deps.Registry.WithClient(s.clientID, func(rec *registry.Record) {
		rec.SetModels(p.Models)
	})
	metrics.HeartbeatsTotal.WithLabelValues(s.clientID).Inc()
}

func (s *Session) handleSystemInfo(ctx context.Context, p *wire.SystemInfoPayload) {
	s.deps.Registry.WithClient(s.clientID, func(rec *registry.Record) {
		rec.SetMetrics(registry.Metrics{
			CPUPercent:    p.CPUPercent,
			MemoryPercent: p.MemoryPercent,
			DiskPercent:   p.DiskPercent,
			ComputerName:  p.ComputerName,
		})
	})

	if s.deps.Presence == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, persistenceTimeout)
	defer cancel()
	if err := s.deps.Presence.UpsertOnline(pctx, s.clientID, s.userID); err != nil {
		s.deps.Logger.Error("control: presence upsert failed", "client_id", s.clientID, "error", err)
	}
}

func (s *Session) cleanup(ctx context.Context) {
	if s.clientID == "" {
		return
	}
	s.deps.Registry.Remove(s.clientID)
	metrics.RegisteredClients.Dec()

	if s.deps.Presence == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()
	if err := s.deps.Presence.MarkOffline(pctx, s.clientID); err != nil {
		s.deps.Logger.Error("control: presence mark-offline failed", "client_id", s.clientID, "error", err)
	}
	_ = ctx // cleanup intentionally uses a fresh context since ctx may already be cancelled
}
