package clientside

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/splice"
	"github.com/modelgate/modelgate/internal/wire"
)

// Options configures a Client. FlagEmail/FlagPassword come from CLI
// flags; they are used only when no persisted token is accepted, and
// then take priority over interactive prompting.
type Options struct {
	Config config.ClientConfig

	FlagEmail    string
	FlagPassword string

	Logger *slog.Logger

	DialTimeout      time.Duration
	HeartbeatPeriod  time.Duration
	MaxReconnectWait time.Duration
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.HeartbeatPeriod <= 0 {
		o.HeartbeatPeriod = 10 * time.Second
	}
	if o.MaxReconnectWait <= 0 {
		o.MaxReconnectWait = 10 * time.Second
	}
}

// Client is the tunneling agent: it holds a control connection to the
// server, advertises the local inference daemon's model catalog, and
// dials back whenever the server asks for a new proxy stream.
type Client struct {
	opts      Options
	inventory *inventoryFetcher
}

func New(opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:      opts,
		inventory: newInventoryFetcher(opts.Config.LocalServiceAddr),
	}
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled. Grounded on Summpot-prism's tunnel.Client.Run shape,
// generalized from its QUIC/stream transport to one long-lived framed
// TCP connection carrying both control traffic and per-request
// RequestNewProxyConn callbacks.
func (c *Client) Run(ctx context.Context) error {
	backoff := 1 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.opts.Logger.Warn("clientside: disconnected; retrying", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < c.opts.MaxReconnectWait {
			backoff *= 2
			if backoff > c.opts.MaxReconnectWait {
				backoff = c.opts.MaxReconnectWait
			}
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	cfg := c.opts.Config
	controlAddr := net.JoinHostPort(cfg.ServerHost, cfg.ControlPort)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	raw, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", controlAddr)
	cancel()
	if err != nil {
		return fmt.Errorf("clientside: dial control port: %w", err)
	}
	defer raw.Close()

	conn := wire.NewConn(raw, 0)
	if err := c.login(ctx, conn); err != nil {
		return err
	}
	if err := c.register(conn); err != nil {
		return err
	}
	c.opts.Logger.Info("clientside: registered", "client_id", cfg.ClientID, "server", controlAddr)

	return c.steady(ctx, conn)
}

// login tries the persisted token first so a restarted agent never
// re-prompts for a password; a rejected or missing token falls back
// to password login, prompting interactively when neither a token nor
// --email/--password flags are available.
func (c *Client) login(ctx context.Context, conn *wire.Conn) error {
	if token, ok := loadToken(c.opts.Config.TokenFile); ok {
		if err := conn.WriteMessage(wire.NewLoginByToken(token)); err != nil {
			return fmt.Errorf("clientside: send login-by-token: %w", err)
		}
		result, err := readLoginResult(conn)
		if err != nil {
			return err
		}
		if result.Success {
			return nil
		}
		c.opts.Logger.Warn("clientside: persisted token rejected, falling back to password login")
	}

	creds, err := resolveCredentials(c.opts.FlagEmail, c.opts.FlagPassword)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(wire.NewLogin(creds.Email, creds.Password)); err != nil {
		return fmt.Errorf("clientside: send login: %w", err)
	}
	result, err := readLoginResult(conn)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("clientside: login rejected: %s", result.Error)
	}
	if result.Token != "" {
		if err := saveToken(c.opts.Config.TokenFile, result.Token); err != nil {
			c.opts.Logger.Warn("clientside: failed to persist token", "error", err)
		}
	}
	return nil
}

func readLoginResult(conn *wire.Conn) (*wire.LoginResultPayload, error) {
	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("clientside: read login result: %w", err)
	}
	if msg.Type != wire.TypeLoginResult {
		return nil, fmt.Errorf("clientside: expected LoginResult, got %q", msg.Type)
	}
	return msg.LoginResult, nil
}

func (c *Client) register(conn *wire.Conn) error {
	if err := conn.WriteMessage(wire.NewRegister(c.opts.Config.ClientID)); err != nil {
		return fmt.Errorf("clientside: send register: %w", err)
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("clientside: read register result: %w", err)
	}
	if msg.Type != wire.TypeRegisterResult {
		return fmt.Errorf("clientside: expected RegisterResult, got %q", msg.Type)
	}
	if !msg.RegisterResult.Success {
		return fmt.Errorf("clientside: registration rejected: %s", msg.RegisterResult.Error)
	}
	return nil
}

// steady drives the heartbeat ticker and the inbound-message read loop
// concurrently; either returning ends the connection.
func (c *Client) steady(ctx context.Context, conn *wire.Conn) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- c.heartbeatLoop(ctx, conn)
	}()
	go func() {
		errCh <- c.readLoop(ctx, conn)
	}()

	err := <-errCh
	return err
}

func (c *Client) heartbeatLoop(ctx context.Context, conn *wire.Conn) error {
	ticker := time.NewTicker(c.opts.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			models, err := c.inventory.fetch(ctx)
			if err != nil {
				c.opts.Logger.Warn("clientside: model inventory fetch failed", "error", err)
				models = nil
			}
			if err := conn.WriteMessage(wire.NewHeartbeat(models)); err != nil {
				return fmt.Errorf("clientside: send heartbeat: %w", err)
			}

			info := sampleSystemInfo(ctx)
			if err := conn.WriteMessage(wire.NewSystemInfo(info.CPUPercent, info.MemoryPercent, info.DiskPercent, info.ComputerName)); err != nil {
				return fmt.Errorf("clientside: send system info: %w", err)
			}
		}
	}
}

// readLoop handles inbound RequestNewProxyConn messages, dialing the
// proxy port and the local service and splicing them together, one
// goroutine per request so a slow local service never stalls the
// control connection's read loop.
func (c *Client) readLoop(ctx context.Context, conn *wire.Conn) error {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("clientside: control read failed: %w", err)
		}
		if msg.Type != wire.TypeRequestNewProxyConn {
			c.opts.Logger.Warn("clientside: unexpected message in steady state", "type", msg.Type)
			continue
		}
		pairID := msg.RequestNewProxyConn.PairID
		go c.serveProxyRequest(ctx, pairID)
	}
}

func (c *Client) serveProxyRequest(ctx context.Context, pairID string) {
	cfg := c.opts.Config
	proxyAddr := net.JoinHostPort(cfg.ServerHost, cfg.ProxyPort)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	proxyConn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", proxyAddr)
	cancel()
	if err != nil {
		c.opts.Logger.Error("clientside: failed to dial proxy port", "pair_id", pairID, "error", err)
		return
	}

	pc := wire.NewConn(proxyConn, 0)
	if err := pc.WriteMessage(wire.NewNewProxyConn(pairID)); err != nil {
		c.opts.Logger.Error("clientside: failed to announce proxy pair", "pair_id", pairID, "error", err)
		_ = proxyConn.Close()
		return
	}

	localDialCtx, localCancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	localConn, err := (&net.Dialer{}).DialContext(localDialCtx, "tcp", cfg.LocalServiceAddr)
	localCancel()
	if err != nil {
		c.opts.Logger.Error("clientside: failed to dial local service", "pair_id", pairID, "error", err)
		_ = proxyConn.Close()
		return
	}

	splice.Pipe(context.Background(), proxyConn, localConn, c.opts.Logger.With("pair_id", pairID))
}
