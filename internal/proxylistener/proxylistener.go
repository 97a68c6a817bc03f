// Package proxylistener implements the proxy port's accept loop: read
// one NewProxyConn{pair_id}, look the id up in the pairing table, and
// hand both streams to the splice stage. Grounded on llm-gateway's
// Shutdown/wg.Wait accept-loop lifecycle (internal/proxy/handler.go's
// sync.WaitGroup of in-flight async tasks), generalized from HTTP
// request goroutines to one goroutine per accepted proxy connection.
package proxylistener

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/pairing"
	"github.com/modelgate/modelgate/internal/splice"
	"github.com/modelgate/modelgate/internal/wire"
)

// bufferedConn hands the splice stage the same buffered reader used to
// read the NewProxyConn frame, so any bytes the OS delivered past that
// single frame (and already sitting in wire.Conn's internal
// bufio.Reader) are not silently dropped, mirroring how
// internal/router's bufferedConn preserves peeked-but-unconsumed bytes
// on the public side.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

type Listener struct {
	pairing *pairing.Table
	logger  *slog.Logger

	wg sync.WaitGroup
}

func New(pairing *pairing.Table, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{pairing: pairing, logger: logger}
}

// Serve runs the accept loop until ln.Accept fails or ctx is
// cancelled (the latter by closing ln from the caller, following
// llm-gateway's pattern of relying on listener Close to unblock Accept).
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wg.Wait()
				return ctx.Err()
			}
			return err
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleOne(conn)
		}()
	}
}

// handleOne runs the match-or-reject sequence for a single accepted
// connection.
func (l *Listener) handleOne(conn net.Conn) {
	wc := wire.NewConn(conn, 0)
	msg, err := wc.ReadMessage()
	if err != nil {
		l.logger.Warn("proxy listener: failed to read first message", "error", err)
		_ = conn.Close()
		return
	}
	if msg.Type != wire.TypeNewProxyConn {
		l.logger.Warn("proxy listener: unexpected first message", "type", msg.Type)
		_ = conn.Close()
		return
	}

	pairID := msg.NewProxyConn.PairID
	userStream, ok := l.pairing.Take(pairID)
	if !ok {
		l.logger.Warn("proxy listener: unknown or already-consumed pair_id", "pair_id", pairID)
		_ = conn.Close()
		return
	}
	metrics.PendingPairs.Dec()

	bc := &bufferedConn{Conn: conn, r: wc.Reader()}
	splice.Pipe(context.Background(), bc, userStream, l.logger.With("pair_id", pairID))
}

// Shutdown waits for all in-flight spliced connections to finish
// being handed off, mirroring llm-gateway's Handler.Shutdown.
func (l *Listener) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
