// Package splice implements bidirectional byte copying between a
// proxy-side stream and a user-facing stream. Grounded on
// golang.org/x/sync/errgroup's join-and-propagate-first-error pattern,
// the same library llm-gateway already depends on indirectly and that
// ehrlich-b-wingthing and tombee-conductor use directly for
// supervising concurrent I/O.
package splice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/modelgate/modelgate/internal/metrics"
)

// BufferSize is the per-direction copy buffer, sized to match typical
// OS socket buffers without over-allocating per connection.
const BufferSize = 32 * 1024

// Pipe copies bytes full-duplex between a and b until either side
// closes or errors, then closes both. It never returns an error to
// the caller: failures are expected (client disconnect, backend
// reset) and are logged, not propagated, since there is no one left
// to hand an error to once the streams have matched.
func Pipe(ctx context.Context, a, b net.Conn, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defer a.Close()
	defer b.Close()

	// Whichever direction finishes first closes both streams, which
	// unblocks the other direction's pending Read.
	closeBoth := func() {
		_ = a.Close()
		_ = b.Close()
	}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer closeBoth()
		return copyDirection(a, b, "user_to_proxy")
	})
	g.Go(func() error {
		defer closeBoth()
		return copyDirection(b, a, "proxy_to_user")
	})

	if err := g.Wait(); err != nil && !isExpectedCloseErr(err) {
		logger.Debug("splice: stream ended", "error", err)
	}
}

func copyDirection(dst, src net.Conn, direction string) error {
	buf := make([]byte, BufferSize)
	n, err := io.CopyBuffer(dst, src, buf)
	if n > 0 {
		metrics.SplicedBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
	return err
}

// isExpectedCloseErr filters the ordinary "other side closed" noise
// that every splice eventually produces from genuine transport
// failures worth a louder log line. io.CopyBuffer itself returns nil
// on a clean EOF, so what remains here is mostly use-of-closed-network
// errors from the direction that lost the close race.
func isExpectedCloseErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
