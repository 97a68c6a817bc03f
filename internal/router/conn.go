package router

import (
	"bufio"
	"net"
)

// bufferedConn lets the router Peek the request head via a
// *bufio.Reader while keeping the bytes available to whatever reads
// the connection next (the splice stage, once the proxy side pairs
// up). The router never consumes user bytes itself, only peeks them:
// this is satisfied here by buffering at the application layer and
// handing the same reader downstream, rather than by a raw
// socket-level MSG_PEEK, which Go's net package does not expose
// portably.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func newBufferedConn(c net.Conn) *bufferedConn {
	return &bufferedConn{Conn: c, br: bufio.NewReaderSize(c, peekBudget)}
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.br.Read(p)
}
