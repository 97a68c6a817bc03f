package wire

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, 0)

	msgs := []Message{
		NewLogin("a@b.com", "pw"),
		NewLoginResult(true, "", "tok"),
		NewRegister("client-1"),
		NewHeartbeat([]Model{{ID: "m1"}}),
		NewSystemInfo(1.5, 2.5, 3.5, "box"),
		NewRequestNewProxyConn("pair-1"),
		NewNewProxyConn("pair-1"),
	}

	for _, m := range msgs {
		require.NoError(t, c.WriteMessage(m))
	}
	for _, want := range msgs {
		got, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConn_ShortReadIsFatal(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.WriteString("short")

	c := NewConn(&buf, 0)
	_, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestConn_OversizeFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 100)
	buf.Write(lenBuf[:])
	buf.Write(make([]byte, 100))

	c := NewConn(&buf, 16)
	_, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestConn_ConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf syncBuffer
	c := NewConn(&buf, 0)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.WriteMessage(NewHeartbeat([]Model{{ID: "m"}}))
		}(i)
	}
	wg.Wait()

	reader := NewConn(bytes.NewReader(buf.b.Bytes()), 0)
	for i := 0; i < n; i++ {
		_, err := reader.ReadMessage()
		require.NoError(t, err)
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Read(p)
}
