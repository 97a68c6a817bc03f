package pairing

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pipeConn() net.Conn {
	a, _ := net.Pipe()
	return a
}

func TestTable_InsertTakeRemove(t *testing.T) {
	tbl := New()
	c := pipeConn()
	defer c.Close()

	tbl.Insert("p1", c)
	assert.Equal(t, 1, tbl.Len())

	got, ok := tbl.Take("p1")
	assert.True(t, ok)
	assert.Equal(t, c, got)
	assert.Equal(t, 0, tbl.Len())

	// second take fails: each pair_id is used at most once.
	_, ok = tbl.Take("p1")
	assert.False(t, ok)
}

func TestTable_RemoveOnWriteFailure(t *testing.T) {
	tbl := New()
	c := pipeConn()
	defer c.Close()
	tbl.Insert("p1", c)
	tbl.Remove("p1")
	_, ok := tbl.Take("p1")
	assert.False(t, ok)
}

func TestTable_EvictOlderThan(t *testing.T) {
	tbl := New()
	c := pipeConn()
	tbl.Insert("stale", c)

	time.Sleep(5 * time.Millisecond)
	n := tbl.EvictOlderThan(1 * time.Millisecond)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_NoLeakAfterSteadyState(t *testing.T) {
	tbl := New()
	for i := 0; i < 10; i++ {
		c := pipeConn()
		tbl.Insert("p", c)
		_, ok := tbl.Take("p")
		assert.True(t, ok)
		c.Close()
	}
	assert.Equal(t, 0, tbl.Len())
}
