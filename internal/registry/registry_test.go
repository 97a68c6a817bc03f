package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/modelgate/modelgate/internal/wire"
)

type fakeWriter struct {
	mu  sync.Mutex
	got []wire.Message
}

func (f *fakeWriter) WriteMessage(m wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, m)
	return nil
}

func TestRegistry_InsertRemove(t *testing.T) {
	g := New()
	rec := NewRecord("a1", "u1", &fakeWriter{})

	assert.True(t, g.Insert("a1", rec))
	assert.False(t, g.Insert("a1", rec), "duplicate insert must fail")
	assert.Equal(t, 1, g.Len())

	g.Remove("a1")
	assert.Equal(t, 0, g.Len())
	// idempotent
	g.Remove("a1")
}

func TestRegistry_FindByModel_FirstSeenWins(t *testing.T) {
	g := New()
	a := NewRecord("a", "u", &fakeWriter{})
	b := NewRecord("b", "u", &fakeWriter{})
	a.SetModels([]wire.Model{{ID: "m1"}})
	b.SetModels([]wire.Model{{ID: "m1"}})

	g.Insert("a", a)
	g.Insert("b", b)

	id, ok := g.FindByModel("m1")
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	_, ok = g.FindByModel("missing")
	assert.False(t, ok)
}

func TestRegistry_SnapshotKeysStable(t *testing.T) {
	g := New()
	g.Insert("x", NewRecord("x", "u", &fakeWriter{}))
	g.Insert("y", NewRecord("y", "u", &fakeWriter{}))
	keys := g.SnapshotKeys()
	assert.ElementsMatch(t, []string{"x", "y"}, keys)
}

func TestRegistry_ConcurrentInsertRemove(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "c"
			rec := NewRecord(id, "u", &fakeWriter{})
			if g.Insert(id, rec) {
				g.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, g.Len())
}

func TestRecord_SendSerializesWrites(t *testing.T) {
	fw := &fakeWriter{}
	rec := NewRecord("a", "u", fw)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.Send(wire.NewHeartbeat(nil))
		}()
	}
	wg.Wait()
	assert.Len(t, fw.got, 20)
}

func TestRecord_SetModelsNilLeavesPrior(t *testing.T) {
	rec := NewRecord("a", "u", &fakeWriter{})
	rec.SetModels([]wire.Model{{ID: "m1"}})
	rec.SetModels(nil)
	assert.True(t, rec.hasModel("m1"))
}
