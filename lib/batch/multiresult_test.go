package batch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchDefaults(t *testing.T) {
	m := New(0, Durability{})
	assert.True(t, m.AllOk())
	assert.Nil(t, m.FirstError())
	assert.Empty(t, m.Exceptions())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.Remaining())
	assert.NoError(t, m.Err())
	assert.Nil(t, m.Async())
	assert.Equal(t, Flag(0), m.Flags())
}

func TestDurabilityImpliesFlag(t *testing.T) {
	m := New(FlagQuiet, Durability{PersistTo: 1})
	assert.True(t, m.Flags().Has(FlagDurability))
	assert.True(t, m.Flags().Has(FlagQuiet))
	assert.False(t, m.Durability().CapMax())

	capped := New(0, Durability{ReplicateTo: -1})
	assert.True(t, capped.Durability().CapMax())
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "none", Flag(0).String())
	assert.Equal(t, "quiet|items", (FlagQuiet | FlagItems).String())
}

func TestNewWithItems(t *testing.T) {
	a := result.NewItem("a", "va")
	b := result.NewItem("b", "vb")

	m, err := NewWithItems([]*result.Result{a, b}, 0, Durability{})
	require.NoError(t, err)
	assert.True(t, m.Flags().Has(FlagItems|FlagUserAllocated))
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, err = NewWithItems([]*result.Result{a, result.NewItem("a", "x")}, 0, Durability{})
	assert.Error(t, err)

	_, err = NewWithItems([]*result.Result{result.NewItem("", nil)}, 0, Durability{})
	assert.Error(t, err)
}

func TestFirstErrorIsSticky(t *testing.T) {
	m := New(0, Durability{})
	first := result.New(result.KindValue, "a")
	first.Status = result.StatusKeyNotFound
	second := result.New(result.KindValue, "b")
	second.Status = result.StatusTimeout

	m.Fail()
	m.SetFirstError(first)
	m.SetFirstError(second)

	assert.False(t, m.AllOk())
	assert.Same(t, first, m.FirstError())

	var e *result.Error
	require.True(t, errors.As(m.Err(), &e))
	assert.Equal(t, result.StatusKeyNotFound, e.Status)
}

func TestPushFatal(t *testing.T) {
	m := New(0, Durability{})
	boom := errors.New("decode failed")
	m.PushFatal(boom)

	assert.False(t, m.AllOk())
	require.Len(t, m.Exceptions(), 1)
	assert.ErrorIs(t, m.Err(), boom)
}

func TestStatsAndWarnings(t *testing.T) {
	m := New(0, Durability{})
	m.AddStat("curr_items", "n1", int64(3))
	m.AddStat("curr_items", "n2", int64(5))
	m.Warn(DuplicateKeyWarning{Key: "k", Op: "get"})

	stats := m.Stats()
	assert.Equal(t, map[string]any{"n1": int64(3), "n2": int64(5)}, stats["curr_items"])

	// the returned map is a copy
	stats["curr_items"]["n3"] = 1
	assert.Len(t, m.Stats()["curr_items"], 2)

	require.Len(t, m.Warnings(), 1)
	assert.Contains(t, m.Warnings()[0].String(), `"k"`)
}

func TestBindOwner(t *testing.T) {
	m := New(0, Durability{})
	ownerA, ownerB := new(int), new(int)

	require.NoError(t, m.Bind(ownerA))
	require.NoError(t, m.Bind(ownerA))
	assert.Error(t, m.Bind(ownerB))
	assert.Same(t, ownerA, m.Owner())
}

func TestDecrementAndRelease(t *testing.T) {
	m := New(0, Durability{})
	m.Expect(2)
	assert.Equal(t, 2, m.Remaining())

	assert.Equal(t, 1, m.Decrement())
	assert.Equal(t, 0, m.Decrement())
	assert.Panics(t, func() { m.Decrement() })

	m.Release()
	m.Release()
	assert.True(t, m.Completed())
	assert.Panics(t, func() { m.Expect(1) })

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestWaitBlocksUntilRelease(t *testing.T) {
	m := New(0, Durability{})
	m.Expect(1)

	var wg sync.WaitGroup
	wg.Add(1)
	released := make(chan struct{})
	go func() {
		defer wg.Done()
		m.Wait()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("wait returned before release")
	case <-time.After(20 * time.Millisecond):
	}

	m.Decrement()
	m.Release()
	wg.Wait()
}

func TestConcurrentPut(t *testing.T) {
	m := New(0, Durability{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Put(result.New(result.KindValue, string(rune('a'+i%26))+string(rune('A'+i/26))))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())

	m.Discard(m.Keys()[0])
	assert.Equal(t, 49, m.Len())
}
