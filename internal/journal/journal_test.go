package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "circulation.log")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func TestJournal_AppendAndReadAll(t *testing.T) {
	j, _ := openTemp(t)
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionBookAdd, ActorID: 1, BookID: 5, At: at},
		{Action: ActionBorrow, ActorID: 2, BookID: 5, BorrowID: 9, At: at.Add(time.Minute)},
		{Action: ActionReturn, ActorID: 2, BookID: 5, BorrowID: 9, At: at.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, j.Append(e))
	}

	got, err := j.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestJournal_TailNewestFirst(t *testing.T) {
	j, _ := openTemp(t)
	for i := uint(1); i <= 5; i++ {
		require.NoError(t, j.Append(Entry{Action: ActionBorrow, BookID: i}))
	}

	got, err := j.Tail(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(5), got[0].BookID)
	assert.Equal(t, uint(4), got[1].BookID)

	all, err := j.Tail(50)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestJournal_TailNonPositiveCount(t *testing.T) {
	j, _ := openTemp(t)
	require.NoError(t, j.Append(Entry{Action: ActionBorrow, ActorID: 2, BookID: 1, BorrowID: 1, At: time.Now().UTC()}))

	for _, n := range []int{0, -1} {
		got, err := j.Tail(n)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
	}
}

func TestJournal_SkipsCorruptLines(t *testing.T) {
	j, path := openTemp(t)
	require.NoError(t, j.Append(Entry{Action: ActionBorrow, BookID: 1}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"action\":\"ret\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, j.Append(Entry{Action: ActionReturn, BookID: 1}))

	got, err := j.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ActionReturn, got[1].Action)
}

func TestJournal_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circulation.log")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(Entry{Action: ActionBookDelete, BookID: 3}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionBookDelete, got[0].Action)
}
