package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPageCursorLifecycle(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.PageCursor(1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, j.SetPageCursor(1, 2, 7))
	page, err := j.PageCursor(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, page)

	// cursors are per folder
	_, err = j.PageCursor(1, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, j.ClearPageCursor(1, 2))
	_, err = j.PageCursor(1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	// clearing an absent cursor is a no-op
	assert.NoError(t, j.ClearPageCursor(1, 2))
}

func TestClearUser(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.SetPageCursor(1, 2, 3))
	require.NoError(t, j.SetPageCursor(1, 5, 8))
	require.NoError(t, j.SetPageCursor(9, 2, 4))

	j.ClearUser(1)

	_, err := j.PageCursor(1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = j.PageCursor(1, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	// other users untouched
	page, err := j.PageCursor(9, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, page)
}
