// Package journal persists fine-grained crawl progress in a local
// bitcask key/value store. Unlike the archive state file, which is
// rewritten as one unit at checkpoints, the journal is updated after
// every page so an interrupted crawl resumes mid-folder.
package journal

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no cursor exists for a folder.
var ErrNotFound = errors.New("journal entry not found")

// Journal wraps the on-disk key/value store behind a mutex so the
// crawl coordinator and CLI surfaces can share it.
type Journal struct {
	sync.RWMutex
	db *bitcask.Bitcask
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close flushes and closes the underlying store.
func (j *Journal) Close() error {
	j.Lock()
	defer j.Unlock()
	return j.db.Close()
}

func cursorKey(userID, folderID int64) []byte {
	return []byte(fmt.Sprintf("cursor/%d/%d", userID, folderID))
}

// PageCursor returns the next page to fetch for a folder, or
// ErrNotFound when the folder has no in-progress crawl.
func (j *Journal) PageCursor(userID, folderID int64) (int, error) {
	j.RLock()
	defer j.RUnlock()
	raw, err := j.db.Get(cursorKey(userID, folderID))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("reading page cursor: %w", err)
	}
	page, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt page cursor %q: %w", raw, err)
	}
	return page, nil
}

// SetPageCursor records the next page to fetch for a folder.
func (j *Journal) SetPageCursor(userID, folderID int64, page int) error {
	j.Lock()
	defer j.Unlock()
	if err := j.db.Put(cursorKey(userID, folderID), []byte(strconv.Itoa(page))); err != nil {
		return fmt.Errorf("writing page cursor: %w", err)
	}
	return nil
}

// ClearPageCursor removes a folder's cursor once its crawl finishes.
func (j *Journal) ClearPageCursor(userID, folderID int64) error {
	j.Lock()
	defer j.Unlock()
	err := j.db.Delete(cursorKey(userID, folderID))
	if err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("clearing page cursor: %w", err)
	}
	return nil
}

// ClearUser removes every cursor belonging to a user, used by the user
// deletion cascade.
func (j *Journal) ClearUser(userID int64) {
	j.Lock()
	defer j.Unlock()
	prefix := []byte(fmt.Sprintf("cursor/%d/", userID))
	var stale [][]byte
	_ = j.db.Scan(prefix, func(key []byte) error {
		stale = append(stale, append([]byte(nil), key...))
		return nil
	})
	for _, key := range stale {
		if err := j.db.Delete(key); err != nil {
			log.WithError(err).Warnf("Could not delete journal key %s", key)
		}
	}
}
