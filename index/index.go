// Package index maintains a bleve full-text index over blob metadata so
// the archive can be searched by filename, user, folder, or tag without
// walking the whole state tree.
package index

import (
	"fmt"
	"os"
	"sort"

	"go-favorites-archive/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// Item is the searchable projection of one blob.
type Item struct {
	Digest   string   `json:"digest"`
	Names    []string `json:"names"`
	Users    []string `json:"users"`
	Folders  []string `json:"folders"`
	Tags     []string `json:"tags"`
	Ext      string   `json:"ext"`
	Animated bool     `json:"animated"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Size     int64    `json:"size"`
}

// Index wraps the on-disk bleve index.
type Index struct {
	idx bleve.Index
}

// Open opens the index at path, creating it when absent.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index at %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.idx.Close()
}

// IndexBlob (re)indexes one blob. Tag IDs are resolved to names through
// resolveTag; unknown IDs are skipped.
func (i *Index) IndexBlob(digest string, blob *models.Blob, state *models.State,
	resolveTag func(int64) (string, bool)) error {
	item := Item{
		Digest:   digest,
		Ext:      blob.Ext,
		Animated: blob.Animated,
		Width:    blob.Width,
		Height:   blob.Height,
		Size:     blob.Size,
	}
	userSeen := make(map[string]bool)
	folderSeen := make(map[string]bool)
	for _, loc := range blob.Locations {
		item.Names = append(item.Names, loc.Name)
		if user, ok := state.Users[loc.UserID]; ok && !userSeen[user.Name] {
			userSeen[user.Name] = true
			item.Users = append(item.Users, user.Name)
		}
		if fav, ok := state.Favorites[loc.UserID][loc.FolderID]; ok && !folderSeen[fav.Name] {
			folderSeen[fav.Name] = true
			item.Folders = append(item.Folders, fav.Name)
		}
	}
	for tagID := range blob.Tags {
		if name, ok := resolveTag(tagID); ok {
			item.Tags = append(item.Tags, name)
		}
	}
	sort.Strings(item.Names)
	sort.Strings(item.Tags)
	return i.idx.Index(digest, item)
}

// Remove drops a blob from the index.
func (i *Index) Remove(digest string) error {
	return i.idx.Delete(digest)
}

// Rebuild reindexes every blob in state from scratch.
func (i *Index) Rebuild(state *models.State, resolveTag func(int64) (string, bool)) error {
	batch := i.idx.NewBatch()
	count := 0
	for digest, blob := range state.Blobs {
		item := Item{Digest: digest, Ext: blob.Ext, Animated: blob.Animated,
			Width: blob.Width, Height: blob.Height, Size: blob.Size}
		for _, loc := range blob.Locations {
			item.Names = append(item.Names, loc.Name)
			if user, ok := state.Users[loc.UserID]; ok {
				item.Users = append(item.Users, user.Name)
			}
			if fav, ok := state.Favorites[loc.UserID][loc.FolderID]; ok {
				item.Folders = append(item.Folders, fav.Name)
			}
		}
		for tagID := range blob.Tags {
			if name, ok := resolveTag(tagID); ok {
				item.Tags = append(item.Tags, name)
			}
		}
		if err := batch.Index(digest, item); err != nil {
			return fmt.Errorf("indexing blob %s: %w", digest, err)
		}
		count++
	}
	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("applying index batch: %w", err)
	}
	log.Infof("Search index rebuilt with %d blob(s)", count)
	return nil
}

// Search runs a query-string search and returns matching digests in
// score order.
func (i *Index) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	result, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	digests := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		digests = append(digests, hit.ID)
	}
	return digests, nil
}

// Destroy removes the index directory entirely so a rebuild starts
// from an empty index instead of layering over stale entries.
func Destroy(path string) error {
	return os.RemoveAll(path)
}
