package archive

import (
	"errors"
	"fmt"
	"strings"

	"go-favorites-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownTag is returned for operations on a tag ID that does not
// exist in the tree.
var ErrUnknownTag = errors.New("unknown tag")

// walkTags visits every tag depth-first with its ID and full "a/b/c"
// path. Returning false from visit stops the walk.
func walkTags(tags map[int64]*models.Tag, prefix string, visit func(id int64, path string, tag *models.Tag) bool) bool {
	for id, tag := range tags {
		path := tag.Name
		if prefix != "" {
			path = prefix + "/" + tag.Name
		}
		if !visit(id, path, tag) {
			return false
		}
		if !walkTags(tag.Children, path, visit) {
			return false
		}
	}
	return true
}

// tagName resolves a tag ID to its full path, for the search index.
func (a *Archive) tagName(id int64) (string, bool) {
	var found string
	walkTags(a.state.Tags, "", func(tid int64, path string, _ *models.Tag) bool {
		if tid == id {
			found = path
			return false
		}
		return true
	})
	return found, found != ""
}

// findTag returns a tag node and the sibling map holding it.
func (a *Archive) findTag(id int64) (*models.Tag, map[int64]*models.Tag, bool) {
	var node *models.Tag
	var siblings map[int64]*models.Tag
	var search func(tags map[int64]*models.Tag) bool
	search = func(tags map[int64]*models.Tag) bool {
		for tid, tag := range tags {
			if tid == id {
				node, siblings = tag, tags
				return false
			}
			if !search(tag.Children) {
				return false
			}
		}
		return true
	}
	search(a.state.Tags)
	return node, siblings, node != nil
}

// nextTagID returns one past the highest ID anywhere in the tree.
func (a *Archive) nextTagID() int64 {
	var max int64
	walkTags(a.state.Tags, "", func(id int64, _ string, _ *models.Tag) bool {
		if id > max {
			max = id
		}
		return true
	})
	return max + 1
}

// AddTag creates a tag under parentID (zero means top level) and
// returns its new ID. Names cannot contain the path separator and must
// be unique among siblings, case-insensitively.
func (a *Archive) AddTag(parentID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return 0, fmt.Errorf("invalid tag name %q", name)
	}
	siblings := a.state.Tags
	if parentID != 0 {
		parent, _, ok := a.findTag(parentID)
		if !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownTag, parentID)
		}
		if parent.Children == nil {
			parent.Children = make(map[int64]*models.Tag)
		}
		siblings = parent.Children
	}
	for _, sibling := range siblings {
		if strings.EqualFold(sibling.Name, name) {
			return 0, fmt.Errorf("tag %q already exists at this level", name)
		}
	}
	id := a.nextTagID()
	siblings[id] = &models.Tag{Name: name}
	log.Infof("Created tag %q (%d)", name, id)
	return id, a.Checkpoint()
}

// RenameTag changes a tag's name, keeping sibling uniqueness.
func (a *Archive) RenameTag(id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	tag, siblings, ok := a.findTag(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTag, id)
	}
	for sid, sibling := range siblings {
		if sid != id && strings.EqualFold(sibling.Name, name) {
			return fmt.Errorf("tag %q already exists at this level", name)
		}
	}
	tag.Name = name
	return a.Checkpoint()
}

// DeleteTag removes a leaf tag and strips it from every blob. Tags with
// children must have them deleted first.
func (a *Archive) DeleteTag(id int64) error {
	tag, siblings, ok := a.findTag(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTag, id)
	}
	if len(tag.Children) > 0 {
		return fmt.Errorf("tag %q has %d child tag(s), delete them first", tag.Name, len(tag.Children))
	}
	stripped := 0
	for _, blob := range a.state.Blobs {
		if blob.Tags[id] {
			delete(blob.Tags, id)
			stripped++
		}
	}
	delete(siblings, id)
	log.Infof("Deleted tag %q (%d), stripped from %d blob(s)", tag.Name, id, stripped)
	return a.Checkpoint()
}

// TagBlob attaches a tag to a blob and reindexes it.
func (a *Archive) TagBlob(digest string, tagID int64) error {
	blob, ok := a.state.Blobs[digest]
	if !ok {
		return fmt.Errorf("unknown blob %s", digest)
	}
	if _, _, ok := a.findTag(tagID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTag, tagID)
	}
	if blob.Tags == nil {
		blob.Tags = make(map[int64]bool)
	}
	blob.Tags[tagID] = true
	if err := a.idx.IndexBlob(digest, blob, a.state, a.tagName); err != nil {
		log.WithError(err).Warnf("Could not reindex %s", digest)
	}
	return a.Checkpoint()
}

// UntagBlob detaches a tag from a blob and reindexes it.
func (a *Archive) UntagBlob(digest string, tagID int64) error {
	blob, ok := a.state.Blobs[digest]
	if !ok {
		return fmt.Errorf("unknown blob %s", digest)
	}
	delete(blob.Tags, tagID)
	if err := a.idx.IndexBlob(digest, blob, a.state, a.tagName); err != nil {
		log.WithError(err).Warnf("Could not reindex %s", digest)
	}
	return a.Checkpoint()
}

// ListTags returns every tag as (ID, full path) pairs, for the CLI.
func (a *Archive) ListTags() map[int64]string {
	out := make(map[int64]string)
	walkTags(a.state.Tags, "", func(id int64, path string, _ *models.Tag) bool {
		out[id] = path
		return true
	})
	return out
}
