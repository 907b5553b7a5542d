// Package store implements the content-addressable blob store: unique
// content keyed by BLAKE3 digest, with per-occurrence location records
// layered on top. All writes are atomic (temp file plus rename) so a
// crash never leaves a partial blob behind.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-favorites-archive/internal/crypt"
	"go-favorites-archive/internal/helpers"
	"go-favorites-archive/internal/media"
	"go-favorites-archive/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	// ErrCorruptContent is returned when bytes cannot be ingested as an
	// image.
	ErrCorruptContent = errors.New("content is corrupt or not an image")
	// ErrIOFailure is returned when the blob or thumbnail file cannot
	// be written or read.
	ErrIOFailure = errors.New("blob store I/O failure")
	// ErrUnknownBlob is returned for operations on a digest the store
	// does not hold.
	ErrUnknownBlob = errors.New("unknown blob digest")
)

const (
	blobDirName  = "blobs"
	thumbDirName = "thumbs"
)

// Store manages blob content files and the blob/location portion of the
// archive state. It is not safe for concurrent mutation; the archive
// coordinator serializes access.
type Store struct {
	state    *models.State
	root     string
	password string

	hasher media.Hasher
	thumbs media.Thumbnailer

	now func() int64
}

// New builds a Store rooted at root. A non-empty password encrypts
// blob and thumbnail files at rest.
func New(state *models.State, root, password string) (*Store, error) {
	s := &Store{
		state:    state,
		root:     root,
		password: password,
		hasher:   media.StdHasher{},
		thumbs:   media.StdThumbnailer{},
		now:      func() int64 { return time.Now().Unix() },
	}
	for _, dir := range []string{filepath.Join(root, blobDirName), filepath.Join(root, thumbDirName)} {
		if !helpers.CheckAndMakeDir(dir) {
			return nil, fmt.Errorf("%w: cannot create %s", ErrIOFailure, dir)
		}
	}
	return s, nil
}

// Digest computes the content digest used as blob identity.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BlobPath returns the on-disk path for a blob's content file.
func (s *Store) BlobPath(digest string) string {
	return filepath.Join(s.root, blobDirName, digest[:2], digest)
}

// ThumbPath returns the on-disk path for a blob's thumbnail file.
func (s *Store) ThumbPath(digest string) string {
	return filepath.Join(s.root, thumbDirName, digest[:2], digest)
}

// Ingest stores content bytes for one (user, folder, image) occurrence
// and returns the content digest. Re-ingesting known bytes only adds a
// location entry; identical content is never written twice. The
// returned isNew flag reports whether the content itself was new.
func (s *Store) Ingest(data []byte, userID, folderID, imageID int64, name string) (digest string, isNew bool, err error) {
	if len(data) == 0 {
		return "", false, fmt.Errorf("%w: empty content", ErrCorruptContent)
	}
	digest = Digest(data)
	locKey := models.LocationKey(userID, folderID, imageID)
	cleanName := helpers.SanitizeFilename(name)

	if blob, ok := s.state.Blobs[digest]; ok {
		s.addLocation(blob, digest, locKey, userID, folderID, imageID, cleanName)
		// content is demonstrably back, any gone marker for this image
		// is stale
		delete(blob.Gone, imageID)
		s.state.ImageIndex[imageID] = digest
		return digest, false, nil
	}

	hashes, err := s.hasher.Compute(data)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrCorruptContent, err)
	}
	thumb, err := s.thumbs.Thumbnail(data)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrCorruptContent, err)
	}

	if err := s.writeFile(s.BlobPath(digest), data); err != nil {
		return "", false, err
	}
	if err := s.writeFile(s.ThumbPath(digest), thumb); err != nil {
		return "", false, err
	}

	blob := &models.Blob{
		Locations: make(map[string]*models.Location),
		Size:      int64(len(data)),
		ThumbSize: int64(len(thumb)),
		Ext:       helpers.NormalizeExtension(filepath.Ext(cleanName)),
		Percept:   hashes.Percept,
		Average:   hashes.Average,
		Diff:      hashes.Diff,
		Wavelet:   hashes.Wavelet,
		Embedding: hashes.Embedding,
		Width:     hashes.Width,
		Height:    hashes.Height,
		Animated:  hashes.Animated,
		Date:      s.now(),
	}
	s.state.Blobs[digest] = blob
	s.addLocation(blob, digest, locKey, userID, folderID, imageID, cleanName)
	s.state.ImageIndex[imageID] = digest
	log.WithField("digest", digest).Debugf("Stored new blob (%s)", helpers.BytesToSize(uint64(blob.Size)))
	return digest, true, nil
}

// addLocation records one occurrence on a blob. An occurrence already
// present keeps its verdict; new occurrences start as "new".
func (s *Store) addLocation(blob *models.Blob, digest, locKey string, userID, folderID, imageID int64, name string) {
	if _, ok := blob.Locations[locKey]; ok {
		return
	}
	blob.Locations[locKey] = &models.Location{
		UserID:   userID,
		FolderID: folderID,
		ImageID:  imageID,
		Name:     name,
		Verdict:  models.VerdictNew,
	}
}

// AddKnownLocation links an already-stored digest to a new occurrence
// without re-reading content, used when a listing repeats an image ID
// the index already maps.
func (s *Store) AddKnownLocation(digest string, userID, folderID, imageID int64, name string) error {
	blob, ok := s.state.Blobs[digest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlob, digest)
	}
	s.addLocation(blob, digest, models.LocationKey(userID, folderID, imageID),
		userID, folderID, imageID, helpers.SanitizeFilename(name))
	s.state.ImageIndex[imageID] = digest
	return nil
}

// RemoveLocation detaches one occurrence from a blob. The returned flag
// reports whether the blob is now orphaned (zero locations); orphans
// stay in place until SweepOrphans runs.
func (s *Store) RemoveLocation(digest string, userID, folderID, imageID int64) (orphaned bool, err error) {
	blob, ok := s.state.Blobs[digest]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBlob, digest)
	}
	delete(blob.Locations, models.LocationKey(userID, folderID, imageID))

	// the image ID index entry survives only if another location still
	// uses this image ID
	stillUsed := false
	for _, loc := range blob.Locations {
		if loc.ImageID == imageID {
			stillUsed = true
			break
		}
	}
	if !stillUsed {
		delete(s.state.ImageIndex, imageID)
		delete(blob.Gone, imageID)
	}
	return len(blob.Locations) == 0, nil
}

// MarkGone records that an image ID of a blob no longer resolves
// remotely, at the given audit depth. Soft and reversible.
func (s *Store) MarkGone(digest string, imageID int64, level int, url string) error {
	blob, ok := s.state.Blobs[digest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlob, digest)
	}
	if blob.Gone == nil {
		blob.Gone = make(map[int64]*models.GoneEntry)
	}
	blob.Gone[imageID] = &models.GoneEntry{Timestamp: s.now(), Level: level, URL: url}
	return nil
}

// ClearGone removes a gone marker after the image resolves again.
func (s *Store) ClearGone(digest string, imageID int64) {
	if blob, ok := s.state.Blobs[digest]; ok {
		delete(blob.Gone, imageID)
	}
}

// Lookup returns the blob for a digest.
func (s *Store) Lookup(digest string) (*models.Blob, bool) {
	blob, ok := s.state.Blobs[digest]
	return blob, ok
}

// LookupByImageID maps an image ID through the reverse index.
func (s *Store) LookupByImageID(imageID int64) (digest string, blob *models.Blob, ok bool) {
	digest, ok = s.state.ImageIndex[imageID]
	if !ok {
		return "", nil, false
	}
	blob, ok = s.state.Blobs[digest]
	return digest, blob, ok
}

// GetBlobBytes reads (and if necessary decrypts) a blob's content file.
func (s *Store) GetBlobBytes(digest string) ([]byte, error) {
	if _, ok := s.state.Blobs[digest]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlob, digest)
	}
	return s.readFile(s.BlobPath(digest))
}

// GetThumbBytes reads (and if necessary decrypts) a blob's thumbnail.
func (s *Store) GetThumbBytes(digest string) ([]byte, error) {
	if _, ok := s.state.Blobs[digest]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlob, digest)
	}
	return s.readFile(s.ThumbPath(digest))
}

// SweepOrphans deletes content and thumbnail files for blobs with no
// remaining locations and drops them from the state. Returns the
// digests removed.
func (s *Store) SweepOrphans() []string {
	var removed []string
	for digest, blob := range s.state.Blobs {
		if len(blob.Locations) > 0 {
			continue
		}
		for _, path := range []string{s.BlobPath(digest), s.ThumbPath(digest)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.WithError(err).Warnf("Could not remove orphan file %s", path)
			}
		}
		delete(s.state.Blobs, digest)
		removed = append(removed, digest)
	}
	if len(removed) > 0 {
		log.Infof("Swept %d orphaned blob(s)", len(removed))
	}
	return removed
}

func (s *Store) writeFile(path string, data []byte) error {
	if s.password != "" {
		sealed, err := crypt.Encrypt(data, s.password)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		data = sealed
	}
	if !helpers.CheckAndMakeDir(filepath.Dir(path)) {
		return fmt.Errorf("%w: cannot create %s", ErrIOFailure, filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIOFailure, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s: %v", ErrIOFailure, tmp, err)
	}
	return nil
}

func (s *Store) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIOFailure, path, err)
	}
	if s.password != "" {
		plain, err := crypt.Decrypt(data, s.password)
		if err != nil {
			return nil, err
		}
		return plain, nil
	}
	return data, nil
}
