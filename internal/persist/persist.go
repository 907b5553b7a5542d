// Package persist serializes the archive state as one atomic unit: a
// small header, then a gzip-compressed JSON payload, optionally sealed
// with the archive password. A state file is either fully written or
// not replaced at all.
package persist

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go-favorites-archive/internal/crypt"
	"go-favorites-archive/internal/helpers"
	"go-favorites-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrPasswordRequired is returned when loading an encrypted archive
	// without a password.
	ErrPasswordRequired = errors.New("archive is encrypted, password required")
	// ErrNotEncrypted is returned when a password is supplied for a
	// plaintext archive.
	ErrNotEncrypted = errors.New("archive is not encrypted")
	// ErrUnsupportedVersion is returned for a schema version this build
	// cannot read.
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	// ErrNotArchive is returned when the file is not an archive state
	// file at all.
	ErrNotArchive = errors.New("not an archive state file")
)

const (
	// SchemaVersion is the state file format written by this build.
	SchemaVersion = 1

	flagPlain     = 0
	flagEncrypted = 1
)

var magic = []byte("FAVARCHV")

// headerSize is magic + version byte + encryption flag byte.
var headerSize = len(magic) + 2

// Save atomically writes state to path. A non-empty password seals the
// compressed payload.
func Save(state *models.State, path, password string) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}

	payload := compressed.Bytes()
	flag := byte(flagPlain)
	if password != "" {
		flag = flagEncrypted
		if payload, err = crypt.Encrypt(payload, password); err != nil {
			return err
		}
	}

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, magic...)
	out = append(out, SchemaVersion, flag)
	out = append(out, payload...)

	if !helpers.CheckAndMakeDir(filepath.Dir(path)) {
		return fmt.Errorf("cannot create directory for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	log.Debugf("Saved archive state to %s (%s on disk)", path, helpers.BytesToSize(uint64(len(out))))
	return nil
}

// Load reads a state file written by Save. Password handling is strict
// both ways: an encrypted file without a password fails with
// ErrPasswordRequired, a plaintext file with a password fails with
// ErrNotEncrypted, and a wrong password surfaces crypt.ErrDecryption.
func Load(path, password string) (*models.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) < headerSize || !bytes.Equal(raw[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchive, path)
	}
	version, flag := raw[len(magic)], raw[len(magic)+1]
	if version != SchemaVersion {
		return nil, fmt.Errorf("%w: file is v%d, this build reads v%d", ErrUnsupportedVersion, version, SchemaVersion)
	}

	payload := raw[headerSize:]
	switch flag {
	case flagEncrypted:
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if payload, err = crypt.Decrypt(payload, password); err != nil {
			return nil, err
		}
	case flagPlain:
		if password != "" {
			return nil, ErrNotEncrypted
		}
	default:
		return nil, fmt.Errorf("%w: unknown encryption flag %d", ErrNotArchive, flag)
	}

	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decompressing state: %w", err)
	}
	defer zr.Close()
	decoded, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing state: %w", err)
	}

	state := models.NewState()
	if err := json.Unmarshal(decoded, state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	normalize(state)
	return state, nil
}

// Exists reports whether a state file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// normalize re-creates any nil maps JSON decoding left behind so the
// rest of the engine never nil-checks them.
func normalize(state *models.State) {
	if state.Users == nil {
		state.Users = make(map[int64]*models.User)
	}
	if state.Favorites == nil {
		state.Favorites = make(map[int64]map[int64]*models.Favorite)
	}
	if state.Tags == nil {
		state.Tags = make(map[int64]*models.Tag)
	}
	if state.Blobs == nil {
		state.Blobs = make(map[string]*models.Blob)
	}
	if state.ImageIndex == nil {
		state.ImageIndex = make(map[int64]string)
	}
	if state.Duplicates == nil {
		state.Duplicates = make(map[string]*models.DuplicateGroup)
	}
	if state.DuplicateIndex == nil {
		state.DuplicateIndex = make(map[string]string)
	}
	for _, userFavs := range state.Favorites {
		for _, fav := range userFavs {
			if fav.Failed == nil {
				fav.Failed = make(map[int64]*models.FailedImage)
			}
		}
	}
	for _, blob := range state.Blobs {
		if blob.Locations == nil {
			blob.Locations = make(map[string]*models.Location)
		}
	}
}
