// Package archive ties the engine together behind one handle: the
// state tree, blob store, crawl tracker, duplicate engine, resume
// journal, search index, and the remote gallery source. All state
// mutation funnels through this package from a single goroutine; the
// worker pool underneath only ever touches the network.
package archive

import (
	"fmt"
	"path/filepath"
	"time"

	"go-favorites-archive/index"
	"go-favorites-archive/internal/config"
	"go-favorites-archive/internal/crawl"
	"go-favorites-archive/internal/dupes"
	"go-favorites-archive/internal/gallery"
	"go-favorites-archive/internal/journal"
	"go-favorites-archive/internal/models"
	"go-favorites-archive/internal/persist"
	"go-favorites-archive/internal/store"

	log "github.com/sirupsen/logrus"
)

const stateFileName = "archive.state"

// Archive is the top-level handle over one on-disk archive.
type Archive struct {
	cfg       models.Config
	password  string
	indexPath string

	state   *models.State
	store   *store.Store
	tracker *crawl.Tracker
	dupes   *dupes.Engine
	journal *journal.Journal
	idx     *index.Index
	fetcher *gallery.Fetcher
	source  gallery.Source

	progress func(stage string, done, total int)
}

// OnProgress registers a callback invoked as long operations advance,
// for live CLI display. Called from the coordinator goroutine only.
func (a *Archive) OnProgress(fn func(stage string, done, total int)) {
	a.progress = fn
}

func (a *Archive) reportProgress(stage string, done, total int) {
	if a.progress != nil {
		a.progress(stage, done, total)
	}
}

// Open loads (or initializes) the archive rooted at cfg.ArchivePath.
// The password rules are strict: opening an encrypted archive without
// one fails, as does passing one for a plaintext archive.
func Open(cfg models.Config, password string, source gallery.Source) (*Archive, error) {
	config.ApplyDefaults(&cfg)
	statePath := filepath.Join(cfg.ArchivePath, stateFileName)
	var state *models.State
	if persist.Exists(statePath) {
		var err error
		if state, err = persist.Load(statePath, password); err != nil {
			return nil, err
		}
		log.Infof("Loaded archive with %d blob(s) across %d user(s)", len(state.Blobs), len(state.Users))
	} else {
		state = models.NewState()
		log.Infof("Initializing new archive at %s", cfg.ArchivePath)
	}

	st, err := store.New(state, cfg.ArchivePath, password)
	if err != nil {
		return nil, err
	}
	jnl, err := journal.Open(filepath.Join(cfg.ArchivePath, "journal"))
	if err != nil {
		return nil, err
	}
	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(cfg.ArchivePath, "search.bleve")
	}
	idx, err := index.Open(indexPath)
	if err != nil {
		jnl.Close()
		return nil, err
	}

	return &Archive{
		cfg:       cfg,
		password:  password,
		indexPath: indexPath,
		state:     state,
		store:     st,
		tracker: crawl.New(state, st,
			time.Duration(cfg.RefreshHours)*time.Hour,
			time.Duration(cfg.AuditRefreshHours)*time.Hour),
		dupes:   dupes.New(state),
		journal: jnl,
		idx:     idx,
		fetcher: gallery.NewFetcher(cfg.FetchRatePerSec,
			time.Duration(cfg.FetchTimeoutSec)*time.Second, cfg.MaxRetries),
		source: source,
	}, nil
}

// Close checkpoints the state and releases the journal and index.
func (a *Archive) Close() error {
	err := a.Checkpoint()
	if jerr := a.journal.Close(); err == nil {
		err = jerr
	}
	if ierr := a.idx.Close(); err == nil {
		err = ierr
	}
	return err
}

// Checkpoint atomically persists the state tree.
func (a *Archive) Checkpoint() error {
	return persist.Save(a.state, filepath.Join(a.cfg.ArchivePath, stateFileName), a.password)
}

// State exposes the state tree read-only for reporting surfaces.
func (a *Archive) State() *models.State { return a.state }

// Store exposes the blob store for read paths (blob/thumbnail bytes).
func (a *Archive) Store() *store.Store { return a.store }

// RunDetection re-runs duplicate detection, after first resetting
// vacuous identical-location verdicts, and reports run statistics.
func (a *Archive) RunDetection() (dupes.Stats, error) {
	a.dupes.NormalizeIdenticalVerdicts()
	stats, err := a.dupes.RunDetection()
	if err != nil {
		return stats, err
	}
	return stats, a.Checkpoint()
}

// SetVerdict records a decision on a duplicate-group member.
func (a *Archive) SetVerdict(groupKey, digest string, verdict models.Verdict) error {
	if err := a.dupes.SetVerdict(groupKey, digest, verdict); err != nil {
		return err
	}
	return a.Checkpoint()
}

// SetLocationVerdict records a decision on an identical-content
// occurrence.
func (a *Archive) SetLocationVerdict(digest string, userID, folderID, imageID int64, verdict models.Verdict) error {
	if err := a.dupes.SetLocationVerdict(digest, userID, folderID, imageID, verdict); err != nil {
		return err
	}
	return a.Checkpoint()
}

// SetSensitivities replaces the detection threshold profiles after
// validating them.
func (a *Archive) SetSensitivities(cfg models.DetectionConfig) error {
	if err := dupes.ValidateSensitivities(cfg); err != nil {
		return err
	}
	a.state.Detection = cfg
	return a.Checkpoint()
}

// Search queries the full-text index and returns matching digests.
func (a *Archive) Search(query string, limit int) ([]string, error) {
	return a.idx.Search(query, limit)
}

// RebuildIndex drops the search index and reindexes every blob from
// the state tree, so entries for content that no longer exists do not
// linger.
func (a *Archive) RebuildIndex() error {
	if err := a.idx.Close(); err != nil {
		return fmt.Errorf("closing index for rebuild: %w", err)
	}
	if err := index.Destroy(a.indexPath); err != nil {
		return fmt.Errorf("removing stale index: %w", err)
	}
	idx, err := index.Open(a.indexPath)
	if err != nil {
		return err
	}
	a.idx = idx
	return a.idx.Rebuild(a.state, a.tagName)
}

// DeleteAlbum removes a folder and every location it contributed.
// Blobs left with no locations are swept from disk and trimmed out of
// the duplicate registry.
func (a *Archive) DeleteAlbum(userID, folderID int64) error {
	fav, ok := a.state.Favorites[userID][folderID]
	if !ok {
		return fmt.Errorf("unknown folder %d/%d", userID, folderID)
	}
	for _, imageID := range fav.Images {
		digest, ok := a.state.ImageIndex[imageID]
		if !ok {
			continue
		}
		orphaned, err := a.store.RemoveLocation(digest, userID, folderID, imageID)
		if err != nil {
			log.WithError(err).Warnf("Detaching image %d from %s", imageID, digest)
			continue
		}
		if orphaned {
			a.dupes.TrimDeletedBlob(digest)
			if err := a.idx.Remove(digest); err != nil {
				log.WithError(err).Warnf("Could not unindex %s", digest)
			}
		}
	}
	a.store.SweepOrphans()
	delete(a.state.Favorites[userID], folderID)
	if err := a.journal.ClearPageCursor(userID, folderID); err != nil {
		log.WithError(err).Warn("Could not clear folder cursor")
	}
	log.Infof("Deleted folder %q (%d/%d)", fav.Name, userID, folderID)
	return a.Checkpoint()
}

// DeleteUser removes a user and all their folders.
func (a *Archive) DeleteUser(userID int64) error {
	user, ok := a.state.Users[userID]
	if !ok {
		return fmt.Errorf("unknown user %d", userID)
	}
	folderIDs := make([]int64, 0, len(a.state.Favorites[userID]))
	for folderID := range a.state.Favorites[userID] {
		folderIDs = append(folderIDs, folderID)
	}
	for _, folderID := range folderIDs {
		if err := a.DeleteAlbum(userID, folderID); err != nil {
			return err
		}
	}
	delete(a.state.Favorites, userID)
	delete(a.state.Users, userID)
	a.journal.ClearUser(userID)
	log.Infof("Deleted user %q (%d)", user.Name, userID)
	return a.Checkpoint()
}
