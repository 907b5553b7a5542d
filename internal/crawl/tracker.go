// Package crawl tracks per-folder crawl progress: freshness windows,
// ordered image lists, failed-image retry sets, and the audit
// bookkeeping over known blobs. It mutates archive state only; all
// network work happens in the caller.
package crawl

import (
	"fmt"
	"time"

	"go-favorites-archive/internal/models"
	"go-favorites-archive/internal/store"

	log "github.com/sirupsen/logrus"
)

// Tracker maintains the crawl portion of the archive state. Like the
// blob store it assumes a single mutating caller.
type Tracker struct {
	state *models.State
	store *store.Store

	refresh      time.Duration // folder freshness window
	auditRefresh time.Duration // per-image audit hysteresis

	now func() int64
}

// New builds a Tracker with the given freshness windows.
func New(state *models.State, st *store.Store, refresh, auditRefresh time.Duration) *Tracker {
	return &Tracker{
		state:        state,
		store:        st,
		refresh:      refresh,
		auditRefresh: auditRefresh,
		now:          func() int64 { return time.Now().Unix() },
	}
}

// EnsureUser registers a user if unknown and returns its record.
func (t *Tracker) EnsureUser(userID int64, name string) *models.User {
	user, ok := t.state.Users[userID]
	if !ok {
		user = &models.User{Name: name}
		t.state.Users[userID] = user
		t.state.Favorites[userID] = make(map[int64]*models.Favorite)
		log.Infof("Registered user %s (%d)", name, userID)
	} else if name != "" && user.Name != name {
		user.Name = name
	}
	return user
}

// EnsureFolder registers a favorites folder if unknown and returns it.
func (t *Tracker) EnsureFolder(userID, folderID int64, name string) *models.Favorite {
	if _, ok := t.state.Favorites[userID]; !ok {
		t.state.Favorites[userID] = make(map[int64]*models.Favorite)
	}
	fav, ok := t.state.Favorites[userID][folderID]
	if !ok {
		fav = &models.Favorite{Name: name, Failed: make(map[int64]*models.FailedImage)}
		t.state.Favorites[userID][folderID] = fav
		log.Infof("Registered folder %q (%d) for user %d", name, folderID, userID)
	} else if name != "" && fav.Name != name {
		fav.Name = name
	}
	return fav
}

// Folder returns a known folder record.
func (t *Tracker) Folder(userID, folderID int64) (*models.Favorite, error) {
	fav, ok := t.state.Favorites[userID][folderID]
	if !ok {
		return nil, fmt.Errorf("unknown folder %d/%d", userID, folderID)
	}
	return fav, nil
}

// Resume describes where a folder crawl should pick up.
type Resume struct {
	// Fresh means the folder finished recently with no failures and can
	// be skipped outright.
	Fresh bool
	// Known holds the image IDs already recorded, in site order.
	Known []int64
	// Retry holds the image IDs whose last ingest failed.
	Retry []int64
}

// BeginFolder decides whether a folder crawl is due. A folder is fresh
// when it finished within the refresh window and carries no failed
// images; force overrides the window but never the failed-image check
// (failures always re-run).
func (t *Tracker) BeginFolder(userID, folderID int64, force bool) (Resume, error) {
	fav, err := t.Folder(userID, folderID)
	if err != nil {
		return Resume{}, err
	}
	res := Resume{Known: fav.Images}
	for id := range fav.Failed {
		res.Retry = append(res.Retry, id)
	}
	if !force && len(fav.Failed) == 0 && fav.DateBlobs > 0 &&
		t.now()-fav.DateBlobs < int64(t.refresh.Seconds()) {
		res.Fresh = true
		log.Debugf("Folder %d/%d is fresh, skipping", userID, folderID)
	}
	return res, nil
}

// RecordPage appends a page's image IDs to the folder's ordered list,
// suppressing IDs already present. Idempotent: replaying a page is a
// no-op. Pages is a high-water mark and never shrinks here.
func (t *Tracker) RecordPage(userID, folderID int64, page int, imageIDs []int64) (added []int64, err error) {
	fav, err := t.Folder(userID, folderID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(fav.Images))
	for _, id := range fav.Images {
		seen[id] = true
	}
	for _, id := range imageIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		fav.Images = append(fav.Images, id)
		added = append(added, id)
	}
	if page+1 > fav.Pages {
		fav.Pages = page + 1
	}
	return added, nil
}

// Result is the outcome of processing one image of a folder crawl.
type Result interface{ isResult() }

type (
	// Ingested reports a successful download stored under Digest.
	Ingested struct{ Digest string }
	// Skipped reports content already known; only a location was added.
	Skipped struct{ Digest string }
	// Failed reports a download failure to retry on the next run.
	Failed struct {
		Reason error
		Name   string
		URL    string
	}
)

func (Ingested) isResult() {}
func (Skipped) isResult()  {}
func (Failed) isResult()   {}

// RecordImageResult updates the folder's failed set from one image
// outcome. Success of any kind clears a previous failure.
func (t *Tracker) RecordImageResult(userID, folderID, imageID int64, result Result) error {
	fav, err := t.Folder(userID, folderID)
	if err != nil {
		return err
	}
	if fav.Failed == nil {
		fav.Failed = make(map[int64]*models.FailedImage)
	}
	switch r := result.(type) {
	case Ingested, Skipped:
		delete(fav.Failed, imageID)
	case Failed:
		fav.Failed[imageID] = &models.FailedImage{
			ImageID:   imageID,
			Timestamp: t.now(),
			Name:      r.Name,
			URL:       r.URL,
		}
		log.WithError(r.Reason).Warnf("Image %d in folder %d/%d failed", imageID, userID, folderID)
	default:
		return fmt.Errorf("unknown crawl result %T", result)
	}
	return nil
}

// FinishFolder marks a folder crawl complete. The finished timestamp
// only advances when no failed images remain, so a folder with
// outstanding failures stays due for another pass.
func (t *Tracker) FinishFolder(userID, folderID int64) (clean bool, err error) {
	fav, err := t.Folder(userID, folderID)
	if err != nil {
		return false, err
	}
	if len(fav.Failed) > 0 {
		log.Warnf("Folder %d/%d finished with %d failed image(s), not marking fresh",
			userID, folderID, len(fav.Failed))
		return false, nil
	}
	fav.DateBlobs = t.now()
	return true, nil
}

// MarkAlbumsListed records a successful album-list fetch for a user.
func (t *Tracker) MarkAlbumsListed(userID int64) {
	if user, ok := t.state.Users[userID]; ok {
		user.DateAlbums = t.now()
	}
}

// MarkUserFinished advances the user's finished timestamp when every
// folder is clean.
func (t *Tracker) MarkUserFinished(userID int64) bool {
	user, ok := t.state.Users[userID]
	if !ok {
		return false
	}
	for _, fav := range t.state.Favorites[userID] {
		if len(fav.Failed) > 0 || fav.DateBlobs == 0 {
			return false
		}
	}
	user.DateFinished = t.now()
	return true
}

// AuditDue reports whether a blob should be re-checked: its last
// confirmed download is outside the audit hysteresis window.
func (t *Tracker) AuditDue(blob *models.Blob) bool {
	return t.now()-blob.Date >= int64(t.auditRefresh.Seconds())
}

// RecordAuditSuccess clears any gone marker for the image and bumps the
// blob's confirmation date.
func (t *Tracker) RecordAuditSuccess(digest string, imageID int64) {
	t.store.ClearGone(digest, imageID)
	if blob, ok := t.store.Lookup(digest); ok {
		blob.Date = t.now()
	}
}

// RecordAuditFailure marks the image gone at the failure depth reached.
func (t *Tracker) RecordAuditFailure(digest string, imageID int64, level int, url string) error {
	return t.store.MarkGone(digest, imageID, level, url)
}

// MarkUserAudited records a completed audit pass for a user.
func (t *Tracker) MarkUserAudited(userID int64) {
	if user, ok := t.state.Users[userID]; ok {
		user.DateAudit = t.now()
	}
}
