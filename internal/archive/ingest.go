package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-favorites-archive/internal/crawl"
	"go-favorites-archive/internal/gallery"
	"go-favorites-archive/internal/journal"
	"go-favorites-archive/internal/models"
	"go-favorites-archive/internal/store"

	log "github.com/sirupsen/logrus"
)

// pageBacktrackingThreshold bounds how many consecutive all-known pages
// an incremental crawl reads before concluding nothing new was added.
// Favorites append at the front, so once this many pages in a row show
// only known images the rest of the folder is unchanged.
const pageBacktrackingThreshold = 5

// fetchJob is one image handed to the download pool.
type fetchJob struct {
	imageID int64
}

// fetchOutcome is what a worker reports back to the coordinator. Only
// the coordinator mutates state.
type fetchOutcome struct {
	imageID int64
	data    []byte
	name    string
	url     string
	err     error
}

// AddUser resolves a user name remotely and registers it.
func (a *Archive) AddUser(ctx context.Context, name string) (int64, error) {
	userID, err := a.source.LookupUser(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("looking up user %q: %w", name, err)
	}
	a.tracker.EnsureUser(userID, name)
	return userID, a.Checkpoint()
}

// IngestUser refreshes the user's folder list and crawls every folder.
func (a *Archive) IngestUser(ctx context.Context, userID int64, force bool) error {
	user, ok := a.state.Users[userID]
	if !ok {
		return fmt.Errorf("unknown user %d", userID)
	}
	folders, err := a.source.ListFolders(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing folders for %q: %w", user.Name, err)
	}
	for folderID, name := range folders {
		a.tracker.EnsureFolder(userID, folderID, name)
	}
	a.tracker.MarkAlbumsListed(userID)

	for folderID := range a.state.Favorites[userID] {
		if err := a.IngestFolder(ctx, userID, folderID, force); err != nil {
			return err
		}
	}
	if a.tracker.MarkUserFinished(userID) {
		log.Infof("All folders of %q are clean and fresh", user.Name)
	}
	return a.Checkpoint()
}

// IngestFolder crawls one favorites folder: lists pages from the
// journal cursor, then downloads every image not yet archived through
// the worker pool, checkpointing along the way. Safe to interrupt at
// any point; the next run resumes from the cursor and the failed set.
func (a *Archive) IngestFolder(ctx context.Context, userID, folderID int64, force bool) error {
	resume, err := a.tracker.BeginFolder(userID, folderID, force)
	if err != nil {
		return err
	}
	if resume.Fresh {
		return nil
	}
	fav, _ := a.tracker.Folder(userID, folderID)
	log.Infof("Crawling folder %q (%d/%d), %d image(s) known, %d to retry",
		fav.Name, userID, folderID, len(resume.Known), len(resume.Retry))

	if err := a.listPages(ctx, userID, folderID); err != nil {
		return err
	}

	pending := a.pendingImages(userID, folderID)
	if len(pending) > 0 {
		if err := a.downloadAll(ctx, userID, folderID, pending); err != nil {
			return err
		}
	}

	clean, err := a.tracker.FinishFolder(userID, folderID)
	if err != nil {
		return err
	}
	if clean {
		if err := a.journal.ClearPageCursor(userID, folderID); err != nil {
			log.WithError(err).Warn("Could not clear folder cursor")
		}
	}
	return a.Checkpoint()
}

// listPages walks the folder's listing from the journal cursor,
// recording image IDs and advancing the cursor after every page.
func (a *Archive) listPages(ctx context.Context, userID, folderID int64) error {
	fav, err := a.tracker.Folder(userID, folderID)
	if err != nil {
		return err
	}
	page, err := a.journal.PageCursor(userID, folderID)
	if err != nil {
		if !errors.Is(err, journal.ErrNotFound) {
			return err
		}
		page = 0
	}
	incremental := fav.DateBlobs > 0 && page == 0

	allKnownStreak := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		imageIDs, err := a.source.ListPage(ctx, userID, folderID, page)
		if err != nil {
			if errors.Is(err, gallery.ErrEndOfPages) {
				break
			}
			return fmt.Errorf("listing page %d of %d/%d: %w", page, userID, folderID, err)
		}
		added, err := a.tracker.RecordPage(userID, folderID, page, imageIDs)
		if err != nil {
			return err
		}
		if err := a.journal.SetPageCursor(userID, folderID, page+1); err != nil {
			return err
		}
		log.Debugf("Page %d of %d/%d: %d image(s), %d new", page, userID, folderID, len(imageIDs), len(added))

		if incremental {
			if len(added) == 0 && len(imageIDs) > 0 {
				allKnownStreak++
				if allKnownStreak >= pageBacktrackingThreshold {
					log.Debugf("%d consecutive all-known pages, stopping listing early", allKnownStreak)
					break
				}
			} else {
				allKnownStreak = 0
			}
		}
		page++
	}
	return nil
}

// pendingImages returns the folder members that still need work:
// previously failed images plus anything never archived.
func (a *Archive) pendingImages(userID, folderID int64) []int64 {
	fav, _ := a.tracker.Folder(userID, folderID)
	var pending []int64
	for _, imageID := range fav.Images {
		if _, failed := fav.Failed[imageID]; failed {
			pending = append(pending, imageID)
			continue
		}
		if _, ok := a.state.ImageIndex[imageID]; !ok {
			pending = append(pending, imageID)
		}
	}
	return pending
}

// downloadAll pushes pending images through the worker pool. Workers
// resolve and fetch only; every outcome flows back to this goroutine,
// which applies the mutation and checkpoints every CheckpointEvery
// images.
func (a *Archive) downloadAll(ctx context.Context, userID, folderID int64, pending []int64) error {
	// images the index already maps just need a location link, no
	// network round trip
	var toFetch []int64
	for _, imageID := range pending {
		if digest, blob, ok := a.store.LookupByImageID(imageID); ok {
			name := firstLocationName(blob)
			if err := a.store.AddKnownLocation(digest, userID, folderID, imageID, name); err == nil {
				if rerr := a.tracker.RecordImageResult(userID, folderID, imageID, crawl.Skipped{Digest: digest}); rerr != nil {
					log.WithError(rerr).Warnf("Recording known image %d", imageID)
				}
				continue
			}
		}
		toFetch = append(toFetch, imageID)
	}
	if len(toFetch) == 0 {
		return nil
	}
	log.Infof("Downloading %d image(s) with %d worker(s)", len(toFetch), a.cfg.Concurrency)

	jobs := make(chan fetchJob)
	outcomes := make(chan fetchOutcome)
	var wg sync.WaitGroup
	for w := 0; w < a.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- a.fetchOne(ctx, job.imageID)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, imageID := range toFetch {
			select {
			case jobs <- fetchJob{imageID: imageID}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	processed := 0
	for outcome := range outcomes {
		if err := a.applyOutcome(userID, folderID, outcome); err != nil {
			log.WithError(err).Errorf("Applying outcome for image %d", outcome.imageID)
		}
		processed++
		a.reportProgress("download", processed, len(toFetch))
		if processed%a.cfg.CheckpointEvery == 0 {
			if err := a.Checkpoint(); err != nil {
				log.WithError(err).Error("Checkpoint failed")
			}
			log.Infof("Progress: %d/%d image(s)", processed, len(toFetch))
		}
	}
	return ctx.Err()
}

// fetchOne does the network half of one image: resolve then download.
// Runs on worker goroutines, never touches state.
func (a *Archive) fetchOne(ctx context.Context, imageID int64) fetchOutcome {
	resolved, err := a.source.ResolveImage(ctx, imageID)
	if err != nil {
		return fetchOutcome{imageID: imageID, err: err}
	}
	data, err := a.fetcher.Fetch(ctx, resolved.URL)
	if err != nil {
		return fetchOutcome{imageID: imageID, name: resolved.Filename, url: resolved.URL, err: err}
	}
	return fetchOutcome{imageID: imageID, data: data, name: resolved.Filename, url: resolved.URL}
}

// applyOutcome is the single mutation point for download results.
func (a *Archive) applyOutcome(userID, folderID int64, o fetchOutcome) error {
	if o.err != nil {
		if errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded) {
			return nil // interrupted, not failed; retried next run as pending
		}
		return a.tracker.RecordImageResult(userID, folderID, o.imageID,
			crawl.Failed{Reason: o.err, Name: o.name, URL: o.url})
	}
	digest, isNew, err := a.store.Ingest(o.data, userID, folderID, o.imageID, o.name)
	if err != nil {
		if errors.Is(err, store.ErrCorruptContent) {
			return a.tracker.RecordImageResult(userID, folderID, o.imageID,
				crawl.Failed{Reason: err, Name: o.name, URL: o.url})
		}
		return err
	}
	if isNew {
		if ierr := a.idx.IndexBlob(digest, a.state.Blobs[digest], a.state, a.tagName); ierr != nil {
			log.WithError(ierr).Warnf("Could not index new blob %s", digest)
		}
		return a.tracker.RecordImageResult(userID, folderID, o.imageID, crawl.Ingested{Digest: digest})
	}
	return a.tracker.RecordImageResult(userID, folderID, o.imageID, crawl.Skipped{Digest: digest})
}

// firstLocationName picks any existing location's filename for a blob
// the index already maps, so linking a repeat occurrence needs no
// network round trip.
func firstLocationName(blob *models.Blob) string {
	for _, loc := range blob.Locations {
		return loc.Name
	}
	return ""
}
