package archive

import (
	"context"
	"errors"
	"fmt"

	"go-favorites-archive/internal/gallery"

	log "github.com/sirupsen/logrus"
)

// AuditUser re-checks that every archived image of a user still
// resolves remotely. Failures are recorded as soft gone markers at the
// depth reached (image page, URL extraction, or full-res fetch); a
// later success clears the marker. Blobs confirmed recently are skipped
// unless force is set.
//
// Runs serially on purpose: audits are background hygiene and get no
// worker pool, only the shared rate limiter.
func (a *Archive) AuditUser(ctx context.Context, userID int64, force bool) error {
	user, ok := a.state.Users[userID]
	if !ok {
		return fmt.Errorf("unknown user %d", userID)
	}

	// one entry per distinct image ID owned by this user
	type target struct {
		digest  string
		imageID int64
	}
	var targets []target
	seen := make(map[int64]bool)
	for digest, blob := range a.state.Blobs {
		if !force && !a.tracker.AuditDue(blob) {
			continue
		}
		for _, loc := range blob.Locations {
			if loc.UserID != userID || seen[loc.ImageID] {
				continue
			}
			seen[loc.ImageID] = true
			targets = append(targets, target{digest: digest, imageID: loc.ImageID})
		}
	}
	log.Infof("Auditing %d image(s) of %q", len(targets), user.Name)

	audited := 0
	for _, tgt := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.auditOne(ctx, tgt.digest, tgt.imageID); err != nil {
			return err
		}
		audited++
		a.reportProgress("audit", audited, len(targets))
		if audited%a.cfg.AuditCheckpointEvery == 0 {
			if err := a.Checkpoint(); err != nil {
				log.WithError(err).Error("Checkpoint failed")
			}
			log.Infof("Audit progress: %d/%d image(s)", audited, len(targets))
		}
	}

	a.tracker.MarkUserAudited(userID)
	return a.Checkpoint()
}

// auditOne checks a single image at escalating depth and records the
// outcome. Interruptions propagate; remote verdicts never fail the run.
func (a *Archive) auditOne(ctx context.Context, digest string, imageID int64) error {
	resolved, err := a.source.ResolveImage(ctx, imageID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		level, url := gallery.LevelImagePage, ""
		var rerr *gallery.ResolveError
		if errors.As(err, &rerr) {
			level, url = rerr.Level, rerr.URL
		}
		log.Warnf("Image %d gone at level %d", imageID, level)
		return a.tracker.RecordAuditFailure(digest, imageID, level, url)
	}

	if err := a.fetcher.Check(ctx, resolved.URL); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Warnf("Image %d resolves but content fetch fails (%v)", imageID, err)
		return a.tracker.RecordAuditFailure(digest, imageID, gallery.LevelFullRes, resolved.URL)
	}

	a.tracker.RecordAuditSuccess(digest, imageID)
	return nil
}
