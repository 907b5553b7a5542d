package crawl

import (
	"errors"
	"testing"
	"time"

	"go-favorites-archive/internal/models"
	"go-favorites-archive/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *models.State, *int64) {
	t.Helper()
	state := models.NewState()
	st, err := store.New(state, t.TempDir(), "")
	require.NoError(t, err)
	tracker := New(state, st, 72*time.Hour, 240*time.Hour)
	clock := int64(1_000_000)
	tracker.now = func() int64 { return clock }
	return tracker, state, &clock
}

func TestEnsureUserAndFolder(t *testing.T) {
	tracker, state, _ := newTestTracker(t)

	user := tracker.EnsureUser(5, "alice")
	assert.Equal(t, "alice", user.Name)
	assert.Same(t, user, tracker.EnsureUser(5, ""), "re-ensure returns the same record")

	fav := tracker.EnsureFolder(5, 7, "pics")
	assert.Equal(t, "pics", fav.Name)
	assert.Same(t, fav, state.Favorites[5][7])

	// renames propagate
	tracker.EnsureFolder(5, 7, "renamed")
	assert.Equal(t, "renamed", fav.Name)
}

func TestRecordPageOrderedDedup(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.EnsureUser(1, "u")
	fav := tracker.EnsureFolder(1, 2, "f")

	added, err := tracker.RecordPage(1, 2, 0, []int64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, added)

	// replaying the page is a no-op
	added, err = tracker.RecordPage(1, 2, 0, []int64{10, 20, 30})
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, []int64{10, 20, 30}, fav.Images)

	// a later page with one repeat keeps site order and suppresses it
	added, err = tracker.RecordPage(1, 2, 1, []int64{20, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{40}, added)
	assert.Equal(t, []int64{10, 20, 30, 40}, fav.Images)
	assert.Equal(t, 2, fav.Pages)

	// page high-water never shrinks
	_, err = tracker.RecordPage(1, 2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fav.Pages)
}

func TestBeginFolderFreshness(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	tracker.EnsureUser(1, "u")
	fav := tracker.EnsureFolder(1, 2, "f")

	// never finished: due
	res, err := tracker.BeginFolder(1, 2, false)
	require.NoError(t, err)
	assert.False(t, res.Fresh)

	fav.DateBlobs = *clock
	*clock += int64((24 * time.Hour).Seconds())

	// finished a day ago, inside the 72h window: fresh
	res, err = tracker.BeginFolder(1, 2, false)
	require.NoError(t, err)
	assert.True(t, res.Fresh)

	// force overrides the window
	res, err = tracker.BeginFolder(1, 2, true)
	require.NoError(t, err)
	assert.False(t, res.Fresh)

	// outstanding failures always override freshness
	fav.Failed[99] = &models.FailedImage{ImageID: 99}
	res, err = tracker.BeginFolder(1, 2, false)
	require.NoError(t, err)
	assert.False(t, res.Fresh)
	assert.Equal(t, []int64{99}, res.Retry)

	// window expiry makes it due again
	delete(fav.Failed, 99)
	*clock += int64((80 * time.Hour).Seconds())
	res, err = tracker.BeginFolder(1, 2, false)
	require.NoError(t, err)
	assert.False(t, res.Fresh)
}

func TestRecordImageResultFailureLifecycle(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.EnsureUser(1, "u")
	fav := tracker.EnsureFolder(1, 2, "f")

	err := tracker.RecordImageResult(1, 2, 4, Failed{
		Reason: errors.New("boom"), Name: "four.jpg", URL: "http://x/4",
	})
	require.NoError(t, err)
	require.Contains(t, fav.Failed, int64(4))
	assert.Equal(t, "four.jpg", fav.Failed[4].Name)
	assert.Positive(t, fav.Failed[4].Timestamp)

	// a later success of any kind clears the failure
	require.NoError(t, tracker.RecordImageResult(1, 2, 4, Ingested{Digest: "abc"}))
	assert.NotContains(t, fav.Failed, int64(4))

	require.NoError(t, tracker.RecordImageResult(1, 2, 7, Failed{Reason: errors.New("boom")}))
	require.NoError(t, tracker.RecordImageResult(1, 2, 7, Skipped{Digest: "abc"}))
	assert.NotContains(t, fav.Failed, int64(7))
}

func TestFinishFolderGatedOnFailures(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	tracker.EnsureUser(1, "u")
	fav := tracker.EnsureFolder(1, 2, "f")

	fav.Failed[4] = &models.FailedImage{ImageID: 4}
	clean, err := tracker.FinishFolder(1, 2)
	require.NoError(t, err)
	assert.False(t, clean)
	assert.Zero(t, fav.DateBlobs, "finish timestamp must not advance with failures outstanding")

	delete(fav.Failed, 4)
	clean, err = tracker.FinishFolder(1, 2)
	require.NoError(t, err)
	assert.True(t, clean)
	assert.Equal(t, *clock, fav.DateBlobs)
}

func TestMarkUserFinished(t *testing.T) {
	tracker, state, clock := newTestTracker(t)
	tracker.EnsureUser(1, "u")
	favA := tracker.EnsureFolder(1, 2, "a")
	favB := tracker.EnsureFolder(1, 3, "b")

	favA.DateBlobs = *clock
	assert.False(t, tracker.MarkUserFinished(1), "one folder never finished")

	favB.DateBlobs = *clock
	favB.Failed[9] = &models.FailedImage{ImageID: 9}
	assert.False(t, tracker.MarkUserFinished(1), "one folder has failures")

	delete(favB.Failed, 9)
	assert.True(t, tracker.MarkUserFinished(1))
	assert.Equal(t, *clock, state.Users[1].DateFinished)
}

func TestAuditDueHysteresis(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	blob := &models.Blob{Date: *clock}

	assert.False(t, tracker.AuditDue(blob), "just confirmed")

	*clock += int64((241 * time.Hour).Seconds())
	assert.True(t, tracker.AuditDue(blob))
}

func TestAuditRecording(t *testing.T) {
	tracker, state, clock := newTestTracker(t)
	state.Blobs["d1"] = &models.Blob{
		Locations: map[string]*models.Location{},
		Date:      100,
	}

	require.NoError(t, tracker.RecordAuditFailure("d1", 42, 3, "http://x/42"))
	require.Contains(t, state.Blobs["d1"].Gone, int64(42))
	assert.Equal(t, 3, state.Blobs["d1"].Gone[42].Level)

	tracker.RecordAuditSuccess("d1", 42)
	assert.NotContains(t, state.Blobs["d1"].Gone, int64(42))
	assert.Equal(t, *clock, state.Blobs["d1"].Date, "success bumps the confirmation date")

	tracker.EnsureUser(1, "u")
	tracker.MarkUserAudited(1)
	assert.Equal(t, *clock, state.Users[1].DateAudit)
}
