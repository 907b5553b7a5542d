package archive

import (
	"go-favorites-archive/internal/helpers"
	"go-favorites-archive/internal/models"
)

// Stats summarizes the archive for the reporting surfaces.
type Stats struct {
	Users     int
	Folders   int
	Locations int // occurrences across all folders
	Blobs     int // unique content
	Animated  int
	Gone      int // images currently marked gone by audits
	Failed    int // images pending retry

	DuplicateGroups  int
	DuplicateMembers int

	Content helpers.SizeStats
	Thumbs  helpers.SizeStats
}

// Stats computes archive-wide counters and size summaries.
func (a *Archive) Stats() Stats {
	var st Stats
	st.Users = len(a.state.Users)
	for _, favs := range a.state.Favorites {
		st.Folders += len(favs)
		for _, fav := range favs {
			st.Failed += len(fav.Failed)
		}
	}

	contentSizes := make([]int64, 0, len(a.state.Blobs))
	thumbSizes := make([]int64, 0, len(a.state.Blobs))
	for _, blob := range a.state.Blobs {
		st.Blobs++
		st.Locations += len(blob.Locations)
		st.Gone += len(blob.Gone)
		if blob.Animated {
			st.Animated++
		}
		contentSizes = append(contentSizes, blob.Size)
		thumbSizes = append(thumbSizes, blob.ThumbSize)
	}
	st.Content = helpers.SummarizeSizes(contentSizes)
	st.Thumbs = helpers.SummarizeSizes(thumbSizes)

	st.DuplicateGroups = len(a.state.Duplicates)
	for _, group := range a.state.Duplicates {
		st.DuplicateMembers += len(group.Verdicts)
	}
	return st
}

// FolderStats summarizes one folder.
type FolderStats struct {
	Name   string
	Pages  int
	Images int
	Failed int
	Fresh  bool
}

// UserStats returns per-folder summaries for one user.
func (a *Archive) UserStats(userID int64) map[int64]FolderStats {
	out := make(map[int64]FolderStats)
	for folderID, fav := range a.state.Favorites[userID] {
		out[folderID] = FolderStats{
			Name:   fav.Name,
			Pages:  fav.Pages,
			Images: len(fav.Images),
			Failed: len(fav.Failed),
			Fresh:  fav.DateBlobs > 0 && len(fav.Failed) == 0,
		}
	}
	return out
}

// TagStats summarizes one tag's usage.
type TagStats struct {
	Name  string
	Count int
	Size  uint64
}

// TagStats returns usage counters per tag, keyed by tag ID.
func (a *Archive) TagStats() map[int64]TagStats {
	out := make(map[int64]TagStats)
	for id, path := range a.ListTags() {
		out[id] = TagStats{Name: path}
	}
	for _, blob := range a.state.Blobs {
		for tagID := range blob.Tags {
			ts, ok := out[tagID]
			if !ok {
				continue // stale tag ID on the blob, ignored
			}
			ts.Count++
			ts.Size += uint64(blob.Size)
			out[tagID] = ts
		}
	}
	return out
}

// DuplicateGroups exposes the registry for the review surfaces.
func (a *Archive) DuplicateGroups() map[string]*models.DuplicateGroup {
	return a.state.Duplicates
}
