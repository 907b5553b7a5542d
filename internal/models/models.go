package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Verdict is a user decision attached to a blob location or a duplicate
// group member.
type Verdict string

const (
	VerdictNew   Verdict = "new"
	VerdictFalse Verdict = "false"
	VerdictKeep  Verdict = "keep"
	VerdictSkip  Verdict = "skip"
)

// ValidVerdict reports whether v is one of the accepted verdict values.
func ValidVerdict(v Verdict) bool {
	switch v {
	case VerdictNew, VerdictFalse, VerdictKeep, VerdictSkip:
		return true
	}
	return false
}

// Detection method names. Bit-hash methods score by hamming distance,
// the embedding method by cosine similarity.
const (
	MethodPercept   = "percept"
	MethodAverage   = "average"
	MethodDiff      = "diff"
	MethodWavelet   = "wavelet"
	MethodEmbedding = "cnn"
)

// AllMethods lists the detection methods in their canonical order.
var AllMethods = []string{MethodPercept, MethodAverage, MethodDiff, MethodWavelet, MethodEmbedding}

type (
	// Sensitivities holds per-method duplicate detection thresholds.
	// Bit-hash values are maximum hamming distances (-1 disables the
	// method); CNN is a minimum cosine similarity (-1 disables).
	Sensitivities struct {
		Percept int     `json:"percept" toml:"Percept"`
		Average int     `json:"average" toml:"Average"`
		Diff    int     `json:"diff" toml:"Diff"`
		Wavelet int     `json:"wavelet" toml:"Wavelet"`
		CNN     float64 `json:"cnn" toml:"CNN"`
	}

	// DetectionConfig pairs the two threshold profiles. The animated
	// profile must be at least as strict as the regular one: animated
	// content hashes are noisier and merge falsely under loose bounds.
	DetectionConfig struct {
		Regular  Sensitivities `json:"regular" toml:"Regular"`
		Animated Sensitivities `json:"animated" toml:"Animated"`
	}

	// User is a remote gallery account whose favorites we archive.
	User struct {
		Name         string `json:"name"`
		DateAlbums   int64  `json:"dateAlbums"`   // last album-list fetch
		DateFinished int64  `json:"dateFinished"` // last full finish of all albums
		DateAudit    int64  `json:"dateAudit"`    // last audit
	}

	// FailedImage records one image that failed to ingest, so the next
	// run retries exactly it.
	FailedImage struct {
		ImageID   int64  `json:"imageId"`
		Timestamp int64  `json:"timestamp"`
		Name      string `json:"name,omitempty"`
		URL       string `json:"url,omitempty"`
	}

	// Favorite is one album (folder) of one user. Images holds member
	// image IDs in site order with duplicates suppressed; it never
	// shrinks except through explicit album deletion.
	Favorite struct {
		Name      string                 `json:"name"`
		Pages     int                    `json:"pages"` // high-water page count
		DateBlobs int64                  `json:"dateBlobs"`
		Images    []int64                `json:"images"`
		Failed    map[int64]*FailedImage `json:"failed,omitempty"`
	}

	// Location is one (user, folder, image) occurrence of a blob, with
	// the suggested filename and the identical-duplicate verdict for
	// that occurrence.
	Location struct {
		UserID   int64   `json:"userId"`
		FolderID int64   `json:"folderId"`
		ImageID  int64   `json:"imageId"`
		Name     string  `json:"name"`
		Verdict  Verdict `json:"verdict"`
	}

	// GoneEntry marks a location that used to resolve but no longer
	// does. Soft and reversible: the content stays on disk.
	GoneEntry struct {
		Timestamp int64  `json:"timestamp"`
		Level     int    `json:"level"` // audit failure depth, 1..3
		URL       string `json:"url"`
	}

	// Blob is one unique piece of content, keyed by its digest. The
	// digest is the only true identity; everything else is metadata.
	Blob struct {
		Locations map[string]*Location `json:"loc"` // key = LocationKey()
		Tags      map[int64]bool       `json:"tags,omitempty"`
		Size      int64                `json:"sz"`
		ThumbSize int64                `json:"szThumb"`
		Ext       string               `json:"ext"`
		Percept   uint64               `json:"percept"`
		Average   uint64               `json:"average"`
		Diff      uint64               `json:"diff"`
		Wavelet   uint64               `json:"wavelet"`
		Embedding []float32            `json:"cnn"`
		Width     int                  `json:"width"`
		Height    int                  `json:"height"`
		Animated  bool                 `json:"animated"`
		Date      int64                `json:"date"` // first successful download
		Gone      map[int64]*GoneEntry `json:"gone,omitempty"`
	}

	// Tag is a node of the user-managed tag tree.
	Tag struct {
		Name     string         `json:"name"`
		Children map[int64]*Tag `json:"tags,omitempty"`
	}

	// DuplicateGroup holds the qualifying pairwise scores per method and
	// the per-member verdicts for one connected component of similar
	// blobs. Groups are keyed by the sorted tuple of member digests.
	DuplicateGroup struct {
		Sources  map[string]map[string]float64 `json:"sources"` // method -> pair key -> score
		Verdicts map[string]Verdict            `json:"verdicts"`
	}

	// State is the whole archive state tree, serialized as one unit by
	// the persistence manager.
	State struct {
		Detection      DetectionConfig            `json:"configs"`
		Users          map[int64]*User            `json:"users"`
		Favorites      map[int64]map[int64]*Favorite `json:"favorites"`
		Tags           map[int64]*Tag             `json:"tags"`
		Blobs          map[string]*Blob           `json:"blobs"`
		ImageIndex     map[int64]string           `json:"imageIdsIndex"` // image ID -> digest
		Duplicates     map[string]*DuplicateGroup `json:"duplicatesRegistry"`
		DuplicateIndex map[string]string          `json:"duplicatesKeyIndex"` // digest -> group key
	}

	// Config is the application configuration loaded from config.toml.
	Config struct {
		// Paths
		ArchivePath string `toml:"ArchivePath"` // root directory of the archive

		// Remote gallery
		SiteURL string `toml:"SiteURL"` // gallery API base URL

		// Crawl behavior
		Concurrency          int `toml:"Concurrency"`
		CheckpointEvery      int `toml:"CheckpointEvery"`      // downloads between checkpoints
		AuditCheckpointEvery int `toml:"AuditCheckpointEvery"` // audits between checkpoints
		RefreshHours         int `toml:"RefreshHours"`         // folder freshness window
		AuditRefreshHours    int `toml:"AuditRefreshHours"`    // audit freshness window

		// Fetch behavior
		FetchTimeoutSec int     `toml:"FetchTimeoutSec"`
		FetchRatePerSec float64 `toml:"FetchRatePerSec"`
		MaxRetries      int     `toml:"MaxRetries"`

		// Search index
		IndexPath string `toml:"IndexPath"`
	}
)

// DefaultSensitivities are the regular-profile detection defaults.
var DefaultSensitivities = Sensitivities{
	Percept: 4,
	Average: 1,
	Diff:    4,
	Wavelet: 1,
	CNN:     0.95,
}

// DefaultAnimatedSensitivities are the animated-profile defaults,
// strictly tighter than the regular ones.
var DefaultAnimatedSensitivities = Sensitivities{
	Percept: 3,
	Average: -1,
	Diff:    1,
	Wavelet: -1,
	CNN:     0.97,
}

// NewState creates an empty archive state with default detection config.
func NewState() *State {
	return &State{
		Detection: DetectionConfig{
			Regular:  DefaultSensitivities,
			Animated: DefaultAnimatedSensitivities,
		},
		Users:          make(map[int64]*User),
		Favorites:      make(map[int64]map[int64]*Favorite),
		Tags:           make(map[int64]*Tag),
		Blobs:          make(map[string]*Blob),
		ImageIndex:     make(map[int64]string),
		Duplicates:     make(map[string]*DuplicateGroup),
		DuplicateIndex: make(map[string]string),
	}
}

// LocationKey builds the canonical "user/folder/image" map key for a
// location.
func LocationKey(userID, folderID, imageID int64) string {
	return fmt.Sprintf("%d/%d/%d", userID, folderID, imageID)
}

// ParseLocationKey is the inverse of LocationKey.
func ParseLocationKey(key string) (userID, folderID, imageID int64, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed location key %q", key)
	}
	ids := make([]int64, 3)
	for i, p := range parts {
		ids[i], err = strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("malformed location key %q: %w", key, err)
		}
	}
	return ids[0], ids[1], ids[2], nil
}

// GroupKey builds the stable duplicate-group key from member digests:
// the sorted digests joined with "+". Changing membership changes the
// key, which is what keeps a digest from drifting into two groups.
func GroupKey(digests []string) string {
	sorted := make([]string, len(digests))
	copy(sorted, digests)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// SplitGroupKey is the inverse of GroupKey.
func SplitGroupKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, "+")
}

// PairKey builds the canonical score key for an unordered digest pair.
func PairKey(a, b string) string {
	return GroupKey([]string{a, b})
}

// Method returns the threshold for a method by name.
func (s Sensitivities) Method(method string) float64 {
	switch method {
	case MethodPercept:
		return float64(s.Percept)
	case MethodAverage:
		return float64(s.Average)
	case MethodDiff:
		return float64(s.Diff)
	case MethodWavelet:
		return float64(s.Wavelet)
	case MethodEmbedding:
		return s.CNN
	}
	return -1
}

// Enabled reports whether a method is active in this profile.
func (s Sensitivities) Enabled(method string) bool {
	return s.Method(method) >= 0
}

// Digests returns the group's member digests, sorted.
func (g *DuplicateGroup) Digests() []string {
	digests := make([]string, 0, len(g.Verdicts))
	for sha := range g.Verdicts {
		digests = append(digests, sha)
	}
	sort.Strings(digests)
	return digests
}
