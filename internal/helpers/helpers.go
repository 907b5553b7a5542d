package helpers

import (
	"fmt"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// SanitizeFilename makes a remote-supplied image name safe to use as a
// local file name. Path separators become dashes, control characters and
// other filesystem-hostile characters are dropped, and a normalized
// extension is enforced ("jpeg" collapses to "jpg").
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")

	var filtered strings.Builder
	for _, ch := range name {
		if ch < 0x20 || strings.ContainsRune(`<>:"|?*`, ch) {
			continue
		}
		filtered.WriteRune(ch)
	}
	name = strings.Trim(filtered.String(), " .")
	if name == "" {
		return "image.jpg"
	}

	base, ext := name, "jpg"
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base, ext = name[:idx], name[idx+1:]
	}
	return base + "." + NormalizeExtension(ext)
}

// NormalizeExtension lower-cases an image file extension and collapses
// the "jpeg" spelling to "jpg".
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext == "" {
		ext = "jpg"
	}
	return ext
}

// ConvertToSlug converts a string into a filesystem-friendly slug.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	allowedChars := "0123456789abcdefghijklmnopqrstuvwxyz._-"

	var filtered strings.Builder
	for _, ch := range str {
		if strings.ContainsRune(allowedChars, ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	// Simplify repeated separators
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}
	for strings.Contains(str, "__") {
		str = strings.ReplaceAll(str, "__", "_")
	}
	str = strings.ReplaceAll(str, "-_", "-")
	str = strings.ReplaceAll(str, "_-", "-")

	return strings.Trim(str, "_-")
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

// SizeStats summarizes a set of byte sizes for the stats surfaces.
type SizeStats struct {
	Count  int
	Total  uint64
	Min    uint64
	Max    uint64
	Mean   float64
	StdDev float64
}

// SummarizeSizes computes count/total/min/max/mean/stddev over sizes.
// StdDev is the sample standard deviation and needs at least 3 samples,
// otherwise it is reported as zero.
func SummarizeSizes(sizes []int64) SizeStats {
	stats := SizeStats{Count: len(sizes)}
	if len(sizes) == 0 {
		return stats
	}
	stats.Min = uint64(sizes[0])
	for _, sz := range sizes {
		u := uint64(sz)
		stats.Total += u
		if u < stats.Min {
			stats.Min = u
		}
		if u > stats.Max {
			stats.Max = u
		}
	}
	stats.Mean = float64(stats.Total) / float64(len(sizes))
	if len(sizes) > 2 {
		var sum float64
		for _, sz := range sizes {
			d := float64(sz) - stats.Mean
			sum += d * d
		}
		stats.StdDev = math.Sqrt(sum / float64(len(sizes)-1))
	}
	return stats
}
