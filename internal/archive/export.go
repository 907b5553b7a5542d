package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"go-favorites-archive/internal/helpers"
	"go-favorites-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// ExportUser writes a user's archived content into a plain directory
// tree under destDir, for use outside the archive:
// <user-slug>/<folder-slug>/<image-id>-<original-name>. Encrypted
// content is written out decrypted. Shared content is written once per
// occurrence, so every folder is complete on its own. Returns the
// number of files written.
func (a *Archive) ExportUser(userID int64, destDir string) (int, error) {
	user, ok := a.state.Users[userID]
	if !ok {
		return 0, fmt.Errorf("unknown user %d", userID)
	}

	total := 0
	for _, fav := range a.state.Favorites[userID] {
		total += len(fav.Images)
	}

	exported := 0
	userDir := filepath.Join(destDir, helpers.ConvertToSlug(user.Name))
	for folderID, fav := range a.state.Favorites[userID] {
		folderDir := filepath.Join(userDir, helpers.ConvertToSlug(fav.Name))
		if !helpers.CheckAndMakeDir(folderDir) {
			return exported, fmt.Errorf("creating export directory %s", folderDir)
		}
		for _, imageID := range fav.Images {
			digest, ok := a.state.ImageIndex[imageID]
			if !ok {
				continue // never archived (still failing remotely)
			}
			blob := a.state.Blobs[digest]
			loc, ok := blob.Locations[models.LocationKey(userID, folderID, imageID)]
			if !ok {
				log.Warnf("Image %d maps to %s but the location record is missing", imageID, digest)
				continue
			}
			data, err := a.store.GetBlobBytes(digest)
			if err != nil {
				return exported, fmt.Errorf("reading %s: %w", digest, err)
			}
			name := fmt.Sprintf("%d-%s", imageID, loc.Name)
			if err := os.WriteFile(filepath.Join(folderDir, name), data, 0600); err != nil {
				return exported, fmt.Errorf("writing %s: %w", name, err)
			}
			exported++
			a.reportProgress("export", exported, total)
		}
	}
	log.Infof("Exported %d file(s) for %q into %s", exported, user.Name, userDir)
	return exported, nil
}
