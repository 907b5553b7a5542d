package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// HTTPSource is a Source backed by a JSON gallery API. Endpoints:
//
//	GET /users?name=X                 -> {"id": N}
//	GET /users/{id}/folders           -> [{"id": N, "name": "..."}]
//	GET /users/{u}/folders/{f}?page=P -> {"imageIds": [...], "lastPage": bool}
//	GET /images/{id}                  -> {"url": "...", "filename": "..."}
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds an HTTPSource rooted at baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrPermanent, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d for %s", ErrTransient, resp.StatusCode, path)
	default:
		return fmt.Errorf("%w: status %d for %s", ErrPermanent, resp.StatusCode, path)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrPermanent, path, err)
	}
	return nil
}

// LookupUser resolves a user name to its numeric ID.
func (s *HTTPSource) LookupUser(ctx context.Context, name string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := s.getJSON(ctx, "/users?name="+url.QueryEscape(name), &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// ListFolders returns the user's favorite folders.
func (s *HTTPSource) ListFolders(ctx context.Context, userID int64) (map[int64]string, error) {
	var out []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("/users/%d/folders", userID), &out); err != nil {
		return nil, err
	}
	folders := make(map[int64]string, len(out))
	for _, f := range out {
		folders[f.ID] = f.Name
	}
	return folders, nil
}

// ListPage returns one page of a folder's image IDs in site order.
func (s *HTTPSource) ListPage(ctx context.Context, userID, folderID int64, page int) ([]int64, error) {
	var out struct {
		ImageIDs []int64 `json:"imageIds"`
		LastPage bool    `json:"lastPage"`
	}
	path := fmt.Sprintf("/users/%d/folders/%d?page=%d", userID, folderID, page)
	if err := s.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	if len(out.ImageIDs) == 0 && out.LastPage {
		return nil, ErrEndOfPages
	}
	log.Debugf("Listed %d image(s) on page %d of %d/%d", len(out.ImageIDs), page, userID, folderID)
	return out.ImageIDs, nil
}

// ResolveImage maps an image ID to its full-resolution URL and name.
// Failure depths map onto the audit levels: a missing image page is
// level 1, a page without a usable URL is level 2.
func (s *HTTPSource) ResolveImage(ctx context.Context, imageID int64) (ResolvedImage, error) {
	var out struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	}
	path := fmt.Sprintf("/images/%d", imageID)
	if err := s.getJSON(ctx, path, &out); err != nil {
		return ResolvedImage{}, &ResolveError{Level: LevelImagePage, Err: err}
	}
	if out.URL == "" {
		return ResolvedImage{}, &ResolveError{
			Level: LevelURLExtraction,
			Err:   fmt.Errorf("%w: image %d has no content URL", ErrPermanent, imageID),
		}
	}
	return ResolvedImage{URL: out.URL, Filename: out.Filename}, nil
}
