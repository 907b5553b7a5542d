package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *Fetcher {
	// high rate and single retry keep the tests fast
	return NewFetcher(1000, 2*time.Second, 1)
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	data, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), data)
}

func TestFetchClassifiesStatuses(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		expected error
	}{
		{"NotFound", http.StatusNotFound, ErrNotFound},
		{"Gone", http.StatusGone, ErrNotFound},
		{"ServerError", http.StatusInternalServerError, ErrPermanent}, // transient, but retries exhaust
		{"Forbidden", http.StatusForbidden, ErrPermanent},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := testFetcher().Fetch(context.Background(), srv.URL)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	fetcher := NewFetcher(1000, 2*time.Second, 3)
	data, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(1000, time.Second, 5).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fetcher := testFetcher()
	assert.NoError(t, fetcher.Check(context.Background(), srv.URL+"/here"))
	assert.ErrorIs(t, fetcher.Check(context.Background(), srv.URL+"/gone"), ErrNotFound)
}

func TestResolveErrorWrapping(t *testing.T) {
	inner := &ResolveError{Level: LevelURLExtraction, URL: "http://x", Err: ErrPermanent}
	assert.ErrorIs(t, inner, ErrPermanent)
	assert.Contains(t, inner.Error(), "level 2")
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			assert.Equal(t, "alice", r.URL.Query().Get("name"))
			w.Write([]byte(`{"id": 7}`))
		case "/users/7/folders":
			w.Write([]byte(`[{"id": 3, "name": "pics"}, {"id": 4, "name": "art"}]`))
		case "/users/7/folders/3":
			switch r.URL.Query().Get("page") {
			case "0":
				w.Write([]byte(`{"imageIds": [10, 20], "lastPage": false}`))
			default:
				w.Write([]byte(`{"imageIds": [], "lastPage": true}`))
			}
		case "/images/10":
			w.Write([]byte(`{"url": "http://cdn/10.jpg", "filename": "ten.jpg"}`))
		case "/images/20":
			w.Write([]byte(`{"url": "", "filename": ""}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, 2*time.Second)
	ctx := context.Background()

	userID, err := src.LookupUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	folders, err := src.ListFolders(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{3: "pics", 4: "art"}, folders)

	ids, err := src.ListPage(ctx, 7, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)

	_, err = src.ListPage(ctx, 7, 3, 1)
	assert.ErrorIs(t, err, ErrEndOfPages)

	resolved, err := src.ResolveImage(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/10.jpg", resolved.URL)
	assert.Equal(t, "ten.jpg", resolved.Filename)

	// missing URL is a level 2 failure, missing page a level 1
	_, err = src.ResolveImage(ctx, 20)
	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, LevelURLExtraction, rerr.Level)

	_, err = src.ResolveImage(ctx, 999)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, LevelImagePage, rerr.Level)
	assert.ErrorIs(t, err, ErrNotFound)
}
