package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdocs/extract"
	"procdocs/index"
	"procdocs/procurement"
	"procdocs/search"
	"procdocs/store"
)

func setupServer(t *testing.T, withStore bool) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"contract.txt":   "Договор поставки от 01.04.2024. Цена 1 500 руб. Поставщик ИНН 7707083893",
		"notes/memo.txt": "Служебная записка без чисел",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	logger, _ := test.NewNullLogger()
	reg := extract.NewRegistry(extract.Options{PDFTimeBudget: 2 * time.Second}, extract.Capabilities{}, nil, nil, logger.WithField("component", "extract"))
	b := index.NewBuilder(reg, "_index.txt", logger.WithField("component", "index"))

	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "index.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}

	return NewServer(b, root, st, "default", search.DefaultOptions(), logger.WithField("component", "api")), root
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHandleSearch_BeforeBuild(t *testing.T) {
	s, _ := setupServer(t, false)

	rr := do(t, s, http.MethodGet, "/api/v1/search?q=договор")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestHandleSearch_Validation(t *testing.T) {
	s, _ := setupServer(t, false)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/search").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/search?q=+,+").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/search?q=a&context=-1").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPost, "/api/v1/search?q=a").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/v1/index/rebuild").Code)
}

func TestRebuildThenSearch(t *testing.T) {
	for _, withStore := range []bool{false, true} {
		name := "artifact"
		if withStore {
			name = "sqlite"
		}
		t.Run(name, func(t *testing.T) {
			s, _ := setupServer(t, withStore)

			rr := do(t, s, http.MethodPost, "/api/v1/index/rebuild")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			build := decode[BuildView](t, rr)
			assert.Equal(t, 2, build.Processed)
			assert.Equal(t, 2, build.Indexed)
			assert.NotEmpty(t, build.ID)

			rr = do(t, s, http.MethodGet, "/api/v1/search?q=договор,записка")
			require.Equal(t, http.StatusOK, rr.Code)
			resp := decode[SearchResponse](t, rr)
			assert.Equal(t, []string{"договор", "записка"}, resp.Keywords)
			require.Equal(t, 2, resp.Total)
			assert.Equal(t, "contract.txt", resp.Matches[0].Title)
			assert.Equal(t, "notes/memo.txt", resp.Matches[1].Title)

			rr = do(t, s, http.MethodGet, "/api/v1/search?q=договор&grouped=true")
			require.Equal(t, http.StatusOK, rr.Code)
			resp = decode[SearchResponse](t, rr)
			require.Len(t, resp.Groups, 1)
			assert.Empty(t, resp.Matches)
			assert.Equal(t, 1, resp.Groups[0].Total)

			rr = do(t, s, http.MethodGet, "/api/v1/search?q=договор&exclude=1")
			require.Equal(t, http.StatusOK, rr.Code)
			resp = decode[SearchResponse](t, rr)
			require.Len(t, resp.Matches, 1)
			assert.Equal(t, "notes/memo.txt", resp.Matches[0].Title)
			assert.Empty(t, resp.Matches[0].Keyword)
		})
	}
}

func TestHandleEntries(t *testing.T) {
	s, _ := setupServer(t, true)
	_, err := s.Rebuild(context.Background())
	require.NoError(t, err)

	rr := do(t, s, http.MethodGet, "/api/v1/entries")
	require.Equal(t, http.StatusOK, rr.Code)
	views := decode[[]EntryView](t, rr)
	require.Len(t, views, 2)
	assert.Equal(t, "contract.txt", views[0].Title)
	assert.Empty(t, views[0].Body)
	assert.Positive(t, views[0].CharCount)

	rr = do(t, s, http.MethodGet, "/api/v1/entries?title=notes/memo.txt")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Служебная записка без чисел", decode[EntryView](t, rr).Body)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/entries?title=nope.txt").Code)
}

func TestHandleFacts(t *testing.T) {
	s, _ := setupServer(t, false)
	_, err := s.Rebuild(context.Background())
	require.NoError(t, err)

	rr := do(t, s, http.MethodGet, "/api/v1/facts")
	require.Equal(t, http.StatusOK, rr.Code)
	facts := decode[[]procurement.EntryFacts](t, rr)
	require.Len(t, facts, 1)
	assert.Equal(t, "contract.txt", facts[0].Title)
	assert.Equal(t, []string{"7707083893"}, facts[0].Facts.INNs)
	require.Len(t, facts[0].Facts.Prices, 1)
	assert.Equal(t, int64(150000), facts[0].Facts.Prices[0].Kopecks)

	rr = do(t, s, http.MethodGet, "/api/v1/facts?title=notes/memo.txt")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/facts?title=nope.txt").Code)
}

func TestHandleStatus(t *testing.T) {
	s, root := setupServer(t, true)

	rr := do(t, s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[StatusResponse](t, rr)
	assert.Equal(t, "sqlite", status.Backend)
	assert.Nil(t, status.LastBuild)
	assert.Zero(t, status.Entries)

	_, err := s.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "notes", "memo.txt")))

	rr = do(t, s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	status = decode[StatusResponse](t, rr)
	require.NotNil(t, status.LastBuild)
	assert.Equal(t, 2, status.Entries)
	assert.Equal(t, 2, status.Files[string(index.StatusIndexed)])
	require.Len(t, status.Issues, 1)
	assert.Equal(t, "notes/memo.txt", status.Issues[0].Title)
	assert.Equal(t, string(index.IssueMissing), status.Issues[0].Kind)
}

func TestHandleRebuild_Conflict(t *testing.T) {
	s, _ := setupServer(t, false)

	s.mu.Lock()
	rr := do(t, s, http.MethodPost, "/api/v1/index/rebuild")
	s.mu.Unlock()

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already in progress")
}

func TestServe_StopsOnCancel(t *testing.T) {
	s, _ := setupServer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
