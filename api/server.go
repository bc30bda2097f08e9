// Package api serves the document index over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"procdocs/index"
	"procdocs/procurement"
	"procdocs/search"
	"procdocs/store"
)

const shutdownTimeout = 5 * time.Second

// Server exposes rebuild, search, entries, facts and status endpoints for one
// document root.
type Server struct {
	Builder *index.Builder
	Root    string
	Store   *store.Store // optional; when set, searches read the SQLite index
	Owner   string
	Search  search.Options
	Logger  *logrus.Entry
	Router  *http.ServeMux

	mu      sync.Mutex // serializes rebuilds
	stateMu sync.RWMutex
	last    *index.BuildResult
	started time.Time
}

// NewServer wires the routes. st may be nil.
func NewServer(b *index.Builder, root string, st *store.Store, owner string, opts search.Options, logger *logrus.Entry) *Server {
	s := &Server{
		Builder: b,
		Root:    root,
		Store:   st,
		Owner:   owner,
		Search:  opts,
		Logger:  logger,
		Router:  http.NewServeMux(),
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/v1/index/rebuild", s.handleRebuild)
	s.Router.HandleFunc("/api/v1/search", s.handleSearch)
	s.Router.HandleFunc("/api/v1/entries", s.handleEntries)
	s.Router.HandleFunc("/api/v1/facts", s.handleFacts)
	s.Router.HandleFunc("/api/v1/status", s.handleStatus)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("Starting API Server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Rebuild runs one build, waiting for any rebuild already in progress.
func (s *Server) Rebuild(ctx context.Context) (*index.BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *Server) rebuildLocked(ctx context.Context) (*index.BuildResult, error) {
	res, err := s.Builder.Build(ctx, s.Root)
	if err != nil {
		return nil, err
	}
	if s.Store != nil {
		if err := s.Store.Sync(ctx, s.Owner, res); err != nil {
			return nil, err
		}
	}

	s.stateMu.Lock()
	s.last = res
	s.stateMu.Unlock()

	s.Logger.WithFields(logrus.Fields{
		"build":     res.ID,
		"processed": res.Processed,
		"indexed":   res.Indexed,
		"failed":    res.Failed,
		"unchanged": res.Unchanged,
	}).Info("index rebuilt")
	return res, nil
}

func (s *Server) source() search.Source {
	if s.Store != nil {
		return store.IndexSource{Store: s.Store, Owner: s.Owner}
	}
	return index.FileSource{Path: s.Builder.ArtifactPath(s.Root)}
}

func (s *Server) lastBuild() *index.BuildResult {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last
}

// Responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type BuildView struct {
	ID          string `json:"id"`
	Artifact    string `json:"artifact"`
	Processed   int    `json:"processed"`
	Indexed     int    `json:"indexed"`
	Empty       int    `json:"empty"`
	Unsupported int    `json:"unsupported"`
	Failed      int    `json:"failed"`
	Unchanged   bool   `json:"unchanged"`
	Duration    string `json:"duration"`
}

type SearchResponse struct {
	Keywords []string            `json:"keywords"`
	Exclude  bool                `json:"exclude"`
	Total    int                 `json:"total"`
	Matches  []search.Match      `json:"matches,omitempty"`
	Groups   []search.EntryGroup `json:"groups,omitempty"`
}

type EntryView struct {
	Title     string `json:"title"`
	Format    string `json:"format"`
	Source    string `json:"source"`
	CharCount int    `json:"char_count"`
	Size      int64  `json:"size"`
	Group     string `json:"group,omitempty"`
	Body      string `json:"body,omitempty"`
}

type IssueView struct {
	Title  string `json:"title"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

type StatusResponse struct {
	Root      string         `json:"root"`
	Backend   string         `json:"backend"`
	Uptime    string         `json:"uptime"`
	Entries   int            `json:"entries"`
	Files     map[string]int `json:"files,omitempty"`
	LastBuild *BuildView     `json:"last_build,omitempty"`
	Issues    []IssueView    `json:"issues,omitempty"`
}

func buildView(res *index.BuildResult) *BuildView {
	return &BuildView{
		ID:          res.ID,
		Artifact:    res.Artifact,
		Processed:   res.Processed,
		Indexed:     res.Indexed,
		Empty:       res.Empty,
		Unsupported: res.Unsupported,
		Failed:      res.Failed,
		Unchanged:   res.Unchanged,
		Duration:    res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	}
}

func entryView(e index.Entry, withBody bool) EntryView {
	v := EntryView{
		Title:     e.Title,
		Format:    e.Format,
		Source:    e.Source,
		CharCount: e.CharCount,
		Size:      e.Size,
		Group:     e.Group,
	}
	if withBody {
		v.Body = e.Body
	}
	return v
}

// Handlers

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.mu.TryLock() {
		jsonResponse(w, http.StatusConflict, ErrorResponse{Error: "rebuild already in progress"})
		return
	}
	defer s.mu.Unlock()

	res, err := s.rebuildLocked(r.Context())
	if err != nil {
		s.Logger.WithError(err).Error("rebuild failed")
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	jsonResponse(w, http.StatusOK, buildView(res))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	keywords := splitKeywords(q["q"])
	if len(keywords) == 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'q' is required"})
		return
	}

	opts := s.Search
	opts.ExcludeMode = parseBool(q.Get("exclude"))
	if v := q.Get("context"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "context must be a non-negative integer"})
			return
		}
		opts.Context = n
	}

	matches, err := search.SearchSource(r.Context(), s.source(), keywords, opts)
	if err != nil {
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	resp := SearchResponse{Keywords: keywords, Exclude: opts.ExcludeMode, Total: len(matches)}
	if parseBool(q.Get("grouped")) && !opts.ExcludeMode {
		resp.Groups = search.Group(matches, opts.MaxSnippetsPerTerm)
	} else {
		resp.Matches = matches
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.source().Entries(r.Context())
	if err != nil {
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	if title := r.URL.Query().Get("title"); title != "" {
		for _, e := range entries {
			if e.Title == title {
				jsonResponse(w, http.StatusOK, entryView(e, true))
				return
			}
		}
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "entry not found"})
		return
	}

	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e, false))
	}
	jsonResponse(w, http.StatusOK, views)
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.source().Entries(r.Context())
	if err != nil {
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	if title := r.URL.Query().Get("title"); title != "" {
		var picked []index.Entry
		for _, e := range entries {
			if e.Title == title {
				picked = append(picked, e)
			}
		}
		if len(picked) == 0 {
			jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "entry not found"})
			return
		}
		entries = picked
	}

	facts := procurement.FromEntries(entries)
	if facts == nil {
		facts = []procurement.EntryFacts{}
	}
	jsonResponse(w, http.StatusOK, facts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Root:    s.Root,
		Backend: "artifact",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.Store != nil {
		resp.Backend = "sqlite"
	}

	last := s.lastBuild()
	if last != nil {
		resp.LastBuild = buildView(last)
	}

	var statuses []index.FileStatus
	if s.Store != nil {
		st, err := s.Store.Statuses(r.Context(), s.Owner, "")
		if err != nil {
			jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		statuses = st
	} else if last != nil {
		statuses = last.Files
	}
	if len(statuses) > 0 {
		resp.Files = make(map[string]int)
		for _, st := range statuses {
			resp.Files[string(st.Status)]++
		}
	}

	entries, err := s.source().Entries(r.Context())
	switch {
	case err == nil:
		resp.Entries = len(entries)
		for _, is := range index.Reconcile(s.Root, entries) {
			resp.Issues = append(resp.Issues, IssueView{Title: is.Title, Kind: string(is.Kind), Detail: is.Detail})
		}
	case errors.Is(statusErr(err), search.ErrArtifactNotFound):
		// nothing built yet
	default:
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, resp)
}

func splitKeywords(values []string) []string {
	var out []string
	for _, v := range values {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// statusErr maps a missing artifact file onto the search sentinel.
func statusErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return search.ErrArtifactNotFound
	}
	return err
}

func statusFor(err error) int {
	err = statusErr(err)
	switch {
	case errors.Is(err, search.ErrArtifactNotFound), errors.Is(err, index.ErrRootNotFound):
		return http.StatusNotFound
	case errors.Is(err, index.ErrBuildLocked):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
