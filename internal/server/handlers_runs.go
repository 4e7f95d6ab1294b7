package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/db"
	"github.com/jonathan/idea-forge/internal/types"
)

// RunOverview summarizes a working directory when no run index is configured.
type RunOverview struct {
	Slug        string       `json:"slug"`
	RunID       string       `json:"run_id,omitempty"`
	Iterations  int          `json:"iterations"`
	FinalStatus types.Status `json:"final_status,omitempty"`
}

// slugParam returns the {slug} URL parameter when it is a well-formed slug.
func slugParam(r *http.Request) (string, error) {
	slug := chi.URLParam(r, "slug")
	if slug == "" || types.Slugify(slug) != slug {
		return "", &ErrValidation{Field: "slug", Message: "must be a lowercase hyphenated idea slug"}
	}
	return slug, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ErrValidation{Field: "limit", Message: "must be a non-negative integer"}
	}
	return n, nil
}

// handleListRuns lists runs from the index, or the working directories when
// no index is configured.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	slug := r.URL.Query().Get("slug")

	if s.opts.Index != nil {
		runs, err := s.opts.Index.ListRuns(r.Context(), slug, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		if runs == nil {
			runs = []db.Run{}
		}
		s.jsonResponse(w, http.StatusOK, map[string]any{"source": "index", "runs": runs})
		return
	}

	slugs, err := s.opts.Store.Slugs()
	if err != nil {
		s.fail(w, err)
		return
	}
	overviews := make([]RunOverview, 0, len(slugs))
	for _, sl := range slugs {
		if slug != "" && sl != slug {
			continue
		}
		overviews = append(overviews, s.overview(sl))
		if limit > 0 && len(overviews) == limit {
			break
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"source": "artifacts", "runs": overviews})
}

func (s *Server) overview(slug string) RunOverview {
	ov := RunOverview{Slug: slug}
	var history types.IterationHistory
	if err := artifacts.ReadJSON(s.opts.Store.WorkingDir(slug).History(), &history); err != nil {
		return ov
	}
	ov.RunID = history.RunID
	ov.Iterations = len(history.Iterations)
	ov.FinalStatus = history.FinalStatus
	return ov
}

func (s *Server) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "application/json", artifacts.Dir.History)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "application/json", artifacts.Dir.Summary)
}

func (s *Server) handleRunMetadata(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "application/json", artifacts.Dir.Metadata)
}

func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "text/markdown; charset=utf-8", artifacts.Dir.Analysis)
}

// serveArtifact writes one file of the slug's working directory verbatim.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, contentType string, file func(artifacts.Dir) string) {
	slug, err := slugParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	path := file(s.opts.Store.WorkingDir(slug))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.fail(w, &ErrNotFound{Resource: "artifact", ID: slug})
			return
		}
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write artifact", "path", path, "error", err)
	}
}

func (s *Server) handleRunArchives(w http.ResponseWriter, r *http.Request) {
	slug, err := slugParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.opts.Archiver == nil {
		s.fail(w, &ErrUnavailable{Feature: "archive listing"})
		return
	}

	entries, err := s.opts.Archiver.List(s.opts.Store.WorkingDir(slug).String())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"slug": slug, "archives": entries})
}

// handleRunSteps returns the agent steps of the latest indexed run of a slug.
func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	slug, err := slugParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.opts.Index == nil {
		s.fail(w, &ErrUnavailable{Feature: "run index"})
		return
	}

	runs, err := s.opts.Index.ListRuns(r.Context(), slug, 1)
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(runs) == 0 {
		s.fail(w, &ErrNotFound{Resource: "run", ID: slug})
		return
	}

	steps, err := s.opts.Index.ListSteps(r.Context(), runs[0].ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if steps == nil {
		steps = []db.Step{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"run": runs[0], "steps": steps})
}
