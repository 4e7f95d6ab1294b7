package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jonathan/idea-forge/internal/batch"
	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/types"
)

const (
	// maxBatchBody bounds the request body of a batch submission.
	maxBatchBody      = 1 << 20
	keepAliveInterval = 15 * time.Second
)

// CreateBatchRequest is the body of POST /batches. Zero fields fall back to
// the server defaults.
type CreateBatchRequest struct {
	Ideas         []types.Idea `json:"ideas" validate:"required,min=1,max=100,dive"`
	Mode          string       `json:"mode,omitempty"`
	RunType       string       `json:"run_type,omitempty" validate:"omitempty,oneof=test production"`
	MaxIterations int          `json:"max_iterations,omitempty" validate:"min=0,max=100"`
}

var requestValidator = validator.New()

// Validate validates the request using the validator.
func (r *CreateBatchRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ErrValidation{Field: strings.ToLower(fe.Field()), Message: fmt.Sprintf("failed %s check", fe.Tag())}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	for i, idea := range r.Ideas {
		if err := ledger.CheckIdea(idea); err != nil {
			return &ErrValidation{Field: fmt.Sprintf("ideas[%d]", i), Message: err.Error()}
		}
	}
	return nil
}

// options resolves the request against the server defaults.
func (r *CreateBatchRequest) options(defaults batch.Options) (batch.Options, error) {
	opts := defaults
	if r.Mode != "" {
		mode, err := types.ParseMode(r.Mode)
		if err != nil {
			return opts, &ErrValidation{Field: "mode", Message: err.Error()}
		}
		opts.Mode = mode
	}
	if r.RunType != "" {
		opts.RunType = types.RunType(r.RunType)
	}
	if r.MaxIterations > 0 {
		opts.MaxIterations = r.MaxIterations
	}
	return opts, nil
}

// handleCreateBatch starts a batch in the background and returns its id.
// Progress is available from /batches/{id}/events.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runner == nil {
		s.fail(w, &ErrUnavailable{Feature: "batch execution"})
		return
	}

	var req CreateBatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.fail(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, err)
		return
	}
	opts, err := req.options(s.opts.Batch)
	if err != nil {
		s.fail(w, err)
		return
	}

	if s.opts.Ledger != nil {
		for _, idea := range req.Ideas {
			if err := s.opts.Ledger.AddPending(idea); err != nil {
				s.fail(w, err)
				return
			}
		}
	}

	b := newBatchRun(req.Ideas, s.now())
	s.batches.add(b)

	// Chain any caller-supplied callback after the stream publisher.
	next := opts.OnProgress
	opts.OnProgress = func(ev pipeline.ProgressEvent) {
		b.publish(ev)
		if next != nil {
			next(ev)
		}
	}

	logger := s.logger.With("batch_id", b.id)
	controller := batch.NewController(s.opts.Runner, opts, nil, logger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info("batch started", "ideas", len(req.Ideas), "mode", opts.Mode)
		results := controller.ProcessBatch(s.baseCtx, req.Ideas, s.opts.Ledger)
		b.finish(results, s.now())
		logger.Info("batch finished", "results", len(results))
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"id":     b.id,
		"ideas":  len(req.Ideas),
		"events": "/batches/" + b.id + "/events",
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"batches": s.batches.list()})
}

func (s *Server) lookupBatch(r *http.Request) (*batchRun, error) {
	id := chi.URLParam(r, "id")
	b, ok := s.batches.get(id)
	if !ok {
		return nil, &ErrNotFound{Resource: "batch", ID: id}
	}
	return b, nil
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.lookupBatch(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, b.status())
}

// handleBatchEvents streams progress as Server-Sent Events: the buffered
// events after Last-Event-ID, then live ones, then a final "complete" event
// carrying the batch status.
func (s *Server) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	b, err := s.lookupBatch(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, events, cancel := b.subscribe(lastEventID(r))
	defer cancel()

	sent := 0
	for _, se := range history {
		if err := stream.progress(se); err != nil {
			return
		}
		sent = se.seq
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case se := <-events:
			if se.seq <= sent {
				continue
			}
			if err := stream.progress(se); err != nil {
				return
			}
			sent = se.seq
		case <-b.done:
			// Flush whatever was published before the batch finished.
			for {
				select {
				case se := <-events:
					if se.seq <= sent {
						continue
					}
					if err := stream.progress(se); err != nil {
						return
					}
					sent = se.seq
				default:
					stream.complete(b.status())
					return
				}
			}
		case <-ticker.C:
			if err := stream.keepAlive(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			stream.fail("server shutting down")
			return
		}
	}
}
