package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/types"
)

// Batch states.
const (
	BatchRunning  = "running"
	BatchFinished = "finished"
)

const (
	maxBufferedEvents = 1000
	subscriberBuffer  = 64
)

// BatchStatus is the JSON view of a submitted batch.
type BatchStatus struct {
	ID         string                      `json:"id"`
	State      string                      `json:"state"`
	Ideas      []types.Idea                `json:"ideas"`
	CreatedAt  time.Time                   `json:"created_at"`
	FinishedAt *time.Time                  `json:"finished_at,omitempty"`
	Succeeded  int                         `json:"succeeded"`
	Failed     int                         `json:"failed"`
	Results    map[string]*pipeline.Result `json:"results,omitempty"`
}

// streamEvent is a progress event numbered in publish order, starting at 1.
type streamEvent struct {
	seq int
	ev  pipeline.ProgressEvent
}

// batchRun holds the progress of one batch submitted through the API and
// fans its events out to stream subscribers.
type batchRun struct {
	id        string
	ideas     []types.Idea
	createdAt time.Time

	mu          sync.Mutex
	events      []streamEvent
	lastSeq     int
	subscribers map[chan streamEvent]struct{}
	results     map[string]*pipeline.Result
	finishedAt  *time.Time
	done        chan struct{}
}

func newBatchRun(ideas []types.Idea, now time.Time) *batchRun {
	return &batchRun{
		id:          uuid.NewString(),
		ideas:       ideas,
		createdAt:   now,
		subscribers: make(map[chan streamEvent]struct{}),
		done:        make(chan struct{}),
	}
}

// publish records ev and hands it to every subscriber that has room.
// Slow subscribers miss events rather than stall the pipeline.
func (b *batchRun) publish(ev pipeline.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq++
	se := streamEvent{seq: b.lastSeq, ev: ev}
	if len(b.events) >= maxBufferedEvents {
		b.events = b.events[1:]
	}
	b.events = append(b.events, se)

	for ch := range b.subscribers {
		select {
		case ch <- se:
		default:
		}
	}
}

// subscribe returns the buffered events numbered after afterSeq and a channel
// for the rest.
func (b *batchRun) subscribe(afterSeq int) ([]streamEvent, <-chan streamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var history []streamEvent
	for _, se := range b.events {
		if se.seq > afterSeq {
			history = append(history, se)
		}
	}

	ch := make(chan streamEvent, subscriberBuffer)
	b.subscribers[ch] = struct{}{}
	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}
	return history, ch, cancel
}

func (b *batchRun) finish(results map[string]*pipeline.Result, now time.Time) {
	b.mu.Lock()
	b.results = results
	b.finishedAt = &now
	b.mu.Unlock()
	close(b.done)
}

func (b *batchRun) status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BatchStatus{
		ID:         b.id,
		State:      BatchRunning,
		Ideas:      b.ideas,
		CreatedAt:  b.createdAt,
		FinishedAt: b.finishedAt,
		Results:    b.results,
	}
	if b.finishedAt != nil {
		st.State = BatchFinished
	}
	for _, res := range b.results {
		if res.Success {
			st.Succeeded++
		} else {
			st.Failed++
		}
	}
	return st
}

// batchRegistry keeps every batch submitted since the server started.
type batchRegistry struct {
	mu      sync.RWMutex
	batches map[string]*batchRun
}

func newBatchRegistry() *batchRegistry {
	return &batchRegistry{batches: make(map[string]*batchRun)}
}

func (r *batchRegistry) add(b *batchRun) {
	r.mu.Lock()
	r.batches[b.id] = b
	r.mu.Unlock()
}

func (r *batchRegistry) get(id string) (*batchRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	return b, ok
}

// list returns the batches newest first.
func (r *batchRegistry) list() []BatchStatus {
	r.mu.RLock()
	out := make([]BatchStatus, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, b.status())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
