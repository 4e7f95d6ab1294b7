package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// lastEventIDQuery lets clients that cannot set headers resume a stream.
const lastEventIDQuery = "last_event_id"

// eventStream writes Server-Sent Events to a flushing response writer.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventStream sends the stream headers and a 200 status.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, nil
}

// send writes one event. A positive id is emitted as the event id so the
// browser reports it back in Last-Event-ID on reconnect.
func (s *eventStream) send(id int, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var b strings.Builder
	if id > 0 {
		fmt.Fprintf(&b, "id: %d\n", id)
	}
	fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", event, payload)
	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) progress(se streamEvent) error {
	return s.send(se.seq, "progress", se.ev)
}

// keepAlive writes a comment line, which clients ignore.
func (s *eventStream) keepAlive() error {
	if _, err := s.w.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) fail(message string) {
	_ = s.send(0, "error", map[string]string{"error": message})
}

func (s *eventStream) complete(status BatchStatus) {
	_ = s.send(0, "complete", status)
}

// lastEventID reads the resume point from the Last-Event-ID header or the
// last_event_id query parameter. Anything unparsable means from the start.
func lastEventID(r *http.Request) int {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get(lastEventIDQuery)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
