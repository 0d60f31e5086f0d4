package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/h3tag-core/consensus/logs"
)

var log, _ = logs.Get(logs.SubsystemTags.AUDT)

// HTTPSink is a worked external-collaborator example: it forwards every
// CRITICAL-severity event to a remote endpoint, and exposes the last N
// events seen over a gorilla/mux-routed read-only HTTP API, the same
// routing library the teacher's apiserver/kasparov services use.
type HTTPSink struct {
	mu       sync.Mutex
	recent   []Event
	capacity int
	endpoint string
	client   *http.Client
}

// NewHTTPSink builds an HTTPSink that POSTs CRITICAL events to endpoint
// (empty disables forwarding) and retains up to capacity recent events
// for inspection via Router.
func NewHTTPSink(endpoint string, capacity int) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		capacity: capacity,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// LogEvent implements Sink.
func (s *HTTPSink) LogEvent(e Event) {
	s.mu.Lock()
	if len(s.recent) >= s.capacity {
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, e)
	s.mu.Unlock()

	if e.Severity != SeverityCritical || s.endpoint == "" {
		return
	}
	go s.forward(e)
}

func (s *HTTPSink) forward(e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		log.Warnf("audit: failed to marshal event for forwarding: %s", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warnf("audit: failed to build forwarding request: %s", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		log.Warnf("audit: failed to forward CRITICAL event: %s", err)
		return
	}
	resp.Body.Close()
}

// Router returns a read-only gorilla/mux router exposing the recent event
// buffer at GET /audit/recent.
func (s *HTTPSink) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/audit/recent", s.handleRecent).Methods(http.MethodGet)
	return r
}

func (s *HTTPSink) handleRecent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	events := append([]Event(nil), s.recent...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
