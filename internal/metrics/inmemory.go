package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of an InMemoryRecorder.
type Snapshot struct {
	CacheHits           uint64            `json:"cache_hits"`
	CacheMisses         uint64            `json:"cache_misses"`
	APIRequests         uint64            `json:"api_requests"`
	APIErrors           uint64            `json:"api_server_errors"`
	APIDurationTotalNs  int64             `json:"api_duration_total_ns"`
	RateLimited         uint64            `json:"rate_limited"`
	CollectionSuccesses uint64            `json:"collection_successes"`
	CollectionFailures  uint64            `json:"collection_failures"`
	ProcessingCount     uint64            `json:"processing_count"`
	ProcessingTotalNs   int64             `json:"processing_total_ns"`
	Errors              uint64            `json:"errors"`
	WebsocketClients    int64             `json:"websocket_clients"`
	RequestsByEndpoint  map[string]uint64 `json:"requests_by_endpoint"`
	// ErrorsByKind is keyed "service/kind".
	ErrorsByKind map[string]uint64 `json:"errors_by_kind"`
}

// InMemoryRecorder keeps counters in process. Tests and the metrics
// endpoint fallback read them through Snapshot.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		RequestsByEndpoint: make(map[string]uint64),
		ErrorsByKind:       make(map[string]uint64),
	}}
}

func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.RequestsByEndpoint = maps.Clone(m.snap.RequestsByEndpoint)
	out.ErrorsByKind = maps.Clone(m.snap.ErrorsByKind)
	return out
}

func (m *InMemoryRecorder) update(fn func(s *Snapshot)) {
	m.mu.Lock()
	fn(&m.snap)
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncCacheHit(string) {
	m.update(func(s *Snapshot) { s.CacheHits++ })
}

func (m *InMemoryRecorder) IncCacheMiss(string) {
	m.update(func(s *Snapshot) { s.CacheMisses++ })
}

// ObserveAPIRequest counts a request; 5xx statuses also count as errors.
func (m *InMemoryRecorder) ObserveAPIRequest(endpoint string, status int, d time.Duration) {
	m.update(func(s *Snapshot) {
		s.APIRequests++
		s.APIDurationTotalNs += d.Nanoseconds()
		if status >= 500 {
			s.APIErrors++
		}
		s.RequestsByEndpoint[endpoint]++
	})
}

func (m *InMemoryRecorder) IncRateLimited(string) {
	m.update(func(s *Snapshot) { s.RateLimited++ })
}

func (m *InMemoryRecorder) SetDataCollectionSuccess(_, _ string, ok bool) {
	m.update(func(s *Snapshot) {
		if ok {
			s.CollectionSuccesses++
		} else {
			s.CollectionFailures++
		}
	})
}

func (m *InMemoryRecorder) ObserveProcessingTime(_ string, d time.Duration) {
	m.update(func(s *Snapshot) {
		s.ProcessingCount++
		s.ProcessingTotalNs += d.Nanoseconds()
	})
}

func (m *InMemoryRecorder) IncError(service, kind string) {
	m.update(func(s *Snapshot) {
		s.Errors++
		s.ErrorsByKind[service+"/"+kind]++
	})
}

func (m *InMemoryRecorder) AddWebsocketConnections(delta int) {
	m.update(func(s *Snapshot) { s.WebsocketClients += int64(delta) })
}
