package telemetry

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency class for the query log.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one search as seen by the query log.
type QueryEvent struct {
	Query       string
	ResultCount int
	Latency     time.Duration
}

// CircularBuffer is a fixed-capacity FIFO that evicts the oldest item.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer returns a buffer holding at most capacity items
// (100 when capacity is not positive).
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first. Never nil.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, 0, b.size)
	if b.size < b.capacity {
		return append(out, b.items[:b.size]...)
	}
	out = append(out, b.items[b.head:]...)
	return append(out, b.items[:b.head]...)
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySnapshot is a point-in-time copy of the query log.
type QuerySnapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	TopTerms          []TermCount             `json:"top_terms"`
	Latency           map[LatencyBucket]int64 `json:"latency_distribution"`
	Since             time.Time               `json:"since"`
}

// QueryLogConfig sizes the query log.
type QueryLogConfig struct {
	MaxZeroResults int
	MaxTerms       int
}

// QueryLog keeps recent search statistics in memory so operators can see
// which queries find nothing. A nil *QueryLog is a no-op.
type QueryLog struct {
	mu          sync.Mutex
	total       int64
	zeroCount   int64
	zeroResults *CircularBuffer[string]
	terms       *lru.Cache[string, int64]
	latency     map[LatencyBucket]int64
	since       time.Time
}

// NewQueryLog returns an empty log. Zero config values use 50 zero-result
// queries and 500 terms.
func NewQueryLog(cfg QueryLogConfig) *QueryLog {
	if cfg.MaxZeroResults <= 0 {
		cfg.MaxZeroResults = 50
	}
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = 500
	}
	terms, _ := lru.New[string, int64](cfg.MaxTerms) // only fails for size <= 0
	return &QueryLog{
		zeroResults: NewCircularBuffer[string](cfg.MaxZeroResults),
		terms:       terms,
		latency:     make(map[LatencyBucket]int64),
		since:       time.Now(),
	}
}

// Record adds one search.
func (l *QueryLog) Record(e QueryEvent) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.latency[LatencyToBucket(e.Latency)]++
	for _, term := range ExtractTerms(e.Query) {
		n, _ := l.terms.Get(term)
		l.terms.Add(term, n+1)
	}
	if e.ResultCount == 0 {
		l.zeroCount++
		l.zeroResults.Add(e.Query)
	}
}

// Snapshot copies the current state. Top terms are ordered by count, then term.
func (l *QueryLog) Snapshot() QuerySnapshot {
	if l == nil {
		return QuerySnapshot{ZeroResultQueries: []string{}, TopTerms: []TermCount{}, Latency: map[LatencyBucket]int64{}}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	terms := make([]TermCount, 0, l.terms.Len())
	for _, k := range l.terms.Keys() {
		if n, ok := l.terms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: n})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	latency := make(map[LatencyBucket]int64, len(l.latency))
	for k, v := range l.latency {
		latency[k] = v
	}

	return QuerySnapshot{
		TotalQueries:      l.total,
		ZeroResultCount:   l.zeroCount,
		ZeroResultQueries: l.zeroResults.Items(),
		TopTerms:          terms,
		Latency:           latency,
		Since:             l.since,
	}
}
