package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

const (
	// DefaultHNSWM is the max connections per graph layer.
	DefaultHNSWM = 16

	// DefaultHNSWEfSearch is the candidate list size during search.
	DefaultHNSWEfSearch = 64

	// compactMinOrphans is the orphan count below which the graph is never rebuilt.
	compactMinOrphans = 64
)

// HNSWConfig configures an HNSW index.
type HNSWConfig struct {
	// Path is the graph file. The sidecar lives at Path + ".meta".
	// Empty keeps the index in memory only.
	Path string

	Dimensions int
	M          int
	EfSearch   int
}

// HNSWIndex implements Index with the coder/hnsw pure Go graph.
//
// Replacing or deleting a record orphans its graph node instead of calling
// graph.Delete, which misbehaves when the last node of a layer is removed.
// Orphans are skipped at query time and dropped by compaction.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap    map[string]uint64
	keyMap   map[uint64]string
	nextKey  uint64
	metadata map[string]map[string]string

	closed bool
}

var (
	_ Index         = (*HNSWIndex)(nil)
	_ StatsProvider = (*HNSWIndex)(nil)
)

// hnswSidecar is the gob-encoded companion of the exported graph.
type hnswSidecar struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
	M          int
	EfSearch   int
	Metadata   map[string]map[string]string
}

// OpenHNSW loads the index at cfg.Path, or creates and saves an empty one.
// created reports whether a new collection was written.
func OpenHNSW(cfg HNSWConfig) (idx *HNSWIndex, created bool, err error) {
	if cfg.Dimensions <= 0 {
		return nil, false, taskerrors.IndexError("hnsw index needs a positive dimension", nil)
	}
	if cfg.M == 0 {
		cfg.M = DefaultHNSWM
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = DefaultHNSWEfSearch
	}

	idx = &HNSWIndex{
		graph:    newGraph(cfg),
		config:   cfg,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		metadata: make(map[string]map[string]string),
	}

	if cfg.Path == "" {
		return idx, true, nil
	}

	if fileExists(sidecarPath(cfg.Path)) {
		if err := idx.load(); err != nil {
			return nil, false, taskerrors.New(taskerrors.ErrCodeStorageCorrupt,
				"failed to load vector index", err).
				WithDetail("path", cfg.Path).
				WithSuggestion("delete the index files and run: tasksearch reindex")
		}
		if idx.config.Dimensions != cfg.Dimensions {
			return nil, false, taskerrors.New(taskerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector index has dimension %d but the embedder produces %d",
					idx.config.Dimensions, cfg.Dimensions), nil).
				WithDetail("path", cfg.Path).
				WithSuggestion("run: tasksearch reindex --force")
		}
		slog.Debug("hnsw_index_loaded",
			slog.String("path", cfg.Path),
			slog.Int("records", len(idx.idMap)),
			slog.Int("graph_nodes", idx.graph.Len()))
		return idx, false, nil
	}

	if err := idx.save(); err != nil {
		return nil, false, taskerrors.IndexError("failed to create vector index", err).
			WithDetail("path", cfg.Path)
	}
	slog.Info("hnsw_index_created",
		slog.String("path", cfg.Path),
		slog.Int("dimensions", cfg.Dimensions))
	return idx, true, nil
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	// Euclidean is a registered distance, so Export/Import round-trip it.
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Upsert inserts or replaces records and persists the index.
func (s *HNSWIndex) Upsert(_ context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := validateBatch(ids, vectors, metadata, s.config.Dimensions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}

	for i, id := range ids {
		if oldKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, oldKey)
		}

		key := s.nextKey
		s.nextKey++

		s.graph.Add(hnsw.MakeNode(key, normalized(vectors[i])))
		s.idMap[id] = key
		s.keyMap[key] = id

		if m := metadataAt(metadata, i); m != nil {
			s.metadata[id] = maps.Clone(m)
		} else {
			delete(s.metadata, id)
		}
	}

	return s.persistLocked()
}

// Query returns the topK nearest records.
func (s *HNSWIndex) Query(_ context.Context, vector []float32, topK int) ([]Hit, error) {
	if err := checkDims(vector, s.config.Dimensions); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}
	if topK <= 0 || len(s.idMap) == 0 {
		return []Hit{}, nil
	}
	topK = min(topK, len(s.idMap))

	query := normalized(vector)

	// Orphans can occupy result slots, so ask the graph for enough extra.
	orphans := s.graph.Len() - len(s.idMap)
	k := min(topK+orphans, s.graph.Len())

	hits := make([]Hit, 0, topK)
	for _, node := range s.graph.Search(query, k) {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		d := hnsw.EuclideanDistance(query, node.Value)
		hits = append(hits, Hit{ID: id, Distance: d * d})
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes records by id and persists the index.
func (s *HNSWIndex) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}

	removed := 0
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.metadata, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return s.persistLocked()
}

// Get returns the record for id, or nil if absent.
func (s *HNSWIndex) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}

	key, ok := s.idMap[id]
	if !ok {
		return nil, nil
	}
	vec, ok := s.graph.Lookup(key)
	if !ok {
		return nil, taskerrors.New(taskerrors.ErrCodeStorageCorrupt,
			fmt.Sprintf("record %s has no graph node", id), nil)
	}
	return &Record{
		ID:       id,
		Vector:   slices.Clone([]float32(vec)),
		Metadata: maps.Clone(s.metadata[id]),
	}, nil
}

// IDs returns every record id in lexical order.
func (s *HNSWIndex) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}
	ids := slices.Collect(maps.Keys(s.idMap))
	slices.Sort(ids)
	return ids, nil
}

// Count returns the number of records.
func (s *HNSWIndex) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errClosed()
	}
	return len(s.idMap), nil
}

// Stats reports record and orphan counts.
func (s *HNSWIndex) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{Backend: BackendHNSW}
	}
	return Stats{
		Backend:    BackendHNSW,
		Records:    len(s.idMap),
		Dimensions: s.config.Dimensions,
		Orphans:    s.graph.Len() - len(s.idMap),
	}
}

// Close releases the graph. The index was already persisted by the last write.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// persistLocked compacts when orphans dominate and writes the index to disk.
// Caller must hold the write lock.
func (s *HNSWIndex) persistLocked() error {
	orphans := s.graph.Len() - len(s.idMap)
	if orphans >= compactMinOrphans && orphans > len(s.idMap) {
		s.compactLocked()
	}
	if s.config.Path == "" {
		return nil
	}
	if err := s.save(); err != nil {
		return taskerrors.IndexError("failed to persist vector index", err).
			WithDetail("path", s.config.Path)
	}
	return nil
}

// compactLocked rebuilds the graph from live records only.
func (s *HNSWIndex) compactLocked() {
	before := s.graph.Len()
	graph := newGraph(s.config)
	idMap := make(map[string]uint64, len(s.idMap))
	keyMap := make(map[uint64]string, len(s.idMap))

	var next uint64
	for _, id := range slices.Sorted(maps.Keys(s.idMap)) {
		vec, ok := s.graph.Lookup(s.idMap[id])
		if !ok {
			continue
		}
		graph.Add(hnsw.MakeNode(next, vec))
		idMap[id] = next
		keyMap[next] = id
		next++
	}

	s.graph = graph
	s.idMap = idMap
	s.keyMap = keyMap
	s.nextKey = next

	slog.Debug("hnsw_index_compacted",
		slog.Int("nodes_before", before),
		slog.Int("nodes_after", graph.Len()))
}

// save writes the graph and its sidecar atomically (temp file + rename).
// An empty graph is represented by the sidecar alone.
func (s *HNSWIndex) save() error {
	path := s.config.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	if s.graph.Len() == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove empty graph file: %w", err)
		}
	} else if err := writeAtomic(path, s.graph.Export); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	sidecar := hnswSidecar{
		IDMap:      s.idMap,
		NextKey:    s.nextKey,
		Dimensions: s.config.Dimensions,
		M:          s.config.M,
		EfSearch:   s.config.EfSearch,
		Metadata:   s.metadata,
	}
	if err := writeAtomic(sidecarPath(path), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(sidecar)
	}); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// writeAtomic writes through a temp file renamed over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// load reads the sidecar and, when present, the graph file.
func (s *HNSWIndex) load() error {
	path := s.config.Path

	f, err := os.Open(sidecarPath(path))
	if err != nil {
		return fmt.Errorf("open sidecar: %w", err)
	}
	var sidecar hnswSidecar
	err = gob.NewDecoder(f).Decode(&sidecar)
	if closeErr := f.Close(); closeErr != nil {
		slog.Warn("failed to close sidecar", slog.String("error", closeErr.Error()))
	}
	if err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	s.config.Dimensions = sidecar.Dimensions
	s.config.M = sidecar.M
	s.config.EfSearch = sidecar.EfSearch
	s.graph = newGraph(s.config)
	s.idMap = sidecar.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.metadata = sidecar.Metadata
	if s.metadata == nil {
		s.metadata = make(map[string]map[string]string)
	}
	s.nextKey = sidecar.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	if !fileExists(path) {
		if len(s.idMap) > 0 {
			return fmt.Errorf("graph file %s is missing for %d records", path, len(s.idMap))
		}
		return nil
	}

	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer func() { _ = gf.Close() }()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func sidecarPath(path string) string {
	return path + ".meta"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func errClosed() error {
	return taskerrors.IndexError("vector index is closed", nil)
}
