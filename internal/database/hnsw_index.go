package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	IdentityCount int       `json:"identity_count"`
	Fingerprint   string    `json:"fingerprint"` // digest of gallery labels and content hashes
	Metric        string    `json:"metric"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const hnswMetadataVersion = 1

// IndexedVector is a single vector added to the index. Key is the load position
// of the identity in the gallery.
type IndexedVector struct {
	Key       int
	Embedding []float32
}

// HNSWIndex wraps the HNSW graph for gallery embedding search.
type HNSWIndex struct {
	graph      *hnsw.Graph[int]
	savedGraph *hnsw.SavedGraph[int] // For persistence
	vectors    map[int][]float32
	distance   func(a, b []float32) float64
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index using the given metric ("cosine" or "euclidean").
func NewHNSWIndex(metric string) *HNSWIndex {
	idx := &HNSWIndex{
		vectors:  make(map[int][]float32),
		distance: CosineDistance,
	}
	if metric == MetricEuclidean {
		idx.distance = EuclideanDistance
	}
	return idx
}

func newGraph(metric string) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	if metric == MetricEuclidean {
		g.Distance = hnsw.EuclideanDistance
	}
	return g
}

// Build builds the index from a slice of vectors, replacing any previous content.
func (h *HNSWIndex) Build(metric string, vectors []IndexedVector) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.vectors = make(map[int][]float32, len(vectors))

	if len(vectors) == 0 {
		h.graph = nil
		return
	}

	g := newGraph(metric)
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(v.Key, v.Embedding))
		h.vectors[v.Key] = v.Embedding
	}
	h.graph = g
}

// Search finds the k nearest neighbors to the query embedding.
// Returns keys and their exact distances, closest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]int, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[int]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	keys := make([]int, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.vectors[n.Key]; !ok {
			continue
		}
		keys = append(keys, n.Key)
		// Exact distance from the node value, graph distances are float32 approximations.
		distances = append(distances, h.distance(query, n.Value))
	}

	// Graph results are approximately ordered; keep the closest first.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && distances[j] < distances[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
			distances[j], distances[j-1] = distances[j-1], distances[j]
		}
	}

	return keys, distances, nil
}

// Count returns the number of indexed vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// Load loads a saved graph from disk and attaches the vectors it was built from.
// Returns false without error if no index file exists.
func (h *HNSWIndex) Load(path string, vectors []IndexedVector) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	saved, err := hnsw.LoadSavedGraph[int](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.graph = nil
	h.savedGraph = saved
	h.vectors = make(map[int][]float32, len(vectors))
	for _, v := range vectors {
		h.vectors[v.Key] = v.Embedding
	}
	return true, nil
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}
