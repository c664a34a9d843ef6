// Package gallery holds the known face identities and matches query embeddings
// against them.
package gallery

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/rs/zerolog"
)

// Policy selects how a query is matched against the identities.
type Policy string

const (
	// PolicyFirst accepts the first identity in load order within tolerance.
	PolicyFirst Policy = "first"
	// PolicyNearest accepts the closest identity within tolerance.
	PolicyNearest Policy = "nearest"
	// PolicyIndexed accepts the closest identity found through the HNSW index.
	PolicyIndexed Policy = "indexed"
)

// ParsePolicy parses a policy name. Empty means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyNearest, PolicyIndexed:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// Identity is a known face. It is never modified after load.
type Identity struct {
	Label       string
	Embedding   []float32
	Source      string // file name the identity was built from
	ContentHash string
}

// Match is the outcome of matching one embedding.
type Match struct {
	Label    string
	Distance float64
	Known    bool
}

// Options configure how a gallery is built and matched.
type Options struct {
	Policy Policy
	Metric string // database.MetricCosine (default) or database.MetricEuclidean

	// Cache reuses embeddings by reference image content hash. Optional.
	Cache database.IdentityCache
	// IndexPath persists the HNSW graph for PolicyIndexed. Optional.
	IndexPath string
	// Progress is called after each candidate file. Optional.
	Progress func(done, total int)

	Logger zerolog.Logger
}

// Gallery is the immutable set of known identities. Safe for concurrent use.
type Gallery struct {
	identities []Identity
	policy     Policy
	metric     string
	distance   func(a, b []float32) float64
	index      *database.HNSWIndex
	dim        int // common embedding length, 0 when identities disagree
	stats      LoadStats
}

// New builds a gallery from identities already in load order.
func New(identities []Identity, opts Options) (*Gallery, error) {
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	metric := opts.Metric
	if metric == "" {
		metric = database.MetricCosine
	}
	var distance func(a, b []float32) float64
	switch metric {
	case database.MetricCosine:
		distance = database.CosineDistance
	case database.MetricEuclidean:
		distance = database.EuclideanDistance
	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	g := &Gallery{
		identities: make([]Identity, len(identities)),
		policy:     policy,
		metric:     metric,
		distance:   distance,
	}
	copy(g.identities, identities)
	g.stats.Loaded = len(identities)
	g.dim = commonDim(identities)

	if policy == PolicyIndexed {
		if err := g.buildIndex(opts.IndexPath, opts.Logger); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Match compares query against the gallery. A match requires distance < tolerance;
// otherwise the result carries constants.UnknownLabel.
func (g *Gallery) Match(query []float32, tolerance float64) Match {
	unknown := Match{Label: constants.UnknownLabel}
	if len(g.identities) == 0 || len(query) == 0 {
		return unknown
	}

	var (
		idx  = -1
		dist float64
	)
	switch g.policy {
	case PolicyFirst:
		idx, dist = g.matchFirst(query, tolerance)
	case PolicyNearest:
		idx, dist = g.matchNearest(query)
	case PolicyIndexed:
		idx, dist = g.matchIndexed(query)
	}

	if idx < 0 || !(dist < tolerance) {
		if idx >= 0 {
			unknown.Distance = dist
		}
		return unknown
	}
	return Match{Label: g.identities[idx].Label, Distance: dist, Known: true}
}

func (g *Gallery) matchFirst(query []float32, tolerance float64) (int, float64) {
	for i, id := range g.identities {
		if d := g.distance(query, id.Embedding); d < tolerance {
			return i, d
		}
	}
	return -1, 0
}

// matchNearest scans all identities; ties go to the earlier identity.
func (g *Gallery) matchNearest(query []float32) (int, float64) {
	best, bestDist := -1, 0.0
	for i, id := range g.identities {
		d := g.distance(query, id.Embedding)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func (g *Gallery) matchIndexed(query []float32) (int, float64) {
	// The graph only accepts queries of its own dimension.
	if g.index == nil || g.index.IsEmpty() || len(query) != g.dim {
		return g.matchNearest(query)
	}
	k := min(len(g.identities), database.HNSWSearchMultiplier)
	keys, distances, err := g.index.Search(query, k)
	if err != nil || len(keys) == 0 {
		return g.matchNearest(query)
	}

	best, bestDist := keys[0], distances[0]
	for i := 1; i < len(keys) && distances[i] == bestDist; i++ {
		if keys[i] < best {
			best = keys[i]
		}
	}
	return best, bestDist
}

func commonDim(identities []Identity) int {
	if len(identities) == 0 {
		return 0
	}
	dim := len(identities[0].Embedding)
	for _, id := range identities[1:] {
		if len(id.Embedding) != dim {
			return 0
		}
	}
	return dim
}

// Identities returns a copy of the identities in load order.
func (g *Gallery) Identities() []Identity {
	out := make([]Identity, len(g.identities))
	copy(out, g.identities)
	return out
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.identities)
}

// Policy returns the match policy.
func (g *Gallery) Policy() Policy {
	return g.policy
}

// Metric returns the distance metric name.
func (g *Gallery) Metric() string {
	return g.metric
}

// Stats returns load statistics.
func (g *Gallery) Stats() LoadStats {
	s := g.stats
	s.Skipped = append([]SkippedFile(nil), g.stats.Skipped...)
	return s
}
