package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/rs/zerolog"
)

// fakeDetector returns embeddings keyed by image content hash.
type fakeDetector struct {
	mu     sync.Mutex
	faces  map[string][]fingerprint.FaceDetection
	failOn map[string]bool
	calls  int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{
		faces:  make(map[string][]fingerprint.FaceDetection),
		failOn: make(map[string]bool),
	}
}

func (d *fakeDetector) ComputeFaceEmbeddings(_ context.Context, data []byte) (*fingerprint.FaceResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	hash := fingerprint.ContentHash(data)
	if d.failOn[hash] {
		return nil, errors.New("embedding server unavailable")
	}
	faces := d.faces[hash]
	return &fingerprint.FaceResponse{FacesCount: len(faces), Faces: faces, Model: "fake"}, nil
}

// writeImage writes a small PNG with a unique color and returns its bytes.
func writeImage(t *testing.T, dir, name string, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{shade, 255 - shade, shade / 2, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return buf.Bytes()
}

func face(index int, emb ...float32) fingerprint.FaceDetection {
	return fingerprint.FaceDetection{FaceIndex: index, Dim: len(emb), Embedding: emb, BBox: []float64{0, 0, 4, 4}}
}

// setupGalleryDir creates a gallery with two good identities and several bad files.
func setupGalleryDir(t *testing.T) (string, *fakeDetector) {
	t.Helper()
	dir := t.TempDir()
	det := newFakeDetector()

	bob := writeImage(t, dir, "bob.png", 10)
	det.faces[fingerprint.ContentHash(bob)] = []fingerprint.FaceDetection{face(0, 0, 1, 0)}

	// Two faces: the lowest face index wins
	alice := writeImage(t, dir, "Alice.PNG", 20)
	det.faces[fingerprint.ContentHash(alice)] = []fingerprint.FaceDetection{face(1, 0, 0, 1), face(0, 1, 0, 0)}

	writeImage(t, dir, "empty.png", 30) // no faces

	failing := writeImage(t, dir, "flaky.png", 40)
	det.failOn[fingerprint.ContentHash(failing)] = true

	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o700); err != nil {
		t.Fatal(err)
	}

	return dir, det
}

func TestLoad(t *testing.T) {
	dir, det := setupGalleryDir(t)

	g, err := Load(context.Background(), dir, det, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	ids := g.Identities()
	if len(ids) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(ids))
	}
	// File name order: "Alice.PNG" < "bob.png"
	if ids[0].Label != "Alice" || ids[1].Label != "bob" {
		t.Errorf("unexpected labels %q, %q", ids[0].Label, ids[1].Label)
	}
	if ids[0].Embedding[0] != 1 {
		t.Errorf("expected first face embedding for Alice, got %v", ids[0].Embedding)
	}

	stats := g.Stats()
	if stats.Candidates != 5 {
		t.Errorf("expected 5 candidates, got %d", stats.Candidates)
	}
	if len(stats.Skipped) != 3 {
		t.Errorf("expected 3 skipped files, got %+v", stats.Skipped)
	}
}

func TestLoad_Deterministic(t *testing.T) {
	dir, det := setupGalleryDir(t)

	g1, err := Load(context.Background(), dir, det, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	g2, err := Load(context.Background(), dir, det, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}

	a, b := g1.Identities(), g2.Identities()
	if len(a) != len(b) {
		t.Fatalf("identity counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Label != b[i].Label || database.CosineDistance(a[i].Embedding, b[i].Embedding) != 0 {
			t.Errorf("identity %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if g1.Fingerprint() != g2.Fingerprint() {
		t.Error("fingerprints should match for the same directory")
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing"), newFakeDetector(), Options{})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoad_EmptyDirectory(t *testing.T) {
	g, err := Load(context.Background(), t.TempDir(), newFakeDetector(), Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery, got %d", g.Len())
	}
	if m := g.Match([]float32{1, 0, 0}, 0.5); m.Known || m.Label != constants.UnknownLabel {
		t.Errorf("expected unknown, got %+v", m)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	dir, det := setupGalleryDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Load(ctx, dir, det, Options{Logger: zerolog.Nop()}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoad_IdentityCache(t *testing.T) {
	dir, det := setupGalleryDir(t)
	cache := mock.NewMockStore()
	var progress []int

	opts := Options{
		Cache:    cache,
		Logger:   zerolog.Nop(),
		Progress: func(done, total int) { progress = append(progress, done) },
	}
	if _, err := Load(context.Background(), dir, det, opts); err != nil {
		t.Fatal(err)
	}
	firstCalls := det.calls
	if len(progress) != 5 || progress[4] != 5 {
		t.Errorf("expected progress 1..5, got %v", progress)
	}

	g, err := Load(context.Background(), dir, det, Options{Cache: cache, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if g.Stats().Cached != 2 {
		t.Errorf("expected 2 cached identities, got %d", g.Stats().Cached)
	}
	// Only the files without a cached identity hit the detector again.
	if det.calls-firstCalls != 2 {
		t.Errorf("expected 2 detector calls on reload, got %d", det.calls-firstCalls)
	}
	if g.Identities()[0].Label != "Alice" {
		t.Errorf("cached identities keep load order, got %q first", g.Identities()[0].Label)
	}
}

func TestMatch_Threshold(t *testing.T) {
	// Euclidean keeps the distances exact: query at distance d from the identity.
	identities := []Identity{{Label: "000004", Embedding: []float32{0, 0}}}

	tests := []struct {
		name      string
		query     []float32
		wantKnown bool
	}{
		{"distance 0.3 matches", []float32{0.3, 0}, true},
		{"distance 0.6 is unknown", []float32{0.6, 0}, false},
		{"distance equal to tolerance is unknown", []float32{0.5, 0}, false},
		{"dimension mismatch is unknown", []float32{0, 0, 0}, false},
	}

	for _, policy := range []Policy{PolicyFirst, PolicyNearest, PolicyIndexed} {
		g, err := New(identities, Options{Policy: policy, Metric: database.MetricEuclidean})
		if err != nil {
			t.Fatal(err)
		}
		for _, tt := range tests {
			t.Run(string(policy)+"/"+tt.name, func(t *testing.T) {
				m := g.Match(tt.query, 0.5)
				if m.Known != tt.wantKnown {
					t.Errorf("Match() known = %v, want %v (distance %v)", m.Known, tt.wantKnown, m.Distance)
				}
				if tt.wantKnown && m.Label != "000004" {
					t.Errorf("expected label 000004, got %q", m.Label)
				}
				if !tt.wantKnown && m.Label != constants.UnknownLabel {
					t.Errorf("expected unknown label, got %q", m.Label)
				}
			})
		}
	}
}

func TestMatch_Policies(t *testing.T) {
	identities := []Identity{
		{Label: "first", Embedding: []float32{0.4, 0}},
		{Label: "closest", Embedding: []float32{0.1, 0}},
		{Label: "far", Embedding: []float32{5, 5}},
	}
	query := []float32{0, 0}

	tests := []struct {
		policy Policy
		want   string
	}{
		{PolicyFirst, "first"},
		{PolicyNearest, "closest"},
		{PolicyIndexed, "closest"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			g, err := New(identities, Options{Policy: tt.policy, Metric: database.MetricEuclidean})
			if err != nil {
				t.Fatal(err)
			}
			m := g.Match(query, 0.5)
			if m.Label != tt.want {
				t.Errorf("policy %s matched %q, want %q", tt.policy, m.Label, tt.want)
			}
		})
	}
}

func TestMatch_NearestTieGoesToLoadOrder(t *testing.T) {
	identities := []Identity{
		{Label: "a", Embedding: []float32{0.2, 0}},
		{Label: "b", Embedding: []float32{-0.2, 0}},
	}
	for _, policy := range []Policy{PolicyNearest, PolicyIndexed} {
		g, err := New(identities, Options{Policy: policy, Metric: database.MetricEuclidean})
		if err != nil {
			t.Fatal(err)
		}
		if m := g.Match([]float32{0, 0}, 0.5); m.Label != "a" {
			t.Errorf("%s: expected earlier identity on tie, got %q", policy, m.Label)
		}
	}
}

func TestMatch_Cosine(t *testing.T) {
	g, err := New([]Identity{{Label: "x", Embedding: []float32{1, 0}}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if g.Metric() != database.MetricCosine || g.Policy() != PolicyFirst {
		t.Errorf("unexpected defaults %s/%s", g.Metric(), g.Policy())
	}

	// 45 degrees: cosine distance 1 - cos(45°) ≈ 0.293
	m := g.Match([]float32{1, 1}, 0.5)
	if !m.Known || math.Abs(m.Distance-(1-math.Sqrt2/2)) > 1e-6 {
		t.Errorf("expected match at ~0.293, got %+v", m)
	}
	// Orthogonal: distance 1
	if m := g.Match([]float32{0, 1}, 0.5); m.Known {
		t.Errorf("expected unknown for orthogonal vector, got %+v", m)
	}
}

func TestIndexedPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.hnsw")
	identities := []Identity{
		{Label: "a", Embedding: []float32{1, 0, 0}},
		{Label: "b", Embedding: []float32{0, 1, 0}},
		{Label: "c", Embedding: []float32{0, 0, 1}},
	}

	g1, err := New(identities, Options{Policy: PolicyIndexed, IndexPath: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Fingerprint != g1.Fingerprint() || meta.IdentityCount != 3 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	g2, err := New(identities, Options{Policy: PolicyIndexed, IndexPath: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m := g2.Match([]float32{0, 0.9, 0.1}, 0.5); m.Label != "b" {
		t.Errorf("expected b from persisted index, got %+v", m)
	}
}

func TestIdentitiesReturnsCopy(t *testing.T) {
	g, _ := New([]Identity{{Label: "a", Embedding: []float32{1}}}, Options{})
	ids := g.Identities()
	ids[0].Label = "changed"
	if g.Identities()[0].Label != "a" {
		t.Error("Identities() must not expose internal state")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyFirst {
		t.Errorf("empty policy should default to first, got %q, %v", p, err)
	}
	if _, err := ParsePolicy("best"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if _, err := New(nil, Options{Metric: "manhattan"}); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestLabelFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"000004.jpg", "000004"},
		{"Jane Doe.JPEG", "Jane Doe"},
		{"dir/bob.png", "bob"},
		{"archive.tar.png", "archive.tar"},
	}
	for _, tt := range tests {
		if got := LabelFromFilename(tt.name); got != tt.want {
			t.Errorf("LabelFromFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
	if IsSupportedImage("x.gif") || !IsSupportedImage("x.JpG") {
		t.Error("unexpected extension filter result")
	}
}
