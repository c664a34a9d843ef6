package gallery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/rs/zerolog"
)

// buildIndex prepares the HNSW index. A persisted index is reused when its
// metadata matches the current identities; otherwise it is rebuilt and saved.
func (g *Gallery) buildIndex(path string, log zerolog.Logger) error {
	if g.dim == 0 {
		if len(g.identities) > 0 {
			log.Warn().Msg("gallery embeddings differ in length, indexed policy falls back to linear scan")
		}
		return nil
	}

	vectors := make([]database.IndexedVector, len(g.identities))
	for i, id := range g.identities {
		vectors[i] = database.IndexedVector{Key: i, Embedding: id.Embedding}
	}

	g.index = database.NewHNSWIndex(g.metric)
	fp := g.Fingerprint()

	if path != "" {
		if meta, err := database.LoadHNSWMetadata(path); err == nil &&
			meta.Fingerprint == fp && meta.Metric == g.metric && meta.IdentityCount == len(g.identities) {
			loaded, err := g.index.Load(path, vectors)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to load HNSW index, rebuilding")
			} else if loaded {
				log.Debug().Str("path", path).Int("identities", len(vectors)).Msg("HNSW index loaded")
				return nil
			}
		}
	}

	g.index.Build(g.metric, vectors)

	if path != "" {
		err := g.index.SaveWithMetadata(path, database.HNSWIndexMetadata{
			IdentityCount: len(g.identities),
			Fingerprint:   fp,
			Metric:        g.metric,
			BuildTime:     time.Now(),
		})
		if err != nil {
			return fmt.Errorf("save HNSW index: %w", err)
		}
		log.Debug().Str("path", path).Int("identities", len(vectors)).Msg("HNSW index saved")
	}
	return nil
}

// Fingerprint digests labels, sources and embeddings in load order.
func (g *Gallery) Fingerprint() string {
	h := sha256.New()
	for _, id := range g.identities {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00", id.Label, id.Source, id.ContentHash, len(id.Embedding))
		for _, v := range id.Embedding {
			fmt.Fprintf(h, "%g,", v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
