package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
)

// Detector detects faces in an encoded image and returns one embedding per face.
type Detector interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// SkippedFile records a reference image that produced no identity.
type SkippedFile struct {
	Name   string
	Reason string
}

// LoadStats summarizes a directory load.
type LoadStats struct {
	Candidates int // files with a supported extension
	Loaded     int
	Cached     int // identities served from the identity cache
	Skipped    []SkippedFile
}

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsSupportedImage reports whether a file name has a gallery image extension.
func IsSupportedImage(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// LabelFromFilename returns the identity label for a reference image file name.
func LabelFromFilename(name string) string {
	base := filepath.Base(name)
	return facematch.NormalizeLabel(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Load builds a gallery from the reference images in dir, in file name order.
// Files that cannot be decoded or contain no face are skipped with a warning.
// A missing or unreadable directory is an error.
func Load(ctx context.Context, dir string, detector Detector, opts Options) (*Gallery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsSupportedImage(e.Name()) {
			files = append(files, e.Name())
		}
	}

	log := opts.Logger
	stats := LoadStats{Candidates: len(files)}
	var identities []Identity

	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, cached, reason := loadIdentity(ctx, filepath.Join(dir, name), detector, opts)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if reason != "" {
			log.Warn().Str("file", name).Str("reason", reason).Msg("skipping gallery image")
			stats.Skipped = append(stats.Skipped, SkippedFile{Name: name, Reason: reason})
		} else {
			if cached {
				stats.Cached++
			}
			identities = append(identities, id)
			log.Debug().Str("file", name).Str("label", id.Label).Bool("cached", cached).Msg("identity loaded")
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(files))
		}
	}

	if len(identities) == 0 {
		log.Warn().Str("dir", dir).Msg("gallery is empty, every face will be unknown")
	}

	g, err := New(identities, opts)
	if err != nil {
		return nil, err
	}
	stats.Loaded = len(identities)
	g.stats = stats

	log.Info().
		Int("loaded", stats.Loaded).
		Int("cached", stats.Cached).
		Int("skipped", len(stats.Skipped)).
		Str("policy", string(g.policy)).
		Msg("gallery loaded")

	return g, nil
}

// loadIdentity returns the identity for one file, or a non-empty skip reason.
func loadIdentity(ctx context.Context, path string, detector Detector, opts Options) (Identity, bool, string) {
	name := filepath.Base(path)
	id := Identity{Label: LabelFromFilename(name), Source: name}

	data, err := os.ReadFile(path) //nolint:gosec // path is inside the configured gallery directory
	if err != nil {
		return id, false, fmt.Sprintf("read failed: %v", err)
	}
	id.ContentHash = fingerprint.ContentHash(data)

	if opts.Cache != nil {
		stored, err := opts.Cache.GetIdentity(ctx, id.ContentHash)
		if err != nil {
			opts.Logger.Warn().Err(err).Str("file", name).Msg("identity cache lookup failed")
		} else if stored != nil && len(stored.Embedding) > 0 {
			id.Embedding = stored.Embedding
			return id, true, ""
		}
	}

	// Decodes the image as a sanity check and keeps uploads small.
	upload, err := fingerprint.ResizeImage(data, constants.MaxReferenceImageSize)
	if err != nil {
		return id, false, fmt.Sprintf("decode failed: %v", err)
	}

	resp, err := detector.ComputeFaceEmbeddings(ctx, upload)
	if err != nil {
		return id, false, fmt.Sprintf("face detection failed: %v", err)
	}
	if len(resp.Faces) == 0 {
		return id, false, "no face detected"
	}

	face := resp.Faces[0]
	for _, f := range resp.Faces[1:] {
		if f.FaceIndex < face.FaceIndex {
			face = f
		}
	}
	if len(face.Embedding) == 0 {
		return id, false, "empty embedding"
	}
	id.Embedding = face.Embedding

	if opts.Cache != nil {
		err := opts.Cache.SaveIdentity(ctx, database.StoredIdentity{
			ContentHash: id.ContentHash,
			Label:       id.Label,
			Embedding:   id.Embedding,
			Model:       resp.Model,
		})
		if err != nil {
			opts.Logger.Warn().Err(err).Str("file", name).Msg("identity cache save failed")
		}
	}

	return id, false, ""
}
