package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the reference face gallery",
}

var galleryBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load the gallery and report which reference images were used",
	Long: `Load every reference image in GALLERY_DIR, compute its face embedding and
report loaded and skipped files. The label of each identity is the file name
without extension and should be the student ID.

With GALLERY_CACHE=true and the postgres driver, embeddings are cached by image
content hash; --prune removes cache entries for images no longer present.
With GALLERY_MATCH_POLICY=indexed and HNSW_INDEX_PATH set, the index is saved.

Examples:
  face-attendance gallery build
  face-attendance gallery build --json`,
	RunE: runGalleryBuild,
}

var galleryMatchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match the faces in an image file against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryMatch,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryBuildCmd)
	galleryCmd.AddCommand(galleryMatchCmd)

	galleryBuildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	galleryBuildCmd.Flags().Bool("prune", false, "Remove cached embeddings of images no longer in the gallery")
	galleryMatchCmd.Flags().Bool("json", false, "Output as JSON")
}

// GalleryBuildResult represents the result of a gallery build
type GalleryBuildResult struct {
	Directory     string           `json:"directory"`
	Candidates    int              `json:"candidates"`
	Loaded        int              `json:"loaded"`
	Cached        int              `json:"cached"`
	Skipped       []GallerySkipped `json:"skipped"`
	Pruned        int64            `json:"pruned"`
	Policy        string           `json:"policy"`
	DurationMs    int64            `json:"duration_ms"`
	DurationHuman string           `json:"duration_human,omitempty"`
}

type GallerySkipped struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

func runGalleryBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")
	prune := mustGetBool(cmd, "prune")
	ctx := context.Background()

	var b *backend
	if cfg.Gallery.Cache || prune {
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("--prune requires DATABASE_DRIVER=postgres")
		}
		if b, err = openBackend(ctx, cfg, log); err != nil {
			return err
		}
		defer b.Close()
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Loading gallery"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	start := time.Now()
	g, err := loadGallery(ctx, cfg, b, progress, log)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	stats := g.Stats()
	result := GalleryBuildResult{
		Directory:  cfg.Gallery.Dir,
		Candidates: stats.Candidates,
		Loaded:     stats.Loaded,
		Cached:     stats.Cached,
		Skipped:    []GallerySkipped{},
		Policy:     string(g.Policy()),
	}
	for _, s := range stats.Skipped {
		result.Skipped = append(result.Skipped, GallerySkipped{File: s.Name, Reason: s.Reason})
	}

	if prune {
		keep := make([]string, 0, g.Len())
		for _, id := range g.Identities() {
			keep = append(keep, id.ContentHash)
		}
		if result.Pruned, err = b.cache.PruneIdentities(ctx, keep); err != nil {
			return err
		}
	}

	duration := time.Since(start)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}

	result.DurationHuman = formatDuration(duration)
	fmt.Println("Gallery loaded")
	fmt.Printf("  Directory:  %s\n", result.Directory)
	fmt.Printf("  Policy:     %s\n", result.Policy)
	fmt.Printf("  Images:     %d\n", result.Candidates)
	fmt.Printf("  Identities: %d (%d from cache)\n", result.Loaded, result.Cached)
	if prune {
		fmt.Printf("  Pruned:     %d\n", result.Pruned)
	}
	fmt.Printf("  Duration:   %s\n", result.DurationHuman)
	if len(result.Skipped) > 0 {
		fmt.Printf("\nSkipped %d file(s):\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Printf("  %-30s %s\n", s.File, s.Reason)
		}
	}
	return nil
}

// FaceMatchResult is one face found by gallery match
type FaceMatchResult struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"`
	Label     string    `json:"label"`
	Known     bool      `json:"known"`
	Distance  float64   `json:"distance"`
}

func runGalleryMatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	g, err := loadGallery(ctx, cfg, nil, nil, log)
	if err != nil {
		return err
	}

	resp, err := fingerprint.NewEmbeddingClient(cfg.Embedding.URL).ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}

	results := make([]FaceMatchResult, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		m := g.Match(f.Embedding, cfg.Gallery.Tolerance)
		results = append(results, FaceMatchResult{
			FaceIndex: f.FaceIndex,
			BBox:      f.BBox,
			Label:     m.Label,
			Known:     m.Known,
			Distance:  m.Distance,
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No faces found")
		return nil
	}
	for _, r := range results {
		fmt.Printf("Face %d: %-20s distance %.3f\n", r.FaceIndex, r.Label, r.Distance)
	}
	return nil
}
