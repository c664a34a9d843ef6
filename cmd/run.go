package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/actuator"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/runner"
	"github.com/kozaktomas/face-attendance/internal/schedule"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recognize faces from the camera and record attendance",
	Long: `Start the capture loop. Each frame is fetched from CAMERA_URL, faces are
matched against the gallery in GALLERY_DIR, recognized students are marked
present for the course in session and the actuator is signalled.

The annotated live view and attendance API are served on WEB_HOST:WEB_PORT
unless --no-web is given. Stop with Ctrl+C.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("no-web", false, "Do not start the web server")
	runCmd.Flags().String("camera-url", "", "Camera capture URL (overrides CAMERA_URL)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := mustGetString(cmd, "camera-url"); v != "" {
		cfg.Camera.URL = v
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	guard, closeGuard, err := openGuard(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer closeGuard()

	g, err := loadGallery(ctx, cfg, b, nil, log)
	if err != nil {
		return err
	}
	resolver := schedule.NewResolver(b.store, cfg.Schedule.Grace, logger.Component(log, "schedule"))
	ledger := attendance.NewLedger(resolver, b.store, guard, logger.Component(log, "attendance"))

	act := actuator.Open(cfg.Actuator.Port, cfg.Actuator.Baud, cfg.Actuator.Command, logger.Component(log, "actuator"))

	detector := fingerprint.NewEmbeddingClient(cfg.Embedding.URL)
	if err := detector.Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", cfg.Embedding.URL).Msg("embedding server not healthy, frames will fail until it is")
	}

	pipeline := recognition.NewPipeline(detector, g, ledger, act,
		recognition.Options{
			Tolerance: cfg.Gallery.Tolerance,
			Logger:    logger.Component(log, "recognition"),
			Now:       func() time.Time { return time.Now().In(loc) },
		})

	frames := handlers.NewFrameStore(constants.RecognitionHistorySize, log)
	source := capture.NewHTTPSource(cfg.Camera.URL, cfg.Camera.Timeout)
	loop := runner.New(source, pipeline, logger.Component(log, "runner"),
		runner.WithPublisher(frames),
		runner.WithActuator(act),
		runner.WithInterval(cfg.Camera.Interval),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(gctx)
	})

	if !mustGetBool(cmd, "no-web") {
		server := web.NewServer(&cfg.Web, web.Deps{
			Frames:     frames,
			Attendance: b.store,
			Marker:     ledger,
			Location:   loc,
			Health: handlers.HealthInfo{
				GallerySize: g.Len(),
				MatchPolicy: string(g.Policy()),
				Driver:      cfg.Database.Driver,
			},
		}, logger.Component(log, "web"))

		group.Go(server.Start)
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	log.Info().Str("camera", cfg.Camera.URL).Msg("attendance system running, press Ctrl+C to stop")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}
