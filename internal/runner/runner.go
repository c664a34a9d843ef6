// Package runner drives the capture loop.
package runner

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/rs/zerolog"
)

// Processor handles one frame.
type Processor interface {
	Process(ctx context.Context, frame *capture.Frame) recognition.Result
}

// Publisher receives each processed frame, for example the web frame store.
type Publisher interface {
	Publish(res recognition.Result)
}

// Stats counts loop iterations.
type Stats struct {
	Frames       int
	FetchErrors  int
	DetectErrors int
	Faces        int
}

// Runner captures, processes and publishes frames one at a time until stopped.
type Runner struct {
	source    capture.Source
	processor Processor
	actuator  io.Closer
	publisher Publisher
	interval  time.Duration
	log       zerolog.Logger
	stats     Stats
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher sets the frame publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithInterval sets the pause between frames.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithActuator makes the runner close the actuator on exit.
func WithActuator(a io.Closer) Option {
	return func(r *Runner) { r.actuator = a }
}

// New creates a runner. The runner owns source and closes it when Run returns.
func New(source capture.Source, processor Processor, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		source:    source,
		processor: processor,
		interval:  constants.DefaultFrameInterval,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until ctx is cancelled. Fetch failures are logged and the loop
// continues. Cancellation is checked between frames.
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	r.log.Info().Dur("interval", r.interval).Msg("capture loop started")
	for {
		if ctx.Err() != nil {
			break
		}
		r.step(ctx)

		if r.interval > 0 {
			t := time.NewTimer(r.interval)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	r.log.Info().
		Int("frames", r.stats.Frames).
		Int("fetch_errors", r.stats.FetchErrors).
		Int("faces", r.stats.Faces).
		Msg("capture loop stopped")
	return nil
}

func (r *Runner) step(ctx context.Context) {
	frame, err := r.source.Capture(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		r.stats.FetchErrors++
		r.log.Warn().Err(err).Msg("failed to fetch frame")
		return
	}

	res := r.processor.Process(ctx, frame)
	r.stats.Frames++
	r.stats.Faces += len(res.Faces)
	if res.DetectErr != nil {
		r.stats.DetectErrors++
	}
	if r.publisher != nil {
		r.publisher.Publish(res)
	}
}

func (r *Runner) close() {
	if err := r.source.Close(); err != nil {
		r.log.Warn().Err(err).Msg("failed to close frame source")
	}
	if r.actuator != nil {
		if err := r.actuator.Close(); err != nil {
			r.log.Warn().Err(err).Msg("failed to close actuator")
		}
	}
}

// Stats returns loop counters. Only meaningful after Run returns.
func (r *Runner) Stats() Stats {
	return r.stats
}
