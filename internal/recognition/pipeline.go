// Package recognition turns a camera frame into face labels, attendance marks
// and an annotated image.
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/rs/zerolog"
)

// Detector finds faces in an encoded frame.
type Detector interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// Matcher labels a face embedding.
type Matcher interface {
	Match(query []float32, tolerance float64) gallery.Match
}

// Marker records attendance for a recognized student.
type Marker interface {
	Mark(ctx context.Context, studentID string, ts time.Time) (attendance.Result, error)
}

// Signaler acknowledges a successful mark on external hardware.
type Signaler interface {
	Signal(ctx context.Context) error
}

// FaceResult is one face found in a frame.
type FaceResult struct {
	Box      image.Rectangle // clamped to the frame
	RelBox   []float64       // x1, y1, x2, y2 relative to frame size
	Label    string
	Known    bool
	Distance float64
	// Set only for known faces.
	Outcome  attendance.Outcome
	CourseID string
	Err      error
}

// Result is the outcome of processing one frame.
type Result struct {
	Annotated   *image.RGBA
	Faces       []FaceResult
	ProcessedAt time.Time
	DetectErr   error
}

// Options configures a Pipeline.
type Options struct {
	Tolerance float64
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Pipeline runs detection, matching, marking and annotation for each frame.
type Pipeline struct {
	detector  Detector
	matcher   Matcher
	marker    Marker
	signaler  Signaler
	tolerance float64
	now       func() time.Time
	log       zerolog.Logger
}

// NewPipeline creates a pipeline. signaler may be nil.
func NewPipeline(detector Detector, matcher Matcher, marker Marker, signaler Signaler, opts Options) *Pipeline {
	if opts.Tolerance <= 0 {
		opts.Tolerance = constants.DefaultMatchTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		detector:  detector,
		matcher:   matcher,
		marker:    marker,
		signaler:  signaler,
		tolerance: opts.Tolerance,
		now:       opts.Now,
		log:       opts.Logger,
	}
}

// Process handles a single frame. It never fails: a detector error yields an
// un-annotated copy of the frame, and per-face ledger or actuator errors are
// logged and reported on the face.
func (p *Pipeline) Process(ctx context.Context, frame *capture.Frame) Result {
	ts := p.now()
	res := Result{ProcessedAt: ts}
	if frame == nil || frame.Image == nil {
		res.DetectErr = fmt.Errorf("empty frame")
		return res
	}
	res.Annotated = toRGBA(frame.Image)

	data := frame.Data
	if len(data) == 0 {
		var err error
		if data, err = encodeJPEG(frame.Image); err != nil {
			res.DetectErr = err
			p.log.Warn().Err(err).Msg("failed to encode frame")
			return res
		}
	}

	faces, err := p.detector.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		res.DetectErr = err
		p.log.Warn().Err(err).Msg("face detection failed")
		return res
	}

	bounds := res.Annotated.Bounds()
	for _, f := range faces.Faces {
		fr := p.handleFace(ctx, f, ts)
		fr.Box = facematch.ClampBBox(f.BBox, bounds)
		fr.RelBox = facematch.ConvertPixelBBoxToRelative(f.BBox, bounds.Dx(), bounds.Dy())
		res.Faces = append(res.Faces, fr)
		drawFace(res.Annotated, fr)
	}
	return res
}

func (p *Pipeline) handleFace(ctx context.Context, f fingerprint.FaceDetection, ts time.Time) FaceResult {
	m := p.matcher.Match(f.Embedding, p.tolerance)
	fr := FaceResult{Label: m.Label, Known: m.Known, Distance: m.Distance}
	if !m.Known {
		return fr
	}

	mark, err := p.marker.Mark(ctx, m.Label, ts)
	if err != nil {
		fr.Err = err
		p.log.Error().Err(err).Str("student_id", m.Label).Msg("failed to mark attendance")
		return fr
	}
	fr.Outcome = mark.Outcome
	fr.CourseID = mark.CourseID

	switch mark.Outcome {
	case attendance.Marked:
		if p.signaler != nil {
			if err := p.signaler.Signal(ctx); err != nil {
				p.log.Warn().Err(err).Msg("actuator signal failed")
			}
		}
	case attendance.AlreadyMarked:
		p.log.Debug().Str("student_id", m.Label).Str("course_id", mark.CourseID).Msg("already marked")
	case attendance.NoActiveCourse:
		p.log.Debug().Str("student_id", m.Label).Msg("no active course")
	}
	return fr
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.FrameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes an annotated frame for publishing.
func EncodeJPEG(img image.Image) ([]byte, error) {
	return encodeJPEG(img)
}
