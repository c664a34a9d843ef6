package constants

// Handler constants
const (
	// RecognitionHistorySize is the number of recent recognitions kept for the web API
	RecognitionHistorySize = 50

	// FrameJPEGQuality is the JPEG quality of the published annotated frame
	FrameJPEGQuality = 85
)
