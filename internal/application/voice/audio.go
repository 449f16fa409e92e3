package voice

import (
	"context"
	"strings"
	"time"
)

// BlobStore keeps uploaded audio. Keys are content addressed so Put is
// idempotent for identical bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DurationProbe measures audio length out of process.
type DurationProbe interface {
	Probe(ctx context.Context, data []byte, mimeType string) (time.Duration, error)
}

type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber is the speech-to-text provider.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*Transcript, error)
}

// Enqueuer hands a transcription id to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID string) error
}

var allowedAudio = map[string]string{
	"audio/webm":  "webm",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "m4a",
	"audio/m4a":   "m4a",
	"audio/ogg":   "ogg",
}

// NormalizeMIME lowercases a content type and drops parameters such as
// ";codecs=opus".
func NormalizeMIME(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// AudioExtension returns the blob extension for an allowed MIME type.
func AudioExtension(contentType string) (string, bool) {
	ext, ok := allowedAudio[NormalizeMIME(contentType)]
	return ext, ok
}
