// Package media turns voice notes and images into text the task pipeline
// can consume.
package media

import (
	"context"
	"os/exec"
	"strings"
)

// Media kinds recognized by the dialogue pipeline.
const (
	KindAudio = "audio"
	KindImage = "image"
	KindOther = "other"
)

// Kind classifies a MIME type.
func Kind(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(m, "audio/"), strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return KindAudio
	case strings.HasPrefix(m, "image/"):
		return KindImage
	default:
		return KindOther
	}
}

// Transcriber converts speech audio to text.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Vision answers an instruction about an image. The answer is raw model
// text, expected to be JSON.
type Vision interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// Runner executes an external program.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec, bound to ctx.
type ExecRunner struct{}

// Run executes name with args and returns combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
