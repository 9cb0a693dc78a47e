package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyTranscript is returned when the transcriber heard nothing.
var ErrEmptyTranscript = errors.New("media: empty transcript")

// AudioOpts configures an AudioInterpreter.
type AudioOpts struct {
	FFmpegPath  string
	TempDir     string // "" uses os.TempDir
	Runner      Runner
	Transcriber Transcriber
	Logger      *zap.Logger
}

// AudioInterpreter transcodes a voice note to mp3 with ffmpeg and sends it
// to a Transcriber.
type AudioInterpreter struct {
	ffmpeg      string
	tempDir     string
	runner      Runner
	transcriber Transcriber
	logger      *zap.Logger
}

// NewAudioInterpreter creates an AudioInterpreter.
func NewAudioInterpreter(opts AudioOpts) (*AudioInterpreter, error) {
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("media: transcriber is required")
	}
	a := &AudioInterpreter{
		ffmpeg:      opts.FFmpegPath,
		tempDir:     opts.TempDir,
		runner:      opts.Runner,
		transcriber: opts.Transcriber,
		logger:      opts.Logger,
	}
	if a.ffmpeg == "" {
		a.ffmpeg = "ffmpeg"
	}
	if a.runner == nil {
		a.runner = ExecRunner{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Transcribe returns the text spoken in audio. Temporary files are removed
// whether or not the call succeeds.
func (a *AudioInterpreter) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("media: transcribe: no audio data")
	}

	in, err := os.CreateTemp(a.tempDir, "taskline-voice-*"+inputExt(mimeType))
	if err != nil {
		return "", fmt.Errorf("media: transcribe: temp file: %w", err)
	}
	inPath := in.Name()
	outPath := inPath + ".mp3"
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if _, err := in.Write(audio); err != nil {
		in.Close()
		return "", fmt.Errorf("media: transcribe: write input: %w", err)
	}
	if err := in.Close(); err != nil {
		return "", fmt.Errorf("media: transcribe: close input: %w", err)
	}

	if out, err := a.runner.Run(ctx, a.ffmpeg, "-y", "-loglevel", "error", "-i", inPath, outPath); err != nil {
		a.logger.Warn("ffmpeg failed", zap.Error(err), zap.String("output", strings.TrimSpace(string(out))))
		return "", fmt.Errorf("media: transcode: %w", err)
	}

	mp3, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("media: transcribe: read output: %w", err)
	}

	text, err := a.transcriber.TranscribeAudio(ctx, mp3, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("media: transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func inputExt(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return ".ogg"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	case strings.Contains(m, "mp4"), strings.Contains(m, "aac"), strings.Contains(m, "m4a"):
		return ".m4a"
	case strings.Contains(m, "amr"):
		return ".amr"
	default:
		return ".bin"
	}
}
