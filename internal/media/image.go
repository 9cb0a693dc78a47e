package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/locale"
)

// ErrMalformedAnalysis means the vision answer could not be used.
var ErrMalformedAnalysis = errors.New("media: malformed image analysis")

// ImageAnalysis is the vision model's verdict on an image.
type ImageAnalysis struct {
	IsEvent     bool
	Title       string
	Date        string // raw ISO 8601 as returned, may be empty
	Description string
	Reply       string
}

// Due parses Date in loc. It reports false for a missing or unusable date.
func (a ImageAnalysis) Due(loc *time.Location) (time.Time, bool) {
	return locale.ParseIntentDate(a.Date, loc)
}

const visionTemplate = `Analise a imagem e decida se ela mostra um evento, compromisso ou tarefa (convite, panfleto, ingresso, agenda, lembrete).

Data/Hora atual do usuário: {{ .Now }} ({{ .Weekday }}), fuso {{ .Zone }} (offset {{ .Offset }}).

Responda SOMENTE com JSON:
{
  "is_event": boolean,
  "title": string | null,
  "date": string (ISO 8601 com offset {{ .Offset }}, nunca "Z") | null,
  "description": string | null,
  "reply_message": string | null
}

Se não for um evento, use "is_event": false e descreva a imagem brevemente em "reply_message".`

var visionTmpl = template.Must(template.New("vision").Parse(visionTemplate))

// ImageInterpreter asks a Vision model whether an image depicts an event.
type ImageInterpreter struct {
	vision Vision
}

// NewImageInterpreter creates an ImageInterpreter.
func NewImageInterpreter(v Vision) (*ImageInterpreter, error) {
	if v == nil {
		return nil, fmt.Errorf("media: vision is required")
	}
	return &ImageInterpreter{vision: v}, nil
}

// Analyze sends image to the vision model with the user's temporal context.
func (i *ImageInterpreter) Analyze(ctx context.Context, image []byte, mimeType string, tc locale.Temporal) (ImageAnalysis, error) {
	if len(image) == 0 {
		return ImageAnalysis{}, fmt.Errorf("media: analyze: no image data")
	}

	var buf bytes.Buffer
	err := visionTmpl.Execute(&buf, map[string]string{
		"Now":     tc.Now.Format("02/01/2006 15:04"),
		"Weekday": tc.Weekday,
		"Zone":    tc.Zone,
		"Offset":  tc.Offset,
	})
	if err != nil {
		return ImageAnalysis{}, fmt.Errorf("media: analyze: prompt: %w", err)
	}

	raw, err := i.vision.AnalyzeImage(ctx, image, mimeType, buf.String())
	if err != nil {
		return ImageAnalysis{}, fmt.Errorf("media: analyze: %w", err)
	}
	return ParseImageAnalysis(raw)
}

// ParseImageAnalysis validates a vision answer. An event without a title
// is malformed.
func ParseImageAnalysis(raw string) (ImageAnalysis, error) {
	var w struct {
		IsEvent      bool    `json:"is_event"`
		Title        *string `json:"title"`
		Date         *string `json:"date"`
		Description  *string `json:"description"`
		ReplyMessage *string `json:"reply_message"`
	}
	if err := json.Unmarshal([]byte(intent.StripFence(raw)), &w); err != nil {
		return ImageAnalysis{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	a := ImageAnalysis{
		IsEvent:     w.IsEvent,
		Title:       strings.TrimSpace(str(w.Title)),
		Date:        strings.TrimSpace(str(w.Date)),
		Description: strings.TrimSpace(str(w.Description)),
		Reply:       strings.TrimSpace(str(w.ReplyMessage)),
	}
	if a.IsEvent && a.Title == "" {
		return ImageAnalysis{}, fmt.Errorf("%w: event without title", ErrMalformedAnalysis)
	}
	return a, nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
