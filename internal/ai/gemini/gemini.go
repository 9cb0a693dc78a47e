// Package gemini implements the Taskline model ports on Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/taskline/internal/ai"
	"github.com/zulandar/taskline/internal/intent"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel       = "gemini-2.5-flash"
	defaultVisionModel = "gemini-2.5-flash"
)

// Opts configures a Client.
type Opts struct {
	APIKey             string
	BaseURL            string // overrides the API endpoint, used by tests
	Model              string
	VisionModel        string
	TranscriptionModel string
	Timeout            time.Duration
	Logger             *zap.Logger
}

// Client talks to Gemini. It satisfies intent.Completer, media.Transcriber
// and media.Vision.
type Client struct {
	client             *genai.Client
	model              string
	visionModel        string
	transcriptionModel string
	timeout            time.Duration
	logger             *zap.Logger
}

// New creates a Client. With an empty API key the client is still returned
// and every call fails with ai.ErrNoCredential.
func New(ctx context.Context, opts Opts) (*Client, error) {
	c := &Client{
		model:              opts.Model,
		visionModel:        opts.VisionModel,
		transcriptionModel: opts.TranscriptionModel,
		timeout:            opts.Timeout,
		logger:             opts.Logger,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.visionModel == "" {
		c.visionModel = defaultVisionModel
	}
	if c.transcriptionModel == "" {
		c.transcriptionModel = c.model
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.APIKey == "" {
		c.logger.Warn("gemini: no API key configured, model calls will fail")
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c.client = client
	return c, nil
}

// Complete runs a JSON-mode chat completion over history.
func (c *Client) Complete(ctx context.Context, system string, history []intent.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		var role genai.Role = genai.RoleUser
		if t.Role == intent.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}
	return c.generate(ctx, "complete", c.model, contents, cfg)
}

// TranscribeAudio sends the audio inline and asks for a verbatim transcript.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(ai.TranscribePrompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	return c.generate(ctx, "transcribe", c.transcriptionModel, contents, nil)
}

// AnalyzeImage sends the image inline with the given instruction and
// returns the model's JSON answer.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	return c.generate(ctx, "vision", c.visionModel, contents, cfg)
}

func (c *Client) generate(ctx context.Context, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if c.client == nil {
		return "", ai.ErrNoCredential
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %s: %w", op, err)
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: %s: empty response", op)
	}
	c.logger.Debug("gemini call done",
		zap.String("op", op),
		zap.String("model", model),
		zap.Duration("took", time.Since(start)))
	return text, nil
}
