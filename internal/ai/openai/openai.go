// Package openai implements the Taskline model ports on the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/zulandar/taskline/internal/ai"
	"github.com/zulandar/taskline/internal/intent"
	"go.uber.org/zap"
)

const (
	defaultModel              = "gpt-4o-mini"
	defaultTranscriptionModel = "whisper-1"
	// maxRetries covers 429s and 5xx; the SDK backs off between attempts.
	maxRetries = 3
)

// Opts configures a Client.
type Opts struct {
	APIKey             string
	BaseURL            string // empty uses the SDK default
	Model              string
	VisionModel        string
	TranscriptionModel string
	Language           string
	Timeout            time.Duration // per attempt
	Logger             *zap.Logger
}

// Client talks to the OpenAI API. It satisfies intent.Completer,
// media.Transcriber and media.Vision.
type Client struct {
	api                sdk.Client
	hasKey             bool
	model              string
	visionModel        string
	transcriptionModel string
	language           string
	logger             *zap.Logger
}

// New creates a Client. An empty API key yields a client whose calls fail
// with ai.ErrNoCredential.
func New(opts Opts) *Client {
	c := &Client{
		hasKey:             opts.APIKey != "",
		model:              opts.Model,
		visionModel:        opts.VisionModel,
		transcriptionModel: opts.TranscriptionModel,
		language:           opts.Language,
		logger:             opts.Logger,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.visionModel == "" {
		c.visionModel = c.model
	}
	if c.transcriptionModel == "" {
		c.transcriptionModel = defaultTranscriptionModel
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(maxRetries),
		option.WithMiddleware(c.logAttempt),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	c.api = sdk.NewClient(reqOpts...)
	return c
}

// logAttempt records every HTTP attempt, retries included.
func (c *Client) logAttempt(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	start := time.Now()
	resp, err := next(req)
	fields := []zap.Field{zap.String("path", req.URL.Path), zap.Duration("elapsed", time.Since(start))}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Debug("openai request", fields...)
	return resp, err
}

// Complete runs a JSON-object chat completion over history.
func (c *Client) Complete(ctx context.Context, system string, history []intent.Turn) (string, error) {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, sdk.SystemMessage(system))
	for _, t := range history {
		if t.Role == intent.RoleAssistant {
			msgs = append(msgs, sdk.AssistantMessage(t.Content))
			continue
		}
		msgs = append(msgs, sdk.UserMessage(t.Content))
	}
	return c.chat(ctx, "complete", sdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    msgs,
		Temperature: sdk.Float(0.2),
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
}

// AnalyzeImage sends the image as a data URI together with instruction.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	parts := []sdk.ChatCompletionContentPartUnionParam{
		sdk.TextContentPart(instruction),
		sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: uri}),
	}
	return c.chat(ctx, "vision", sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.visionModel),
		Messages: []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(parts)},
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
}

func (c *Client) chat(ctx context.Context, op string, params sdk.ChatCompletionNewParams) (string, error) {
	if !c.hasKey {
		return "", ai.ErrNoCredential
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapErr(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %s: no choices returned", op)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// TranscribeAudio uploads audio to the transcription endpoint.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if !c.hasKey {
		return "", ai.ErrNoCredential
	}
	params := sdk.AudioTranscriptionNewParams{
		File:  sdk.File(bytes.NewReader(audio), "audio"+extension(mimeType), mimeType),
		Model: sdk.AudioModel(c.transcriptionModel),
	}
	if c.language != "" {
		params.Language = sdk.String(c.language)
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", wrapErr("transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// wrapErr keeps the HTTP status of API failures visible in the message.
func wrapErr(op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: %s: status %d: %w", op, apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %s: %w", op, err)
}

func extension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
