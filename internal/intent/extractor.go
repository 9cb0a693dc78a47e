package intent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExtractorOpts configures an Extractor.
type ExtractorOpts struct {
	Completer Completer
	Logger    *zap.Logger
}

// Extractor runs one extraction call per inbound message.
type Extractor struct {
	completer Completer
	logger    *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ExtractorOpts) (*Extractor, error) {
	if opts.Completer == nil {
		return nil, fmt.Errorf("intent: completer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{completer: opts.Completer, logger: logger}, nil
}

// Extract builds the system prompt, sends it with history (newest user turn
// last) and validates the answer. Any error means nothing may be applied.
func (e *Extractor) Extract(ctx context.Context, in PromptInput, history []Turn) (Result, error) {
	system, err := BuildSystemPrompt(in)
	if err != nil {
		return Result{}, err
	}

	raw, err := e.completer.Complete(ctx, system, history)
	if err != nil {
		return Result{}, fmt.Errorf("intent: complete: %w", err)
	}

	res, err := ParseResult(raw, in.Temporal.Location)
	if err != nil {
		e.logger.Warn("unusable model output", zap.Error(err), zap.Int("bytes", len(raw)))
		return Result{}, err
	}

	e.logger.Debug("intent extracted",
		zap.Int("tasks", len(res.Tasks)),
		zap.Bool("reply", res.Reply != ""))
	return res, nil
}
