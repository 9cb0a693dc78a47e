// Package ai holds what the model provider clients share.
package ai

import "errors"

// ErrNoCredential is returned at call time when a provider has no API key.
// The bot still starts so users get an apologetic reply instead of silence.
var ErrNoCredential = errors.New("ai: no API credential configured")

// Transcription instruction used by providers that transcribe through a
// general multimodal model.
const TranscribePrompt = "Transcreva fielmente o áudio a seguir. Responda somente com o texto falado, sem comentários."
