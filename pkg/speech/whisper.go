package speech

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const whisperDefaultModel = openai.AudioModelWhisper1

// Whisper transcribes artifacts through the OpenAI audio transcription
// endpoint.
type Whisper struct {
	client *openai.Client
	model  openai.AudioModel
}

var _ Transcriber = (*Whisper)(nil)

type whisperConfig struct {
	model      openai.AudioModel
	baseURL    string
	httpClient *http.Client
}

// WhisperOption configures a Whisper transcriber.
type WhisperOption func(*whisperConfig)

// WithModel overrides the transcription model.
func WithModel(model string) WhisperOption {
	return func(c *whisperConfig) { c.model = openai.AudioModel(model) }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) WhisperOption {
	return func(c *whisperConfig) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) WhisperOption {
	return func(c *whisperConfig) { c.httpClient = hc }
}

// NewWhisper creates a Whisper transcriber.
func NewWhisper(apiKey string, opts ...WhisperOption) *Whisper {
	cfg := whisperConfig{
		model:      whisperDefaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &Whisper{client: &client, model: cfg.model}
}

// Transcribe uploads the audio file at path and returns the transcript.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("speech: open artifact: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("speech: stat artifact: %w", err)
	}
	if st.Size() == 0 {
		return "", ErrEmptyAudio
	}

	tr, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: w.model,
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe %s: %w", path, err)
	}
	return tr.Text, nil
}
