// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (or any server exposing a compatible
// /audio/transcriptions endpoint).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client      oai.Client
	model       string
	language    string
	temperature float64
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	language     string
	temperature  float64
	httpClient   *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for API calls. WithTimeout is
// applied on top of it.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithLanguage sets the default ISO-639-1 language hint. Per-call
// stt.Options.Language takes precedence.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTemperature sets the sampling temperature. Negative values leave the
// API default.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{temperature: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.httpClient != nil || cfg.timeout > 0 {
		hc := &http.Client{}
		if cfg.httpClient != nil {
			clone := *cfg.httpClient
			hc = &clone
		}
		if cfg.timeout > 0 {
			hc.Timeout = cfg.timeout
		}
		reqOpts = append(reqOpts, option.WithHTTPClient(hc))
	}

	return &Provider{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		language:    cfg.language,
		temperature: cfg.temperature,
	}, nil
}

// verboseTranscription is the verbose_json body; the SDK type only exposes
// the text.
type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	wav, err := audio.EncodeWAV(samples)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		Model:                  oai.AudioModel(p.model),
		File:                   oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt := stt.JoinPrompt(opts.Prompt, opts.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}
	if p.temperature >= 0 {
		params.Temperature = oai.Float(p.temperature)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	tr := stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: lang,
		Duration: audio.Duration(len(samples)),
	}
	raw := resp.RawJSON()
	if raw == "" {
		return tr, nil
	}
	var verbose verboseTranscription
	if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: parse verbose response: %w", err)
	}
	if verbose.Language != "" {
		tr.Language = verbose.Language
	}
	for _, s := range verbose.Segments {
		tr.Segments = append(tr.Segments, stt.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	for _, w := range verbose.Words {
		tr.Words = append(tr.Words, stt.WordDetail{
			Word:  w.Word,
			Start: seconds(w.Start),
			End:   seconds(w.End),
		})
	}
	return tr, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
