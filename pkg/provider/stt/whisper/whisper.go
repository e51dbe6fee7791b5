// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper.cpp server (the whisper-server binary
// or a llamafile-style whisperfile) through its REST API at POST /inference.
// Each Transcribe call uploads one segment as a 16-bit PCM WAV file and parses
// the verbose JSON response into text and timed segments.
//
// [Server] launches and supervises such a server as a child process, and
// [NativeProvider] runs whisper.cpp in-process through the CGO bindings.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithTemperature(0),
//	)
//	tr, err := p.Transcribe(ctx, samples, stt.Options{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

const (
	defaultLanguage       = "en"
	defaultResponseFormat = "verbose_json"
	defaultTimeout        = 5 * time.Minute

	// maxErrorBody caps how much of an error response is quoted in errors.
	maxErrorBody = 512
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "auto"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTranslate asks the server to translate speech into English.
func WithTranslate(translate bool) Option {
	return func(p *Provider) {
		p.translate = translate
	}
}

// WithTemperature sets the sampling temperature. A negative value (the
// default) leaves the server default in place.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithResponseFormat sets the response_format field. Only "json" and
// "verbose_json" yield parseable results. Defaults to "verbose_json".
func WithResponseFormat(format string) Option {
	return func(p *Provider) {
		p.responseFormat = format
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a five
// minute timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL      string
	model          string
	language       string
	translate      bool
	temperature    float64
	responseFormat string
	httpClient     *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:      strings.TrimRight(serverURL, "/"),
		language:       defaultLanguage,
		temperature:    -1,
		responseFormat: defaultResponseFormat,
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the JSON body returned by /inference.
type inferenceResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements stt.Provider. It encodes samples as a WAV file and
// POSTs it to the /inference endpoint as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	wav, err := audio.EncodeWAV(samples)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": p.responseFormat,
	}
	if lang != "" {
		fields["language"] = lang
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	if p.translate {
		fields["translate"] = "true"
	}
	if p.temperature >= 0 {
		fields["temperature"] = strconv.FormatFloat(p.temperature, 'f', -1, 64)
	}
	if prompt := stt.JoinPrompt(opts.Prompt, opts.Keywords); prompt != "" {
		fields["prompt"] = prompt
	}
	for _, k := range sortedKeys(fields) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, truncate(data, maxErrorBody))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	tr := stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
		Duration: audio.Duration(len(samples)),
	}
	for _, s := range result.Segments {
		tr.Segments = append(tr.Segments, stt.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return tr, nil
}
