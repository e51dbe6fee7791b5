// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
	defaultTimeout   = 2 * time.Minute
)

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the listen endpoint. Mostly useful for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a two
// minute timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The samples are uploaded as a WAV body
// in a single request.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	reqURL, err := p.buildURL(opts)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	wav, err := audio.EncodeWAV(samples)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(wav))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return stt.Transcript{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	tr, err := parseDeepgramResponse(data)
	if err != nil {
		return stt.Transcript{}, err
	}
	if tr.Language == "" {
		tr.Language = p.languageFor(opts)
	}
	if tr.Duration == 0 {
		tr.Duration = audio.Duration(len(samples))
	}
	return tr, nil
}

func (p *Provider) languageFor(opts stt.Options) string {
	if opts.Language != "" {
		return opts.Language
	}
	return p.language
}

// buildURL constructs the Deepgram listen endpoint URL for the given options.
func (p *Provider) buildURL(opts stt.Options) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.languageFor(opts))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("utterances", "true")

	for _, kw := range opts.Keywords {
		if kw.Keyword == "" {
			continue
		}
		// Nova-3 replaced boosted keywords with plain key terms.
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		// Deepgram keyword format: word:boost (e.g., "Eldrinax:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON body returned by the pre-recorded API.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word           string  `json:"word"`
					PunctuatedWord string  `json:"punctuated_word"`
					Start          float64 `json:"start"`
					End            float64 `json:"end"`
					Confidence     float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

// parseDeepgramResponse converts a pre-recorded response into a Transcript.
// The first alternative of the first channel is used.
func parseDeepgramResponse(data []byte) (stt.Transcript, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	tr := stt.Transcript{Duration: seconds(resp.Metadata.Duration)}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return tr, nil
	}
	ch := resp.Results.Channels[0]
	alt := ch.Alternatives[0]

	tr.Text = strings.TrimSpace(alt.Transcript)
	tr.Language = ch.DetectedLanguage
	tr.Words = make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		tr.Words = append(tr.Words, stt.WordDetail{
			Word:       word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	for _, u := range resp.Results.Utterances {
		tr.Segments = append(tr.Segments, stt.Segment{
			Start: seconds(u.Start),
			End:   seconds(u.End),
			Text:  strings.TrimSpace(u.Transcript),
		})
	}
	return tr, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
