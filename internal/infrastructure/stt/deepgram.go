package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"talentgate-backend/internal/application/voice"

	"github.com/rs/zerolog/log"
)

const deepgramBaseURL = "https://api.deepgram.com/v1/listen"

// Deepgram calls the Deepgram pre-recorded transcription endpoint.
type Deepgram struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewDeepgram(apiKey string) (*Deepgram, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram api key is required")
	}
	return &Deepgram{
		APIKey:     apiKey,
		BaseURL:    deepgramBaseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*voice.Transcript, error) {
	reqURL, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("deepgram: parse base url: %w", err)
	}
	q := reqURL.Query()
	q.Set("smart_format", "true")
	if language != "" {
		q.Set("language", language)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read body: %w", err)
	}
	log.Debug().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("deepgram call")
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, errors.New("deepgram: no transcript in response")
	}
	alt := parsed.Results.Channels[0].Alternatives[0]
	return &voice.Transcript{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
