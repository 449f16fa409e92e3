package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"talentgate-backend/internal/application/voice"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

const transcribePrompt = "Transcribe this spoken interview answer verbatim in its original language (%s). " +
	"Return only the transcript text, without commentary or timestamps."

// Gemini transcribes audio with a multimodal Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (*voice.Transcript, error) {
	if len(audio) == 0 {
		return nil, errors.New("gemini: empty audio")
	}
	if language == "" {
		language = "en"
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
			{Text: fmt.Sprintf(transcribePrompt, language)},
		},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(strings.TrimSpace(part.Text))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, errors.New("gemini: empty transcript")
	}
	// The model reports no per-word confidence.
	return &voice.Transcript{Text: text, Confidence: 0}, nil
}
