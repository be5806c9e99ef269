// Package ai implements the AI Translation/Recommendation Provider
// client: JSON-mode chat completions for translation, title/overview
// translation, recommendations, and an embeddings endpoint, spec.md
// §6. Adapted from the teacher's clients/ai client shape, generalized
// from a single-vendor SDK onto a plain chat-completions transport so
// any OpenAI-compatible endpoint can be configured.
package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"mediabridge/apperrors"
	"mediabridge/clients/httpx"
	"mediabridge/clients/types"
	"mediabridge/identity"
)

type Client struct {
	http  *httpx.Client
	model string
}

func New(cfg types.ClientConfig, model string) *Client {
	return &Client{http: httpx.New(cfg), model: model}
}

var _ identity.Translator = (*Client)(nil)

// Mode selects the translation prompt template, spec.md §6 "fast /
// quality / transliterate modes".
type Mode string

const (
	ModeFast           Mode = "fast"
	ModeQuality        Mode = "quality"
	ModeTransliterate  Mode = "transliterate"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	req.ResponseFormat.Type = "json_object"

	var resp chatResponse
	err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/chat/completions", Body: req}, &resp)
	if err != nil {
		return "", fmt.Errorf("ai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.KindTransient, "ai: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

type translationResult struct {
	Translation string `json:"translation"`
}

// Translate implements identity.Translator using ModeQuality, the
// default mode for cast-name translation cache misses.
func (c *Client) Translate(ctx context.Context, phrase string) (string, error) {
	return c.TranslateMode(ctx, phrase, ModeQuality)
}

// TranslateMode implements spec.md §6's three translation modes as
// distinct prompts against the same JSON-mode chat endpoint.
func (c *Client) TranslateMode(ctx context.Context, phrase string, mode Mode) (string, error) {
	system := translationPrompt(mode)
	raw, err := c.complete(ctx, system, phrase)
	if err != nil {
		return "", err
	}
	var result translationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "ai: decoding translation response", err)
	}
	return result.Translation, nil
}

func translationPrompt(mode Mode) string {
	switch mode {
	case ModeFast:
		return `Translate the given Chinese cast name or role into English quickly, favoring a common romanization over precision. Respond as JSON: {"translation": "..."}`
	case ModeTransliterate:
		return `Transliterate the given name phonetically rather than translating its meaning. Respond as JSON: {"translation": "..."}`
	default:
		return `Translate the given Chinese cast name or role into natural English, preserving cultural nuance. Respond as JSON: {"translation": "..."}`
	}
}

// TranslateOverview translates a media overview/synopsis, spec.md §6
// "overview translation".
func (c *Client) TranslateOverview(ctx context.Context, overview string) (string, error) {
	raw, err := c.complete(ctx, `Translate the given media synopsis into natural English. Respond as JSON: {"translation": "..."}`, overview)
	if err != nil {
		return "", err
	}
	var result translationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "ai: decoding overview translation", err)
	}
	return result.Translation, nil
}

// TranslateTitle translates a media title, spec.md §6 "title
// translation".
func (c *Client) TranslateTitle(ctx context.Context, title string) (string, error) {
	raw, err := c.complete(ctx, `Translate the given media title into natural English, preserving recognizable franchise names. Respond as JSON: {"translation": "..."}`, title)
	if err != nil {
		return "", err
	}
	var result translationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "ai: decoding title translation", err)
	}
	return result.Translation, nil
}

// RecommendationCandidate is one item offered to the recommendation
// prompt, spec.md §4.4 "LLM secondary filter" tuple shape widened for
// reuse by the AI recommendation collection type.
type RecommendationCandidate struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Year        int    `json:"year"`
	ReleaseDate string `json:"release_date"`
}

type recommendationResult struct {
	IDs []string `json:"ids"`
}

// Recommend runs the LLM secondary filter / AI-recommendation prompt:
// given a candidate set and a user instruction, returns the subset of
// IDs the model selects.
func (c *Client) Recommend(ctx context.Context, instruction string, candidates []RecommendationCandidate) ([]string, error) {
	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "ai: encoding candidates", err)
	}
	system := fmt.Sprintf(`Given a JSON array of candidate media items and the instruction %q, select the ids that satisfy the instruction. Respond as JSON: {"ids": ["..."]}`, instruction)
	raw, err := c.complete(ctx, system, string(payload))
	if err != nil {
		return nil, err
	}
	var result recommendationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "ai: decoding recommendation response", err)
	}
	return result.IDs, nil
}

// HistoryItem is one watched title fed into the recommendation prompt,
// spec.md §4.4 "the target user's top-rated history (titles, years,
// metadata IDs)".
type HistoryItem struct {
	Title      string `json:"title"`
	Year       int    `json:"year"`
	MetadataID int64  `json:"metadata_id"`
}

// Suggestion is one LLM-proposed title, spec.md §4.4 Strategy A:
// "LLM prompt returning {title, original_title?, year?, type?}".
type Suggestion struct {
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title,omitempty"`
	Year          int    `json:"year,omitempty"`
	Type          string `json:"type,omitempty"`
}

type suggestResult struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggest runs the AI-recommendation Strategy A prompt: given a user's
// watch history, propose new titles not already in it.
func (c *Client) Suggest(ctx context.Context, history []HistoryItem, count int) ([]Suggestion, error) {
	payload, err := json.Marshal(history)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "ai: encoding history", err)
	}
	system := fmt.Sprintf(`Given a JSON array of a user's watched movies/shows, suggest %d new titles they have not seen that they would likely enjoy. Respond as JSON: {"suggestions": [{"title": "...", "original_title": "...", "year": 0, "type": "movie|tv"}]}`, count)
	raw, err := c.complete(ctx, system, string(payload))
	if err != nil {
		return nil, err
	}
	var result suggestResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "ai: decoding suggestion response", err)
	}
	return result.Suggestions, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the embeddings endpoint for overview vectors, spec.md
// §6 "an embeddings endpoint for overview vectors".
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: c.model, Input: texts}
	var resp embeddingResponse
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/embeddings", Body: req}, &resp); err != nil {
		return nil, fmt.Errorf("ai: requesting embeddings: %w", err)
	}
	out := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.Embedding)
	}
	return out, nil
}
