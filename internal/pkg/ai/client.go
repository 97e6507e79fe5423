// Package ai is the HTTP client for the transcription and note-generation
// capability. The rest of the pipeline treats it as an opaque pair:
// Transcribe(audio) -> text and GenerateNotes(transcript, prompt) -> content.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	requestTimeout = 10 * time.Minute
)

// DefaultNotesPrompt is the prompt spec used when the caller does not
// provide one.
const DefaultNotesPrompt = "You are a note-taking assistant. Turn the transcript into structured study notes: a short summary, key points as bullets, and action items if any."

var ErrMissingAPIKey = errors.New("ai: api key is not configured")

type Client struct {
	apiKey          string
	baseURL         string
	transcribeModel string
	notesModel      string
	httpClient      *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(apiKey, transcribeModel, notesModel string, opts ...Option) *Client {
	c := &Client{
		apiKey:          apiKey,
		baseURL:         defaultBaseURL,
		transcribeModel: transcribeModel,
		notesModel:      notesModel,
		httpClient:      &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the note-generation model name, recorded with each NoteResult.
func (c *Client) Model() string { return c.notesModel }

// Transcribe sends audio bytes to the transcription endpoint and returns
// the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.decodeAPIError(resp)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return strings.TrimSpace(payload.Text), nil
}

// GenerateNotes turns a transcript into structured notes using promptSpec
// as the system prompt.
func (c *Client) GenerateNotes(ctx context.Context, transcript, promptSpec string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if promptSpec == "" {
		promptSpec = DefaultNotesPrompt
	}

	payload := map[string]any{
		"model": c.notesModel,
		"messages": []map[string]string{
			{"role": "system", "content": promptSpec},
			{"role": "user", "content": transcript},
		},
		"temperature": 0.2,
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode notes payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", buf)
	if err != nil {
		return "", fmt.Errorf("create notes request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("notes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.decodeAPIError(resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode notes response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no notes returned")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("ai api error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("ai api error: status %d", resp.StatusCode)
}
