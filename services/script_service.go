package services

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

	"go.uber.org/zap"

	"voiceover/utils"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	scriptPrompt = `You are an AI assistant specialized in generating voiceover scripts for videos.
Based on the subject idea provided, create a concise and engaging script suitable for a voiceover.
Respond with a JSON object of the form {"script": "..."} containing only the words to be spoken.

Subject Idea: %s

Voiceover Script:`
)

// ErrNoScriptKey is returned when script suggestion is used without a Gemini key
var ErrNoScriptKey = errors.New("Gemini API key is required")

// ScriptService suggests voiceover scripts with Gemini
type ScriptService struct {
	apiPool    *utils.APIKeyPool
	httpClient *http.Client
	baseURL    string
	model      string
	processor  *TextProcessor
	logger     *zap.Logger
}

// NewScriptService creates a new script service
func NewScriptService(apiPool *utils.APIKeyPool, model string, processor *TextProcessor, logger *zap.Logger) *ScriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptService{
		apiPool: apiPool,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:   geminiBaseURL,
		model:     model,
		processor: processor,
		logger:    logger.Named("script"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// GeminiRequest is the generateContent request body
type GeminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"response_mime_type"`
	} `json:"generationConfig"`
}

// GeminiResponse is the subset of generateContent output used here
type GeminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SuggestScript asks Gemini for a voiceover script about subject
func (ss *ScriptService) SuggestScript(ctx context.Context, subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ss.apiPool.Size() == 0 {
		return "", ErrNoScriptKey
	}

	maxRetries := ss.apiPool.Size()
	if maxRetries > 3 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		apiKey, err := ss.apiPool.Acquire()
		if err != nil {
			if lastErr != nil {
				return "", fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return "", err
		}

		text, err := ss.callGemini(ctx, fmt.Sprintf(scriptPrompt, subject), apiKey)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			ss.apiPool.MarkFailed(apiKey, time.Minute)
			ss.logger.Warn("gemini request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}

		script := ss.processor.NormalizeScript(parseScript(text))
		if script == "" {
			return "", errors.New("Gemini returned an empty script")
		}
		return script, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (ss *ScriptService) callGemini(ctx context.Context, prompt, apiKey string) (string, error) {
	var reqBody GeminiRequest
	reqBody.Contents = []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", ss.baseURL, ss.model, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ss.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp GeminiResponse
	decodeErr := json.Unmarshal(body, &apiResp)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && apiResp.Error != nil && apiResp.Error.Message != "" {
			return "", fmt.Errorf("API error: %s (code: %d)", apiResp.Error.Message, apiResp.Error.Code)
		}
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("Gemini returned no candidates")
	}

	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// parseScript extracts the script from a JSON answer, falling back to the raw text
func parseScript(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Script != "" {
		return parsed.Script
	}
	return text
}
