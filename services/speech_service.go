package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"voiceover/models"
	"voiceover/utils"
)

const (
	ttsBaseURL     = "https://texttospeech.googleapis.com/v1"
	defaultVoiceID = "Algenib"
)

// ErrNoSpeechCredentials is returned when neither API keys nor OAuth credentials are configured
var ErrNoSpeechCredentials = errors.New("no text-to-speech credentials configured")

var voiceCatalog = []models.Voice{
	{ID: "Algenib", Label: "Algenib (US, female)", LanguageCode: "en-US", ProviderName: "en-US-Standard-C"},
	{ID: "Sirius", Label: "Sirius (US, male)", LanguageCode: "en-US", ProviderName: "en-US-Standard-D"},
	{ID: "Enif", Label: "Enif (US, female)", LanguageCode: "en-US", ProviderName: "en-US-Standard-E"},
	{ID: "Procyon", Label: "Procyon (US, female)", LanguageCode: "en-US", ProviderName: "en-US-Standard-F"},
	{ID: "King", Label: "King (UK, male)", LanguageCode: "en-GB", ProviderName: "en-GB-Standard-B"},
	{ID: "Queen", Label: "Queen (UK, female)", LanguageCode: "en-GB", ProviderName: "en-GB-Standard-A"},
	{ID: "Prince", Label: "Prince (India, male)", LanguageCode: "en-IN", ProviderName: "en-IN-Standard-B"},
	{ID: "Princess", Label: "Princess (India, female)", LanguageCode: "en-IN", ProviderName: "en-IN-Standard-A"},
}

// Voices returns the voice catalog
func Voices() []models.Voice {
	return append([]models.Voice(nil), voiceCatalog...)
}

// ResolveVoice maps a catalog id to a provider voice. Unknown ids fall back to the
// default voice.
func ResolveVoice(id string) models.Voice {
	for _, v := range voiceCatalog {
		if strings.EqualFold(v.ID, id) {
			return v
		}
	}
	return voiceCatalog[0]
}

// SpeechConfig tunes the speech service
type SpeechConfig struct {
	SampleRate        int
	MaxConcurrent     int
	RequestsPerSecond float64
	MaxRetries        int
	RetryDelay        time.Duration
}

// SpeechService synthesizes narration with Google Cloud Text-to-Speech
type SpeechService struct {
	apiPool     *utils.APIKeyPool
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	limiter     *rate.Limiter
	processor   *TextProcessor
	baseURL     string
	cfg         SpeechConfig
	logger      *zap.Logger
}

// NewSpeechService creates a speech service. API keys take precedence; tokenSource is
// used when the pool is empty.
func NewSpeechService(apiPool *utils.APIKeyPool, tokenSource oauth2.TokenSource, processor *TextProcessor, cfg SpeechConfig, logger *zap.Logger) *SpeechService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = utils.DefaultSpeechFormat.SampleRate
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &SpeechService{
		apiPool:     apiPool,
		tokenSource: tokenSource,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		limiter:   rate.NewLimiter(limit, cfg.MaxConcurrent),
		processor: processor,
		baseURL:   ttsBaseURL,
		cfg:       cfg,
		logger:    logger.Named("speech"),
	}
}

type ttsRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
	Error        *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Synthesize converts text to a mono 16-bit WAV narration. Long scripts are split into
// requests that run in parallel; their PCM is joined in script order.
func (s *SpeechService) Synthesize(ctx context.Context, text, voiceID string) (*models.AudioPayload, error) {
	if s.apiPool.Size() == 0 && s.tokenSource == nil {
		return nil, ErrNoSpeechCredentials
	}

	chunks := s.processor.SplitForSpeech(s.processor.NormalizeScript(text))
	if len(chunks) == 0 {
		return nil, errors.New("script has no speakable text")
	}
	voice := ResolveVoice(voiceID)

	s.logger.Info("synthesizing narration",
		zap.String("voice", voice.ProviderName),
		zap.Int("chunks", len(chunks)))

	pcmParts := make([][]byte, len(chunks))
	format := utils.WAVFormat{Channels: 1, SampleRate: s.cfg.SampleRate, BitsPerSample: 16}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, chunk := range chunks {
		g.Go(func() error {
			audio, err := s.synthesizeChunk(gctx, chunk, voice)
			if err != nil {
				return fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
			}
			pcm, chunkFormat, err := utils.DecodeWAV(audio, format)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if chunkFormat != format {
				return fmt.Errorf("chunk %d: unexpected audio format %+v", i, chunkFormat)
			}
			pcmParts[i] = pcm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pcm := bytes.Join(pcmParts, nil)
	if len(pcm) == 0 {
		return nil, errors.New("speech provider returned no audio")
	}

	return &models.AudioPayload{
		Data:     utils.EncodeWAV(pcm, format),
		MimeType: "audio/wav",
		Duration: format.Duration(len(pcm)),
	}, nil
}

// synthesizeChunk calls the provider with retry, rotating API keys on failure
func (s *SpeechService) synthesizeChunk(ctx context.Context, text string, voice models.Voice) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.cfg.RetryDelay):
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		apiKey := ""
		if s.apiPool.Size() > 0 {
			key, err := s.apiPool.Acquire()
			if err != nil {
				lastErr = err
				continue
			}
			apiKey = key
		}

		audio, err := s.callTTS(ctx, text, voice, apiKey)
		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if apiKey != "" {
			s.apiPool.MarkFailed(apiKey, time.Minute)
		}
		s.logger.Warn("tts request failed", zap.Int("attempt", attempt+1), zap.Error(err))
		lastErr = err
	}

	return nil, fmt.Errorf("failed after %d retries: %w", s.cfg.MaxRetries, lastErr)
}

func (s *SpeechService) callTTS(ctx context.Context, text string, voice models.Voice, apiKey string) ([]byte, error) {
	var reqBody ttsRequest
	reqBody.Input.Text = text
	reqBody.Voice.LanguageCode = voice.LanguageCode
	reqBody.Voice.Name = voice.ProviderName
	reqBody.AudioConfig.AudioEncoding = "LINEAR16"
	reqBody.AudioConfig.SampleRateHertz = s.cfg.SampleRate

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := s.baseURL + "/text:synthesize"
	if apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if apiKey == "" {
		token, err := s.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp ttsResponse
	decodeErr := json.Unmarshal(body, &apiResp)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && apiResp.Error != nil && apiResp.Error.Message != "" {
			return nil, fmt.Errorf("API error: %s (code: %d)", apiResp.Error.Message, apiResp.Error.Code)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}

	audio, err := base64.StdEncoding.DecodeString(apiResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audio, nil
}

// DataURI encodes a payload as a data: URI
func DataURI(payload *models.AudioPayload) string {
	return "data:" + payload.MimeType + ";base64," + base64.StdEncoding.EncodeToString(payload.Data)
}
