package elevenlabs

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

	"silo-be/pkg/remote"
)

const (
	DefaultBaseURL  = "https://api.elevenlabs.io/v1"
	DefaultVoiceID  = "21m00Tcm4TlvDq8ikWAM"
	DefaultTTSModel = "eleven_multilingual_v2"
	DefaultSTTModel = "scribe_v1"
)

type Config struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	TTSModel        string
	STTModel        string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
}

// Client talks to the ElevenLabs REST API. It is stateless.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = DefaultTTSModel
	}
	if cfg.STTModel == "" {
		cfg.STTModel = DefaultSTTModel
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = 0.75
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type transcriptResponse struct {
	Text *string `json:"text"`
}

// SpeechToText uploads recorded audio and returns the transcript.
func (c *Client) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	const op = "speech to text"

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", fmt.Errorf("%s: failed to create form file: %w", op, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%s: failed to write audio: %w", op, err)
	}
	if err := writer.WriteField("model_id", c.cfg.STTModel); err != nil {
		return "", fmt.Errorf("%s: failed to write model: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%s: failed to close form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	respBody, err := c.do(op, req)
	if err != nil {
		return "", err
	}

	var res transcriptResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", remote.Malformed(op, err)
	}
	if res.Text == nil {
		return "", remote.Malformed(op, errors.New("response has no text field"))
	}
	return *res.Text, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// TextToSpeech synthesizes text into MPEG audio.
func (c *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	const op = "text to speech"

	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.cfg.TTSModel,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	audio, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, remote.Malformed(op, errors.New("empty audio body"))
	}
	return audio, nil
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, remote.Transport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remote.Transport(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, remote.Rejected(op, resp.StatusCode,
			fmt.Errorf("status error, got status %d. with response body %s", resp.StatusCode, string(body)))
	}
	return body, nil
}
