package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/alreadydone/alreadydone-server/internal/metrics"
)

// SpeechRequest converts Text to audio in VoiceID's voice.
type SpeechRequest struct {
	VoiceID string
	Text    string
	ModelID string
	Speed   float64
}

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

type speechBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Speed float64 `json:"speed"`
}

// TextToSpeech calls POST /v1/text-to-speech/{voice_id} and returns mp3 audio.
func (c *Client) TextToSpeech(ctx context.Context, req SpeechRequest) (Audio, error) {
	const op = "text_to_speech"

	if !c.Configured() {
		return Audio{}, ErrNotConfigured
	}
	if req.VoiceID == "" || req.Text == "" {
		return Audio{}, errors.New("elevenlabs: voice id and text are required")
	}
	if req.ModelID == "" {
		req.ModelID = DefaultModel
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}
	if err := c.wait(ctx, op); err != nil {
		return Audio{}, err
	}

	payload, err := json.Marshal(speechBody{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: voiceSettings{Speed: req.Speed},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("encode speech request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.do(httpReq, op)
	if err != nil {
		metrics.VoiceRequest(op, "error")
		return Audio{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		metrics.VoiceRequest(op, "error")
		return Audio{}, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		metrics.VoiceRequest(op, "error")
		return Audio{}, errors.New("elevenlabs: empty audio response")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	metrics.VoiceRequest(op, "ok")
	return Audio{Data: data, ContentType: contentType}, nil
}
