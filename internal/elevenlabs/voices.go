package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/metrics"
)

// Sample is one uploaded recording used to clone a voice.
type Sample struct {
	FileName    string
	ContentType string
	Data        []byte
}

// AddVoiceRequest creates an instant voice clone.
type AddVoiceRequest struct {
	Name                  string
	Description           string
	RemoveBackgroundNoise bool
	Samples               []Sample
}

// AddVoiceResult is what ElevenLabs returns for a new voice.
type AddVoiceResult struct {
	VoiceID              string `json:"voice_id"`
	RequiresVerification bool   `json:"requires_verification"`
}

// AddVoice uploads samples to POST /v1/voices/add.
func (c *Client) AddVoice(ctx context.Context, req AddVoiceRequest) (AddVoiceResult, error) {
	const op = "add_voice"
	var result AddVoiceResult

	if !c.Configured() {
		return result, ErrNotConfigured
	}
	if len(req.Samples) == 0 {
		return result, errors.New("elevenlabs: at least one sample is required")
	}
	if err := c.wait(ctx, op); err != nil {
		return result, err
	}

	body, contentType, err := encodeVoiceForm(req)
	if err != nil {
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/voices/add", body)
	if err != nil {
		return result, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("cloning voice", "name", req.Name, "samples", len(req.Samples))

	resp, err := c.do(httpReq, op)
	if err != nil {
		metrics.VoiceRequest(op, "error")
		return result, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.VoiceRequest(op, "error")
		return result, fmt.Errorf("parse add voice response: %w", err)
	}
	if result.VoiceID == "" {
		metrics.VoiceRequest(op, "error")
		return result, errors.New("elevenlabs: response carried no voice_id")
	}

	metrics.VoiceRequest(op, "ok")
	return result, nil
}

func encodeVoiceForm(req AddVoiceRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"name", req.Name},
		{"remove_background_noise", strconv.FormatBool(req.RemoveBackgroundNoise)},
	}
	if req.Description != "" {
		fields = append(fields, [2]string{"description", req.Description})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	for _, s := range req.Samples {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, sanitizeFileName(s.FileName)))
		h.Set("Content-Type", s.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create sample part: %w", err)
		}
		if _, err := part.Write(s.Data); err != nil {
			return nil, "", fmt.Errorf("write sample: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "audio"
	}
	return name
}
