package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
	"github.com/alreadydone/alreadydone-server/internal/validation"
)

// VoiceProvider clones voices and synthesizes speech.
type VoiceProvider interface {
	Configured() bool
	AddVoice(ctx context.Context, req elevenlabs.AddVoiceRequest) (elevenlabs.AddVoiceResult, error)
	TextToSpeech(ctx context.Context, req elevenlabs.SpeechRequest) (elevenlabs.Audio, error)
}

// AudioCache stores synthesized clips by key.
type AudioCache interface {
	Get(key string) (audiocache.Clip, bool, error)
	Put(key string, clip audiocache.Clip) error
}

// CloneRequest creates a voice from recorded samples.
type CloneRequest struct {
	Name                  string `validate:"required,notblank,max=100"`
	Description           string `validate:"max=500"`
	RemoveBackgroundNoise bool
	// UserID, when set, receives the new voice id.
	UserID  int64 `validate:"gte=0"`
	Samples []elevenlabs.Sample
}

// CloneResult is returned to the app after cloning.
type CloneResult struct {
	VoiceID              string `json:"voice_id"`
	RequiresVerification bool   `json:"requires_verification"`
}

// SpeakRequest synthesizes arbitrary text.
type SpeakRequest struct {
	Text           string `json:"text" validate:"required,notblank,max=5000"`
	VoiceID        string `json:"voice_id" validate:"required,notblank"`
	ModelID        string `json:"model_id,omitempty" validate:"max=100"`
	NarrationSpeed string `json:"narration_speed,omitempty" validate:"omitempty,oneof=low normal fast"`
}

// StorySpeakRequest narrates a stored story. Empty fields fall back to the
// story owner's settings.
type StorySpeakRequest struct {
	VoiceID        string `json:"voice_id,omitempty"`
	ModelID        string `json:"model_id,omitempty" validate:"max=100"`
	NarrationSpeed string `json:"narration_speed,omitempty" validate:"omitempty,oneof=low normal fast"`
}

// Narration is synthesized audio plus whether it came from the cache.
type Narration struct {
	elevenlabs.Audio
	Cached bool
}

// VoiceService handles voice cloning and narration.
type VoiceService struct {
	store     store.Store
	provider  VoiceProvider
	cache     AudioCache
	validator *validation.Validator
	logger    *slog.Logger
}

// NewVoiceService creates a voice service. cache may be nil.
func NewVoiceService(s store.Store, provider VoiceProvider, cache AudioCache, logger *slog.Logger) *VoiceService {
	return &VoiceService{
		store:     s,
		provider:  provider,
		cache:     cache,
		validator: validation.New(),
		logger:    logger,
	}
}

// Configured reports whether the voice provider has credentials.
func (s *VoiceService) Configured() bool {
	return s.provider.Configured()
}

// Clone creates an instant voice clone and optionally stores it on a user.
func (s *VoiceService) Clone(ctx context.Context, req CloneRequest) (*CloneResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if len(req.Samples) == 0 {
		return nil, apperr.ValidationWithDetails("at least one audio file is required", map[string]string{"files": "is required"})
	}
	for _, sample := range req.Samples {
		if !strings.HasPrefix(sample.ContentType, "audio/") {
			return nil, apperr.Validationf("invalid file type: %s. Use audio (MP3, WAV, etc.)", displayName(sample.FileName))
		}
		if len(sample.Data) == 0 {
			return nil, apperr.Validationf("file is empty: %s", displayName(sample.FileName))
		}
	}
	if !s.provider.Configured() {
		return nil, apperr.NotConfigured("voice provider is not configured")
	}

	if req.UserID > 0 {
		if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
			return nil, userLookupError(err)
		}
	}

	result, err := s.provider.AddVoice(ctx, elevenlabs.AddVoiceRequest{
		Name:                  strings.TrimSpace(req.Name),
		Description:           req.Description,
		RemoveBackgroundNoise: req.RemoveBackgroundNoise,
		Samples:               req.Samples,
	})
	if err != nil {
		return nil, voiceError(err)
	}

	if req.UserID > 0 {
		if err := s.store.SetUserVoice(ctx, req.UserID, result.VoiceID); err != nil {
			return nil, apperr.Storage(err, "voice created but could not be saved on the user")
		}
	}

	s.logger.Info("voice cloned", "user_id", req.UserID, "voice_id", result.VoiceID, "samples", len(req.Samples))
	return &CloneResult{VoiceID: result.VoiceID, RequiresVerification: result.RequiresVerification}, nil
}

// Speak synthesizes req.Text.
func (s *VoiceService) Speak(ctx context.Context, req SpeakRequest) (*Narration, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !s.provider.Configured() {
		return nil, apperr.NotConfigured("voice provider is not configured")
	}

	audio, err := s.provider.TextToSpeech(ctx, elevenlabs.SpeechRequest{
		VoiceID: req.VoiceID,
		Text:    req.Text,
		ModelID: req.ModelID,
		Speed:   domain.NarrationSpeed(req.NarrationSpeed).Multiplier(),
	})
	if err != nil {
		return nil, voiceError(err)
	}
	return &Narration{Audio: audio}, nil
}

// SpeakStory narrates story storyID, serving repeat requests from the cache.
func (s *VoiceService) SpeakStory(ctx context.Context, storyID int64, req StorySpeakRequest) (*Narration, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !s.provider.Configured() {
		return nil, apperr.NotConfigured("voice provider is not configured")
	}

	st, err := s.store.GetStory(ctx, storyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("story %d not found", storyID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "failed to load story")
	}

	owner, err := s.store.GetUser(ctx, st.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Storage(err, "failed to load story owner")
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	speed := domain.NarrationSpeed(req.NarrationSpeed)
	if owner != nil {
		if voiceID == "" {
			voiceID = owner.VoiceID
		}
		if speed == "" {
			speed = owner.Speed
		}
	}
	if voiceID == "" {
		return nil, apperr.ValidationWithDetails("no voice available for this story; clone a voice or pass voice_id",
			map[string]string{"voice_id": "is required"})
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = elevenlabs.DefaultModel
	}
	speechReq := elevenlabs.SpeechRequest{
		VoiceID: voiceID,
		Text:    st.Body,
		ModelID: modelID,
		Speed:   speed.Multiplier(),
	}
	key := audiocache.Key(speechReq.VoiceID, speechReq.ModelID, speechReq.Speed, speechReq.Text)

	if s.cache != nil {
		clip, ok, err := s.cache.Get(key)
		if err != nil {
			s.logger.Warn("audio cache read failed", "story_id", storyID, "error", err)
		}
		if ok {
			return &Narration{Audio: elevenlabs.Audio{Data: clip.Data, ContentType: clip.ContentType}, Cached: true}, nil
		}
	}

	audio, err := s.provider.TextToSpeech(ctx, speechReq)
	if err != nil {
		return nil, voiceError(err)
	}

	if s.cache != nil {
		if err := s.cache.Put(key, audiocache.Clip{Data: audio.Data, ContentType: audio.ContentType}); err != nil {
			s.logger.Warn("audio cache write failed", "story_id", storyID, "error", err)
		}
	}
	return &Narration{Audio: audio}, nil
}

// voiceError maps provider failures to API errors.
func voiceError(err error) error {
	if errors.Is(err, elevenlabs.ErrNotConfigured) {
		return apperr.NotConfigured("voice provider is not configured")
	}
	var apiErr *elevenlabs.APIError
	if errors.As(err, &apiErr) {
		return apperr.Upstream("voice provider error").
			WithDetails(map[string]any{"status": apiErr.Status, "body": apiErr.Body}).
			WithCause(err)
	}
	return apperr.Upstream("voice service error").WithCause(err)
}

func userLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Storage(err, "failed to load user")
}

func displayName(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
