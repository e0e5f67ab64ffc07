package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

type fakeVoice struct {
	configured bool
	err        error
	clones     []elevenlabs.AddVoiceRequest
	speeches   []elevenlabs.SpeechRequest
}

func (f *fakeVoice) Configured() bool { return f.configured }

func (f *fakeVoice) AddVoice(_ context.Context, req elevenlabs.AddVoiceRequest) (elevenlabs.AddVoiceResult, error) {
	f.clones = append(f.clones, req)
	if f.err != nil {
		return elevenlabs.AddVoiceResult{}, f.err
	}
	return elevenlabs.AddVoiceResult{VoiceID: "voice-new"}, nil
}

func (f *fakeVoice) TextToSpeech(_ context.Context, req elevenlabs.SpeechRequest) (elevenlabs.Audio, error) {
	f.speeches = append(f.speeches, req)
	if f.err != nil {
		return elevenlabs.Audio{}, f.err
	}
	return elevenlabs.Audio{Data: []byte("ID3:" + req.VoiceID), ContentType: "audio/mpeg"}, nil
}

func mp3(name string) elevenlabs.Sample {
	return elevenlabs.Sample{FileName: name, ContentType: "audio/mpeg", Data: []byte("ID3")}
}

func TestVoiceService_CloneValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CloneRequest
	}{
		{"no samples", CloneRequest{Name: "Me"}},
		{"blank name", CloneRequest{Name: "  ", Samples: []elevenlabs.Sample{mp3("a.mp3")}}},
		{"not audio", CloneRequest{Name: "Me", Samples: []elevenlabs.Sample{{FileName: "a.png", ContentType: "image/png", Data: []byte("x")}}}},
		{"empty file", CloneRequest{Name: "Me", Samples: []elevenlabs.Sample{{FileName: "a.mp3", ContentType: "audio/mpeg"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeVoice{configured: true}
			svc := NewVoiceService(newTestStore(t), provider, nil, discardLogger())

			_, err := svc.Clone(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, provider.clones)
		})
	}
}

func TestVoiceService_CloneStoresVoiceOnUser(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, &domain.User{ID: 42})
	provider := &fakeVoice{configured: true}
	svc := NewVoiceService(s, provider, nil, discardLogger())

	result, err := svc.Clone(context.Background(), CloneRequest{
		Name:                  "Jordan",
		RemoveBackgroundNoise: true,
		UserID:                42,
		Samples:               []elevenlabs.Sample{mp3("a.mp3"), mp3("b.mp3")},
	})
	require.NoError(t, err)
	assert.Equal(t, "voice-new", result.VoiceID)
	require.Len(t, provider.clones, 1)
	assert.Len(t, provider.clones[0].Samples, 2)
	assert.True(t, provider.clones[0].RemoveBackgroundNoise)

	u, err := s.GetUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "voice-new", u.VoiceID)
}

func TestVoiceService_CloneUnknownUser(t *testing.T) {
	provider := &fakeVoice{configured: true}
	svc := NewVoiceService(newTestStore(t), provider, nil, discardLogger())

	_, err := svc.Clone(context.Background(), CloneRequest{Name: "Me", UserID: 9, Samples: []elevenlabs.Sample{mp3("a.mp3")}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, provider.clones)
}

func TestVoiceService_Speak(t *testing.T) {
	provider := &fakeVoice{configured: true}
	svc := NewVoiceService(newTestStore(t), provider, nil, discardLogger())

	n, err := svc.Speak(context.Background(), SpeakRequest{Text: "Hello", VoiceID: "v1", NarrationSpeed: "low"})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", n.ContentType)
	require.Len(t, provider.speeches, 1)
	assert.InDelta(t, 0.8, provider.speeches[0].Speed, 1e-9)

	_, err = svc.Speak(context.Background(), SpeakRequest{Text: "Hello", VoiceID: "v1", NarrationSpeed: "turbo"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestVoiceService_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		svc := NewVoiceService(newTestStore(t), &fakeVoice{}, nil, discardLogger())
		_, err := svc.Speak(context.Background(), SpeakRequest{Text: "Hello", VoiceID: "v1"})
		assert.ErrorIs(t, err, apperr.ErrNotConfigured)
	})

	t.Run("upstream status is reported", func(t *testing.T) {
		provider := &fakeVoice{configured: true, err: &elevenlabs.APIError{Op: "text_to_speech", Status: 401, Body: "invalid api key"}}
		svc := NewVoiceService(newTestStore(t), provider, nil, discardLogger())

		_, err := svc.Speak(context.Background(), SpeakRequest{Text: "Hello", VoiceID: "v1"})
		require.ErrorIs(t, err, apperr.ErrUpstream)

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		details, ok := appErr.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 401, details["status"])
	})
}

func TestVoiceService_SpeakStoryUsesCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createUser(t, s, &domain.User{ID: 42, VoiceID: "voice-owner", Speed: domain.SpeedFast})
	desire := &domain.Desire{Category: domain.CategoryHealth, Name: "Health"}
	require.NoError(t, s.UpsertDesire(ctx, desire))
	st := &domain.Story{UserID: 42, DesireID: desire.ID, Theme: "T", Body: "I ran five miles."}
	require.NoError(t, s.CreateStory(ctx, st))

	cache, err := audiocache.OpenInMemory(time.Hour, discardLogger())
	require.NoError(t, err)
	defer cache.Close()

	provider := &fakeVoice{configured: true}
	svc := NewVoiceService(s, provider, cache, discardLogger())

	first, err := svc.SpeakStory(ctx, st.ID, StorySpeakRequest{})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, provider.speeches, 1)
	assert.Equal(t, "voice-owner", provider.speeches[0].VoiceID)
	assert.Equal(t, "I ran five miles.", provider.speeches[0].Text)
	assert.InDelta(t, 1.2, provider.speeches[0].Speed, 1e-9)

	second, err := svc.SpeakStory(ctx, st.ID, StorySpeakRequest{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Len(t, provider.speeches, 1)

	// A different voice is a different clip.
	_, err = svc.SpeakStory(ctx, st.ID, StorySpeakRequest{VoiceID: "voice-other"})
	require.NoError(t, err)
	assert.Len(t, provider.speeches, 2)
}

func TestVoiceService_SpeakStoryErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createUser(t, s, &domain.User{ID: 1})
	desire := &domain.Desire{Category: domain.CategoryLove, Name: "Love"}
	require.NoError(t, s.UpsertDesire(ctx, desire))
	st := &domain.Story{UserID: 1, DesireID: desire.ID, Body: "b"}
	require.NoError(t, s.CreateStory(ctx, st))

	svc := NewVoiceService(s, &fakeVoice{configured: true}, nil, discardLogger())

	_, err := svc.SpeakStory(ctx, 999, StorySpeakRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.SpeakStory(ctx, st.ID, StorySpeakRequest{})
	assert.ErrorIs(t, err, apperr.ErrValidation, "owner has no voice")
}
