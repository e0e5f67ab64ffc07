package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/auth"
	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	"github.com/alreadydone/alreadydone-server/internal/http/response"
	"github.com/alreadydone/alreadydone-server/internal/llm"
	"github.com/alreadydone/alreadydone-server/internal/ratelimit"
	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/store/sqlite"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

const testWebhookSecret = "whsec_test_secret"

// fakeCompleter answers every generation with the same text.
type fakeCompleter struct {
	text  string
	calls atomic.Int32
}

func (f *fakeCompleter) Complete(context.Context, llm.Request) (llm.Completion, error) {
	f.calls.Add(1)
	return llm.Completion{Text: f.text, Model: "fake"}, nil
}

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api       humatest.TestAPI
	store     *sqlite.Store
	completer *fakeCompleter
	voice     *httptest.Server
	ttsCalls  *atomic.Int32
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer creates a server over a temp SQLite store, a fake text
// generator, an httptest ElevenLabs and a Stripe client with only the
// webhook secret set.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()
	ctx := context.Background()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var ttsCalls atomic.Int32
	voice := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/voices/add":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"voice_id":"voice-new","requires_verification":false}`)
		default:
			ttsCalls.Add(1)
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3-fake-mp3"))
		}
	}))
	t.Cleanup(voice.Close)

	cache, err := audiocache.OpenInMemory(time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	completer := &fakeCompleter{text: "THEME: The Quiet Morning\n\nI woke up already knowing."}

	gateway := billing.New(billing.Config{WebhookSecret: testWebhookSecret}, nil, logger)
	subscriptions := service.NewSubscriptionService(st, gateway, logger)
	catalog := service.NewCatalogService(st, logger)
	_, err = catalog.SeedDesires(ctx, service.DefaultDesireNames)
	require.NoError(t, err)

	pipeline := story.NewPipeline(
		story.NewQuotaPolicy(subscriptions, st, logger),
		story.NewCatalog(st),
		story.NewHistoryReader(st),
		story.NewGenerator(completer, story.GeneratorOptions{}, logger),
		story.NewWriter(st),
		logger,
	)

	el := elevenlabs.NewClient(elevenlabs.Config{APIKey: "xi-test", BaseURL: voice.URL}, voice.Client(), logger)
	hasher := auth.NewHasher(auth.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	services := &Services{
		Story:        pipeline,
		Catalog:      catalog,
		User:         service.NewUserService(st, hasher, logger),
		Subscription: subscriptions,
		Voice:        service.NewVoiceService(st, el, cache, logger),
	}

	s := NewServer(st, services, Options{AppName: "AlreadyDone API", CORSOrigins: []string{"*"}, GenerationConfigured: true}, logger)

	return &testServer{
		Server:    s,
		api:       humatest.Wrap(t, s.API()),
		store:     st,
		completer: completer,
		voice:     voice,
		ttsCalls:  &ttsCalls,
	}
}

func (ts *testServer) createUser(t *testing.T, u *domain.User) *domain.User {
	t.Helper()
	require.NoError(t, ts.store.CreateUser(context.Background(), u))
	return u
}

func decodeError(t *testing.T, body *bytes.Buffer) response.ErrorBody {
	t.Helper()
	var e response.ErrorBody
	require.NoError(t, json.Unmarshal(body.Bytes(), &e), body.String())
	return e
}

func storyBody(userID int64, category string) map[string]any {
	return map[string]any{
		"user_id":           userID,
		"name":              "Sam",
		"location":          "Lisbon",
		"energyWord":        "Powerful",
		"desireCategory":    category,
		"desireDescription": "I ran five miles and felt strong",
	}
}

func TestRoot(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"app":"AlreadyDone API","docs":"/docs"}`, resp.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))

	assert.Equal(t, statusHealthy, health.Components["datastore"].Status)
	assert.Equal(t, statusHealthy, health.Components["voice"].Status)
	// Stripe has no secret key in tests.
	assert.Equal(t, statusDegraded, health.Components["billing"].Status)
	assert.Equal(t, statusDegraded, health.Status)
}

func TestGenerateStory_FreeUserQuota(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 42, Name: "Sam"})

	resp := ts.api.Post("/api/generate-story", storyBody(42, "Health"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out GenerateStoryResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Positive(t, out.ID)
	assert.Equal(t, "The Quiet Morning", out.Theme)
	assert.Equal(t, "I woke up already knowing.", out.Story)

	resp = ts.api.Post("/api/generate-story", storyBody(42, "Health"))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", decodeError(t, resp.Body).Code)
	assert.Equal(t, int32(1), ts.completer.calls.Load(), "no provider call after quota is spent")

	stories, err := ts.store.ListStoriesByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, stories, 1)
}

func TestGenerateStory_UnknownUser(t *testing.T) {
	ts := setupTestServer(t)

	for i := 0; i < 2; i++ {
		resp := ts.api.Post("/api/generate-story", storyBody(777, "Health"))
		require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Code)
	}
	assert.Zero(t, ts.completer.calls.Load())
}

func TestGenerateStory_Validation(t *testing.T) {
	ts := setupTestServer(t)

	body := storyBody(42, "Health")
	body["energyWord"] = "Sleepy"
	body["name"] = "   "

	resp := ts.api.Post("/api/generate-story", body)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	e := decodeError(t, resp.Body)
	assert.Equal(t, "VALIDATION", e.Code)
	details, ok := e.Details.(map[string]any)
	require.True(t, ok, "details: %v", e.Details)
	assert.Contains(t, details, "energyWord")
	assert.Contains(t, details, "name")
	assert.Zero(t, ts.completer.calls.Load())
}

func TestGenerateStory_MissingField(t *testing.T) {
	ts := setupTestServer(t)

	body := storyBody(42, "Health")
	delete(body, "location")

	resp := ts.api.Post("/api/generate-story", body)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	assert.Equal(t, "VALIDATION", decodeError(t, resp.Body).Code)
}

func TestListStoriesAndDesires(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 7, Subscription: domain.Subscription{Status: domain.StatusActive}})

	for _, category := range []string{"Love", "Money"} {
		resp := ts.api.Post("/api/generate-story", storyBody(7, category))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	resp := ts.api.Get("/api/stories?user_id=7")
	require.Equal(t, http.StatusOK, resp.Code)
	var stories []domain.StoryWithDesire
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stories))
	require.Len(t, stories, 2)
	assert.Equal(t, service.DefaultDesireNames[domain.CategoryLove], stories[0].DesireName)

	resp = ts.api.Get("/api/stories?user_id=999")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())

	resp = ts.api.Get("/api/desires")
	require.Equal(t, http.StatusOK, resp.Code)
	var desires []domain.Desire
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &desires))
	assert.Len(t, desires, len(domain.Categories))
}

func TestUpdateUser(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 5, Name: "Old"})

	resp := ts.api.Patch("/api/users/5", map[string]any{
		"name":     "New Name",
		"speed":    "fast",
		"timezone": "Europe/Lisbon",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "password")

	var user domain.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &user))
	assert.Equal(t, "New Name", user.Name)
	assert.Equal(t, domain.SpeedFast, user.Speed)

	stored, err := ts.store.GetUser(context.Background(), 5)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)
}

func TestUpdateUser_Errors(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 5})

	resp := ts.api.Patch("/api/users/5", map[string]any{"timezone": "Mars/Olympus"})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	resp = ts.api.Patch("/api/users/5", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	resp = ts.api.Patch("/api/users/404", map[string]any{"name": "Nobody"})
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Code)
}

func TestSubscriptionStatus(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 3, Subscription: domain.Subscription{Status: domain.StatusTrialing, Plan: domain.PlanWeekly}})

	resp := ts.api.Get("/api/subscription/status?user_id=3")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"active":true,"status":"trialing","plan":"weekly"}`, resp.Body.String())

	resp = ts.api.Get("/api/subscription/status?user_id=999")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"active":false,"status":"free"}`, resp.Body.String())
}

func TestCheckout_NotConfigured(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/subscription/checkout", map[string]any{
		"user_id":     1,
		"plan":        "annual",
		"success_url": "https://app.example/success",
		"cancel_url":  "https://app.example/cancel",
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.Code, resp.Body.String())
	assert.Equal(t, "NOT_CONFIGURED", decodeError(t, resp.Body).Code)
}

func TestStripeWebhook(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 8, Subscription: domain.Subscription{
		Status: domain.StatusActive, Plan: domain.PlanAnnual, StripeSubscriptionID: "sub_8",
	}})

	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted",
			"data":{"object":{"id":"sub_8","object":"subscription","status":"canceled"}}}`),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	resp := ts.api.Post("/api/subscription/webhook",
		"Content-Type: application/json",
		"Stripe-Signature: "+sp.Header,
		bytes.NewReader(sp.Payload))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"received":true}`, resp.Body.String())

	user, err := ts.store.GetUser(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, user.Subscription.Status)

	resp = ts.api.Post("/api/subscription/webhook",
		"Content-Type: application/json",
		fmt.Sprintf("Stripe-Signature: t=%d,v1=deadbeef", time.Now().Unix()),
		bytes.NewReader(sp.Payload))
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}

func TestCloneVoice(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 11})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "My Voice"))
	require.NoError(t, mw.WriteField("user_id", "11"))
	require.NoError(t, mw.WriteField("remove_background_noise", "true"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="Take One.MP3"`)
	h.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("ID3-sample"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := ts.api.Post("/api/voice/clone", "Content-Type: "+mw.FormDataContentType(), &body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"voice_id":"voice-new","requires_verification":false}`, resp.Body.String())

	user, err := ts.store.GetUser(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "voice-new", user.VoiceID)
}

func TestCloneVoice_RejectsNonAudio(t *testing.T) {
	ts := setupTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "My Voice"))
	part, err := mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("just some text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := ts.api.Post("/api/voice/clone", "Content-Type: "+mw.FormDataContentType(), &body)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	assert.Equal(t, "VALIDATION", decodeError(t, resp.Body).Code)
}

func TestSpeak(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/voice/speak", map[string]any{"text": "Hello", "voice_id": "voice-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "audio/mpeg", resp.Header().Get("Content-Type"))
	assert.Equal(t, "ID3-fake-mp3", resp.Body.String())

	resp = ts.api.Post("/api/voice/speak", map[string]any{"text": "Hello"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSpeakStory_UsesCache(t *testing.T) {
	ts := setupTestServer(t)
	ts.createUser(t, &domain.User{ID: 21, VoiceID: "voice-21", Speed: domain.SpeedLow})

	resp := ts.api.Post("/api/generate-story", storyBody(21, "Home"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out GenerateStoryResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))

	path := fmt.Sprintf("/api/stories/%d/speak", out.ID)
	resp = ts.api.Post(path)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "MISS", resp.Header().Get("X-Cache"))

	resp = ts.api.Post(path)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "HIT", resp.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), ts.ttsCalls.Load())

	resp = ts.api.Post("/api/stories/abc/speak")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Post("/api/stories/99999/speak")
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t)
	limiter := ratelimit.New(0.0001, 1)
	t.Cleanup(limiter.Stop)
	s := NewServer(ts.store, ts.services, Options{Limiter: limiter}, discardLogger())
	api := humatest.Wrap(t, s.API())

	assert.Equal(t, http.StatusOK, api.Get("/api/desires").Code)
	resp := api.Get("/api/desires")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, codeRateLimited, decodeError(t, resp.Body).Code)

	// Health stays reachable.
	assert.Equal(t, http.StatusOK, api.Get("/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	resp := ts.api.Get("/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "go_goroutines")
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", getClientIP(r))
}
