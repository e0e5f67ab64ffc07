package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/http/response"
	"github.com/alreadydone/alreadydone-server/internal/id"
	"github.com/alreadydone/alreadydone-server/internal/service"
)

// registerVoiceRoutes mounts the endpoints huma does not model well:
// multipart uploads and binary audio responses.
func (s *Server) registerVoiceRoutes() {
	s.router.Post("/api/voice/clone", s.handleCloneVoice)
	s.router.Post("/api/voice/speak", s.handleSpeak)
	s.router.Post("/api/stories/{id}/speak", s.handleSpeakStory)
}

// handleCloneVoice creates a voice from uploaded samples.
// POST /api/voice/clone (multipart: name, description, remove_background_noise, user_id, files)
func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, apperr.Validationf("upload exceeds %d MB", MaxUploadSize>>20), s.logger)
			return
		}
		response.Error(w, apperr.Validation("failed to parse multipart form").WithCause(err), s.logger)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only
	}()

	req := service.CloneRequest{
		Name:                  r.FormValue("name"),
		Description:           r.FormValue("description"),
		RemoveBackgroundNoise: formBool(r.FormValue("remove_background_noise")),
	}
	if raw := r.FormValue("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(w, apperr.ValidationWithDetails("invalid user_id", map[string]string{"user_id": "must be an integer"}), s.logger)
			return
		}
		req.UserID = userID
	}

	samples, err := readSamples(r.MultipartForm.File[sampleField])
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}
	req.Samples = samples

	result, err := s.services.Voice.Clone(r.Context(), req)
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}

	response.JSON(w, http.StatusOK, result, s.logger)
}

// handleSpeak narrates arbitrary text.
// POST /api/voice/speak
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req service.SpeakRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		response.Error(w, err, s.logger)
		return
	}

	narration, err := s.services.Voice.Speak(r.Context(), req)
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}
	s.writeAudio(w, narration)
}

// handleSpeakStory narrates a stored story with its owner's voice.
// POST /api/stories/{id}/speak (optional body overrides voice, model and speed)
func (s *Server) handleSpeakStory(w http.ResponseWriter, r *http.Request) {
	storyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || storyID <= 0 {
		response.Error(w, apperr.ValidationWithDetails("invalid story id", map[string]string{"id": "must be a positive integer"}), s.logger)
		return
	}

	var req service.StorySpeakRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		response.Error(w, err, s.logger)
		return
	}

	narration, err := s.services.Voice.SpeakStory(r.Context(), storyID, req)
	if err != nil {
		response.Error(w, err, s.logger)
		return
	}
	s.writeAudio(w, narration)
}

func (s *Server) writeAudio(w http.ResponseWriter, n *service.Narration) {
	contentType := n.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(n.Data)))
	w.Header().Set("Cache-Control", CachePrivateDay)
	if n.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(n.Data); err != nil {
		s.logger.Warn("failed to write audio response", "error", err)
	}
}

// decodeJSON reads a small JSON body into dst. An empty body is accepted
// only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpeakBody))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	default:
		return apperr.Validation("invalid JSON body").WithCause(err)
	}
}

// readSamples loads every uploaded sample into memory under a generated
// name, keeping the original extension.
func readSamples(headers []*multipart.FileHeader) ([]elevenlabs.Sample, error) {
	samples := make([]elevenlabs.Sample, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, apperr.Validationf("failed to read sample %q", fh.Filename).WithCause(err)
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}

		name, err := id.FileName(id.PrefixSample, strings.ToLower(filepath.Ext(fh.Filename)))
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to name sample")
		}

		samples = append(samples, elevenlabs.Sample{
			FileName:    name,
			ContentType: contentType,
			Data:        data,
		})
	}
	return samples, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
