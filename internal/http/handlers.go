package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/push"
	"fish-assistant/internal/service/stt"
	"fish-assistant/internal/service/tts"
	"fish-assistant/internal/storage"
)

const (
	maxAudioBytes = 32 << 20
	maxJSONBytes  = 1 << 20
)

type synthesizeBody struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	data, err := formAudio(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be a PCM16 WAV file")
		return
	}
	modelSize := r.FormValue("model_size")
	if modelSize == "" {
		modelSize = h.deps.ModelSize
	}

	out, err := h.deps.Transcriber.Transcribe(r.Context(), stt.Request{
		Samples:    samples,
		SampleRate: rate,
		ModelSize:  modelSize,
	})
	if err != nil {
		h.fail(w, r, "transcribe", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) synthesize(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if h.deps.Validator != nil {
		if err := h.deps.Validator.ValidateSynthesize(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	var body synthesizeBody
	if err := json.Unmarshal(raw, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	voice := body.Voice
	if voice == "" {
		voice = h.deps.Voice
	}

	clip, err := h.deps.Synthesizer.Synthesize(r.Context(), body.Text, voice)
	if err != nil {
		h.fail(w, r, "synthesize", err)
		return
	}

	if h.deps.ResponseMode == ResponseURL && h.deps.Store != nil {
		ref, err := h.deps.Store.Put(r.Context(), clip.Audio, clip.ContentType)
		if err != nil {
			h.fail(w, r, "store audio", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"audio_url":   ref,
			"duration_ms": clip.DurationMs,
		})
		return
	}
	writeAudio(w, clip.ContentType, clip.Audio)
}

func (h *handlers) storedAudio(w http.ResponseWriter, r *http.Request) {
	obj, err := h.deps.Audio.Get(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "audio not found")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("Stored audio lookup failed")
		writeError(w, http.StatusInternalServerError, "audio unavailable")
		return
	}
	writeAudio(w, obj.ContentType, obj.Data)
}

// play accepts audio pushed by a server and hands it to the local playback
// stage under the sender's corr_id. A corr_id already accepted is not played
// again.
func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	var data []byte
	var err error
	contentType := r.Header.Get("Content-Type")
	if mt, _, _ := mime.ParseMediaType(contentType); mt == "multipart/form-data" {
		data, err = formAudio(w, r)
		contentType = ""
	} else {
		data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, push.Ack{Status: "error", Message: err.Error()})
		return
	}

	clip, err := tts.FromWAV(data, contentType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, push.Ack{Status: "error", Message: err.Error()})
		return
	}

	corrID := r.Header.Get(push.CorrelationHeader)
	if corrID == "" {
		corrID = models.NewCorrID()
	} else if prev, first := h.accepted.claim(corrID); !first {
		// A retry after a lost acknowledgement: answer again, play once.
		h.logger.Info().Str("corrId", corrID).Msg("Repeated delivery ignored")
		w.Header().Set(push.CorrelationHeader, corrID)
		writeJSON(w, http.StatusOK, prev)
		return
	}

	ev := models.NewWithCorrID(models.TopicTTSAudio, corrID, clip)
	if err := h.deps.Bus.Publish(r.Context(), ev); err != nil {
		h.accepted.release(corrID)
		h.logger.Error().Err(err).Str("corrId", corrID).Msg("Pushed audio playback failed")
		writeJSON(w, http.StatusInternalServerError, push.Ack{Status: "error", Message: "playback failed"})
		return
	}

	ack := push.Ack{
		Status:    "ok",
		Message:   "playing",
		DurationS: float64(clip.DurationMs) / 1000,
	}
	h.accepted.settle(corrID, ack)
	w.Header().Set(push.CorrelationHeader, corrID)
	writeJSON(w, http.StatusOK, ack)
}

// fail maps the error taxonomy onto status codes.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch faults.Kind(err) {
	case faults.KindCapability:
		status = http.StatusUnprocessableEntity
	case faults.KindRejected:
		status = http.StatusBadRequest
	case faults.KindTransport:
		status = http.StatusBadGateway
	case faults.KindCanceled:
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn().
		Err(err).
		Str("op", op).
		Str("kind", faults.Kind(err)).
		Str("path", r.URL.Path).
		Msg("Request failed")
	writeError(w, status, fmt.Sprintf("%s failed: %v", op, err))
}

func formAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		return nil, errors.New("missing audio file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty audio file")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAudio(w http.ResponseWriter, contentType string, data []byte) {
	if contentType == "" {
		contentType = audio.ContentTypeWAV
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
