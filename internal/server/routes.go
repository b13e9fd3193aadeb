package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/generator"
	"github.com/zsiec/ltcgen/internal/logger"
	"github.com/zsiec/ltcgen/internal/ltc"
	"github.com/zsiec/ltcgen/internal/output"
	"github.com/zsiec/ltcgen/pkg/version"
)

// Headers describing a rendered file.
const (
	HeaderCache  = "X-Cache"
	HeaderStart  = "X-LTC-Start"
	HeaderEnd    = "X-LTC-End"
	HeaderFrames = "X-LTC-Frames"
)

// RateView describes one supported frame rate.
type RateView struct {
	FPS       string  `json:"fps"`
	Nominal   int     `json:"nominal"`
	Exact     float64 `json:"exact"`
	DropFrame bool    `json:"drop_frame"`
}

// FramesResponse is the body of POST /api/v1/frames.
type FramesResponse struct {
	Count  int                   `json:"count"`
	Frames []generator.FrameView `json:"frames"`
}

// Field1Request is the body of PUT /api/v1/userbits/field1.
type Field1Request struct {
	Value *int `json:"value"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.respond(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	rates := ltc.FrameRates()
	views := make([]RateView, 0, len(rates))
	for _, rate := range rates {
		views = append(views, RateView{
			FPS:       rate.String(),
			Nominal:   rate.Nominal(),
			Exact:     rate.Float64(),
			DropFrame: rate.SupportsDropFrame(),
		})
	}
	s.respond(w, r, http.StatusOK, views)
}

// handleRender answers with the WAV file itself; the render description
// travels in headers.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req generator.RenderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	render, err := s.service.Render(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	cacheStatus := "MISS"
	if render.Cached {
		cacheStatus = "HIT"
	}

	h := w.Header()
	h.Set("Content-Type", output.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(render.Data)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(render.Info.Start)))
	h.Set(HeaderCache, cacheStatus)
	h.Set(HeaderStart, render.Info.Start)
	h.Set(HeaderEnd, render.Info.End)
	h.Set(HeaderFrames, strconv.Itoa(render.Info.Frames))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(render.Data); err != nil {
		logger.FromContext(r.Context()).WithError(err).Warn("Failed to write LTC audio")
	}
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	var req generator.FramesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	frames, err := s.service.Frames(req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, FramesResponse{Count: len(frames), Frames: frames})
}

func (s *Server) handleGetUserBits(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.service.UserBits())
}

// handlePatchUserBits merges the supplied fields into the service's user
// bits. Renders and streams started afterwards use them; a stream already
// running keeps the bits it was started with.
func (s *Server) handlePatchUserBits(w http.ResponseWriter, r *http.Request) {
	var patch ltc.UserBitsInput
	if err := decodeJSON(r, &patch); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if patch.IsZero() {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("no user bits fields supplied"))
		return
	}

	view, err := s.service.UpdateUserBits(patch)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, view)
}

func (s *Server) handleSetField1(w http.ResponseWriter, r *http.Request) {
	var req Field1Request
	if err := decodeJSON(r, &req); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if req.Value == nil {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("value is required"))
		return
	}

	view, err := s.service.SetField1(*req.Value)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, view)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := s.writeJSON(w, status, data); err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// decodeJSON reads exactly one JSON object with no unknown fields. An empty
// body decodes as an empty object.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil || err == io.EOF {
		if dec.More() {
			return errors.NewParseError("request body must contain a single JSON object")
		}
		return nil
	}

	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge).
			WithCode("BODY_TOO_LARGE").
			WithDetails(map[string]interface{}{"limit": tooLarge.Limit})
	}
	return errors.WrapParseError(err, "invalid JSON request body")
}

// filename turns "01:00:00;00" into "ltc_01-00-00-00.wav".
func filename(start string) string {
	return "ltc_" + strings.NewReplacer(":", "-", ";", "-").Replace(start) + ".wav"
}
