package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/codedrop/codedrop/internal/drop"
	"github.com/codedrop/codedrop/internal/room"
)

// Error messages of the drop endpoints.
const (
	msgNotFound    = "Invalid code or drop expired"
	msgExpired     = "Drop has expired"
	msgDeviceLimit = "Device limit reached"
	msgTooLarge    = "Payload too large"
	msgNoDevice    = "Missing device id"
)

func (s *Server) handleDropPut(w http.ResponseWriter, r *http.Request) {
	// base64 inflates the payload by a third
	limit := s.drops.MaxSize()*4/3 + 64*1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req drop.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	data := req.Data
	if req.Kind == drop.KindText {
		data = []byte(req.Text)
	}

	receipt, err := s.drops.Put(r.Context(), drop.Upload{
		Kind:     req.Kind,
		Name:     req.Name,
		MimeType: req.MimeType,
		Data:     data,
	})
	if err != nil {
		status, msg := dropStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleDropGet(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !room.ValidCode(code) {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	device := r.URL.Query().Get("device")
	if device == "" {
		writeError(w, http.StatusBadRequest, msgNoDevice)
		return
	}

	f, err := s.drops.Fetch(r.Context(), code, device)
	if err != nil {
		status, msg := dropStatus(err)
		writeError(w, status, msg)
		return
	}

	resp := drop.GetResponse{
		Code:      f.Code,
		Kind:      f.Kind,
		Name:      f.Name,
		MimeType:  f.MimeType,
		Size:      f.Size,
		ExpiresAt: f.ExpiresAt,
		Remaining: f.Remaining,
	}
	if f.Kind == drop.KindText {
		resp.Text = string(f.Data)
	} else {
		resp.Data = f.Data
	}
	writeJSON(w, http.StatusOK, resp)
}

func dropStatus(err error) (int, string) {
	switch {
	case errors.Is(err, drop.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, drop.ErrExpired):
		return http.StatusGone, msgExpired
	case errors.Is(err, drop.ErrDeviceLimit):
		return http.StatusForbidden, msgDeviceLimit
	case errors.Is(err, drop.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, msgTooLarge
	case errors.Is(err, drop.ErrEmpty), errors.Is(err, drop.ErrInvalidKind):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, room.ErrExhausted):
		return http.StatusServiceUnavailable, "No drop codes available"
	}
	slog.Error("drop request failed", "error", err)
	return http.StatusInternalServerError, "Internal error"
}
