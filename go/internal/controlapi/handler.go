package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Handler serves the REST control surface.
type Handler struct {
	app *App
}

func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /simulations/{id}/run", h.handleRun)
	mux.HandleFunc("POST /simulations/{id}/stop", h.handleStop)
	mux.HandleFunc("GET /simulations/{id}/status", h.handleStatus)
	mux.HandleFunc("GET /simulations/running", h.handleRunning)

	mux.HandleFunc("POST /simulations", h.handleCreate)
	mux.HandleFunc("GET /simulations/{id}", h.handleGet)
	mux.HandleFunc("DELETE /simulations/{id}", h.handleDelete)
	mux.HandleFunc("GET /simulations/{id}/rounds", h.handleRounds)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	resp, err := h.app.StartSimulation(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	resp, err := h.app.StopSimulation(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.app.GetSimulationStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.RunningSimulations())
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	sim, err := h.app.CreateSimulation(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sim)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	sim, err := h.app.GetSimulation(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	resp, err := h.app.DeleteSimulation(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRounds(w http.ResponseWriter, r *http.Request) {
	id, ok := simulationIDFromPath(w, r)
	if !ok {
		return
	}

	resp, err := h.app.ListRounds(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func simulationIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid simulation id"))
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSimulationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
