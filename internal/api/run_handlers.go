package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kdimtricp/ecosort/internal/controller"
)

type classRequest struct {
	TrueClass string `json:"trueClass"`
}

type saveResponse struct {
	Error string              `json:"error,omitempty"`
	State controller.Snapshot `json:"state"`
}

type navigationResponse struct {
	Allowed bool   `json:"allowed"`
	Banner  string `json:"banner,omitempty"`
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Controller.Snapshot())
}

func (app *App) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Controller.Start(r.Context()); err != nil {
		writeError(w, runErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, app.Controller.Snapshot())
}

func (app *App) StopRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Controller.Stop(r.Context()); err != nil {
		writeError(w, runErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, app.Controller.Snapshot())
}

func (app *App) SelectClassHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeClassRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := app.Controller.SelectManualClass(req.TrueClass); err != nil {
		writeError(w, runErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, app.Controller.Snapshot())
}

// SaveClassHandler submits the manual classification. Backend failures are
// reported as 502 together with the new state, since the run has already
// moved on.
func (app *App) SaveClassHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeClassRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = app.Controller.ManualSave(r.Context(), req.TrueClass)
	status := http.StatusOK
	resp := saveResponse{}
	if err != nil {
		status = runErrorStatus(err)
		resp.Error = err.Error()
	}
	resp.State = app.Controller.Snapshot()
	writeJSON(w, status, resp)
}

func (app *App) NavigationHandler(w http.ResponseWriter, r *http.Request) {
	resp := navigationResponse{Allowed: app.Controller.AllowNavigation()}
	if !resp.Allowed {
		resp.Banner, _ = app.Controller.Banner()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *App) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	runs, err := app.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		app.logger().Error("listing runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to list runs"))
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// decodeClassRequest accepts a JSON body or a form post.
func decodeClassRequest(r *http.Request) (classRequest, error) {
	var req classRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid JSON body")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form")
	}
	req.TrueClass = r.FormValue("trueClass")
	return req, nil
}

func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, controller.ErrNoClassSelected), errors.Is(err, controller.ErrUnknownClass):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrAlreadyRunning),
		errors.Is(err, controller.ErrNotPaused),
		errors.Is(err, controller.ErrSaveInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
