package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Jak3Gil/Melvin-Research/onboard"
	"github.com/go-chi/chi"
	"github.com/go-chi/render"
)

var startTime = time.Now()

//---
// Generic payloads
//---

type MovePayload struct {
	Speed float64 `json:"speed"`
}

func (m *MovePayload) Bind(r *http.Request) error {
	return nil
}

type MotorStatus struct {
	Name string `json:"name"`
	ID   uint8  `json:"id"`
}

type StatusPayload struct {
	Uptime    string              `json:"uptime"`
	Simulated bool                `json:"simulated"`
	Motors    []MotorStatus       `json:"motors"`
	Stats     onboard.BridgeStats `json:"stats"`
}

//---
// Error responses
//---

type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrNotFound(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusNotFound,
		StatusText:     "Resource not found.",
		ErrorText:      err.Error(),
	}
}

func ErrRender(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "Error rendering response.",
		ErrorText:      err.Error(),
	}
}

//---
// Views
//---

// StatusHandler reports uptime, the configured motors and the bridge
// counters.
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	motors := make([]MotorStatus, 0, len(ENV.Bridge.Motors()))
	for _, m := range ENV.Bridge.Motors() {
		motors = append(motors, MotorStatus{Name: m.Name, ID: m.ID})
	}

	render.JSON(w, r, StatusPayload{
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Simulated: ENV.Simulated,
		Motors:    motors,
		Stats:     ENV.Bridge.Stats(),
	})
}

// MoveHandler jogs a motor by name. Speed outside [-1, 1] is clamped, the
// same treatment inbound bus frames get.
func MoveHandler(w http.ResponseWriter, r *http.Request) {
	data := &MovePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	name := chi.URLParam(r, "motor")
	if _, err := ENV.Bridge.Resolve(name); err != nil {
		render.Render(w, r, ErrNotFound(err))
		return
	}
	if err := ENV.Bridge.Command(name, data.Speed); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"motor": name,
		"speed": onboard.ClampSpeed(data.Speed),
	})
}

// StopHandler halts a motor by name.
func StopHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "motor")
	if _, err := ENV.Bridge.Resolve(name); err != nil {
		render.Render(w, r, ErrNotFound(err))
		return
	}
	if err := ENV.Bridge.CommandStop(name); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{"motor": name, "stopped": true})
}

// JournalHandler lists recent command records, newest first.
func JournalHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			render.Render(w, r, ErrInvalidRequest(errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}

	recs, err := ENV.Journal.Recent(limit)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	if recs == nil {
		recs = []CommandRecord{}
	}

	render.JSON(w, r, recs)
}
