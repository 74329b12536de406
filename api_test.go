package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/smartystreets/goconvey/convey"
)

func testRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/status", StatusHandler)
	r.Get("/api/journal", JournalHandler)
	r.Route("/api/motors/{motor}", func(r chi.Router) {
		r.Post("/move", MoveHandler)
		r.Post("/stop", StopHandler)
	})
	return r
}

func TestStatusHandler(t *testing.T) {
	ENV.Bridge = newSimBridge(t)
	ENV.Simulated = true

	Convey("status lists the configured motors", t, func() {
		req := httptest.NewRequest("GET", "/api/status", nil)
		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var payload StatusPayload
		So(json.Unmarshal(rr.Body.Bytes(), &payload), ShouldBeNil)
		So(payload.Simulated, ShouldBeTrue)
		So(payload.Motors, ShouldHaveLength, 3)
		So(payload.Motors[0].Name, ShouldEqual, "motor12")
	})
}

func TestMoveHandler(t *testing.T) {
	ENV.Bridge = newSimBridge(t)

	Convey("valid request jogs the motor", t, func() {
		body, _ := json.Marshal(&MovePayload{Speed: 0.5})
		req := httptest.NewRequest("POST", "/api/motors/motor12/move", bytes.NewBuffer(body))
		req.Header.Add("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldContainSubstring, `"motor12"`)
	})

	Convey("out of range speed is reported clamped", t, func() {
		body, _ := json.Marshal(&MovePayload{Speed: 3.0})
		req := httptest.NewRequest("POST", "/api/motors/motor12/move", bytes.NewBuffer(body))
		req.Header.Add("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldContainSubstring, `"speed":1`)
	})

	Convey("unknown motor provides 404", t, func() {
		body, _ := json.Marshal(&MovePayload{Speed: 0.5})
		req := httptest.NewRequest("POST", "/api/motors/whoami/move", bytes.NewBuffer(body))
		req.Header.Add("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusNotFound)
	})

	Convey("garbage body provides 400", t, func() {
		req := httptest.NewRequest("POST", "/api/motors/motor12/move", bytes.NewBufferString("not json"))
		req.Header.Add("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestStopHandler(t *testing.T) {
	ENV.Bridge = newSimBridge(t)

	Convey("stop works by name", t, func() {
		req := httptest.NewRequest("POST", "/api/motors/motor14/stop", nil)
		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldContainSubstring, `"stopped":true`)
	})
}

func TestJournalHandler(t *testing.T) {
	db, err := openDb(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ENV.Bridge = newSimBridge(t)
	ENV.Journal = NewJournal(db, ENV.Bridge, 0)

	Convey("an empty journal renders an empty list", t, func() {
		req := httptest.NewRequest("GET", "/api/journal", nil)
		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)
		So(rr.Body.String(), ShouldStartWith, "[]")
	})

	Convey("a bad limit provides 400", t, func() {
		req := httptest.NewRequest("GET", "/api/journal?limit=goat", nil)
		rr := httptest.NewRecorder()
		testRouter().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusBadRequest)
	})
}
