package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kiroku/internal/cache"
	"kiroku/internal/core"
	"kiroku/internal/services"
	"kiroku/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	calendar := cache.NewLRUCache[map[string]core.DayMarking](16, time.Minute)
	svc := services.NewSessionService(st, nil, calendar, services.LiveSyncConfig{
		Debounce:       10 * time.Millisecond,
		FeedbackWindow: 10 * time.Millisecond,
	})
	srv := NewServer(":0", svc)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		srv.rateLimiter.stop()
	})
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/users/u1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status %d, body %s", rec.Code, rec.Body.String())
	}
	var sess core.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if !sess.Ongoing || sess.ID == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	// Starting a second live session conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/users/u1/sessions", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: status %d", rec.Code)
	}

	base := fmt.Sprintf("/users/u1/sessions/%s", sess.ID)

	rec = doJSON(t, srv, http.MethodPost, base+"/drinks", map[string]any{
		"drinks": map[string]float64{"beer": 2, "cocktail": 1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add drinks: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodDelete, base+"/drinks", map[string]any{
		"kind": "beer", "count": 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove drinks: status %d, body %s", rec.Code, rec.Body.String())
	}
	var after core.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := core.SumDrinksOfType(after.Drinks, core.Beer); got != 1 {
		t.Errorf("beers after remove = %v", got)
	}

	rec = doJSON(t, srv, http.MethodPut, base+"/blackout", map[string]any{"blackout": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("blackout: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/finalize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: status %d, body %s", rec.Code, rec.Body.String())
	}
	var final core.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if final.Ongoing {
		t.Error("finalized session still ongoing")
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status: %d", rec.Code)
	}
	var sync map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &sync); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sync["state"] != "idle" {
		t.Errorf("sync state = %q", sync["state"])
	}
}

func TestAddDrinksValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/users/u1/sessions", nil)
	var sess core.Session
	_ = json.Unmarshal(rec.Body.Bytes(), &sess)
	base := fmt.Sprintf("/users/u1/sessions/%s/drinks", sess.ID)

	for name, body := range map[string]any{
		"unknown kind":   map[string]any{"drinks": map[string]float64{"mead": 1}},
		"negative count": map[string]any{"drinks": map[string]float64{"beer": -1}},
		"empty tally":    map[string]any{"drinks": map[string]float64{}},
		"unknown field":  map[string]any{"beer": 1},
	} {
		rec := doJSON(t, srv, http.MethodPost, base, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", name, rec.Code)
		}
	}

	// Breaching the unit cap is semantically invalid, not malformed.
	rec = doJSON(t, srv, http.MethodPost, base, map[string]any{
		"drinks": map[string]float64{"beer": 500},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unit cap: status %d", rec.Code)
	}
}

func TestGetMissingSession(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/users/u1/sessions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPreferencesEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/users/u1/preferences", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get defaults: status %d", rec.Code)
	}
	var prefs core.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefs.DrinksToUnits[core.Beer] != 1 {
		t.Errorf("default beer weight = %v", prefs.DrinksToUnits[core.Beer])
	}

	prefs.UnitsToColors = core.UnitsToColors{Yellow: 4, Orange: 8}
	rec = doJSON(t, srv, http.MethodPut, "/users/u1/preferences", prefs)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/preferences", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &prefs)
	if prefs.UnitsToColors.Yellow != 4 {
		t.Errorf("saved yellow threshold = %v", prefs.UnitsToColors.Yellow)
	}

	// Inverted thresholds are rejected.
	bad := prefs
	bad.UnitsToColors = core.UnitsToColors{Yellow: 8, Orange: 4}
	rec = doJSON(t, srv, http.MethodPut, "/users/u1/preferences", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted thresholds: status %d", rec.Code)
	}
}

func TestCalendarAndDayEndpoints(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	day := core.NewCalendarDate(2025, 6, 14)
	ts := day.Midnight().Add(21 * time.Hour).UnixMilli()
	sess := core.Session{ID: "s1", StartTime: ts, EndTime: ts + 3600_000,
		Blackout: true, Drinks: core.DrinksList{ts: {core.Beer: 6}}}
	if err := st.UpsertSession(ctx, "u1", sess); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, srv, http.MethodGet, "/users/u1/calendar/2025/6", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar: status %d", rec.Code)
	}
	var markings map[string]core.DayMarking
	if err := json.Unmarshal(rec.Body.Bytes(), &markings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	mark, ok := markings["2025-06-14"]
	if !ok {
		t.Fatalf("no marking for the session day: %v", markings)
	}
	if mark.Color != core.ColorBlack {
		t.Errorf("color = %q, want black for a blackout day", mark.Color)
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/days/2025-06-14", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("day overview: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/days/june-14", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/calendar/2025/13", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad month: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/users/u1/months/2025/6/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
}
