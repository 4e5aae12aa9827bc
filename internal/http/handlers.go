package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kiroku/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrSessionOngoing):
		status = http.StatusConflict
	case errors.Is(err, core.ErrTooManyUnits),
		errors.Is(err, core.ErrInvalidSession),
		errors.Is(err, core.ErrEmptyUserID):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// parseDrinks validates that every key in a wire-level tally is a known
// drink and that no count is negative.
func parseDrinks(raw map[string]float64) (core.Drinks, error) {
	out := make(core.Drinks, len(raw))
	for k, v := range raw {
		if !core.IsDrinkKey(k) {
			return nil, errors.New("unknown drink kind: " + k)
		}
		if v < 0 {
			return nil, errors.New("negative drink count for " + k)
		}
		out[core.DrinkKey(k)] = v
	}
	return out, nil
}

func pathYearMonth(r *http.Request) (core.CalendarDate, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return core.CalendarDate{}, false
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return core.CalendarDate{}, false
	}
	return core.NewCalendarDate(year, month, 1), true
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.StartLiveSession(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.GetSession(r.Context(), r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteSession(r.Context(), r.PathValue("user"), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddDrinks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Drinks map[string]float64 `json:"drinks"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	tally, err := parseDrinks(body.Drinks)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(tally) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty drinks tally"})
		return
	}

	sess, err := s.sessions.AddDrinks(r.Context(), r.PathValue("user"), r.PathValue("id"), tally)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRemoveDrinks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind  string  `json:"kind"`
		Count float64 `json:"count"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !core.IsDrinkKey(body.Kind) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown drink kind: " + body.Kind})
		return
	}
	if body.Count <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "count must be positive"})
		return
	}

	sess, err := s.sessions.RemoveDrinks(r.Context(), r.PathValue("user"), r.PathValue("id"), core.DrinkKey(body.Kind), body.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSetBlackout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Blackout bool `json:"blackout"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.sessions.SetBlackout(r.Context(), r.PathValue("user"), r.PathValue("id"), body.Blackout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSetNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.sessions.SetNote(r.Context(), r.PathValue("user"), r.PathValue("id"), strings.TrimSpace(body.Note))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleFinalizeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.FinalizeSession(r.Context(), r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DiscardSession(r.Context(), r.PathValue("user"), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendarMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := pathYearMonth(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid year or month"})
		return
	}
	markings, err := s.sessions.CalendarMonth(r.Context(), r.PathValue("user"), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markings)
}

func (s *Server) handleDayOverview(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", r.PathValue("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date, want YYYY-MM-DD"})
		return
	}
	overview, err := s.sessions.DayOverview(r.Context(), r.PathValue("user"), core.CalendarDateOf(day))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleMonthStatistics(w http.ResponseWriter, r *http.Request) {
	month, ok := pathYearMonth(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid year or month"})
		return
	}
	stats, err := s.sessions.MonthStatistics(r.Context(), r.PathValue("user"), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.sessions.Preferences(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs core.Preferences
	if !decodeBody(w, r, &prefs) {
		return
	}
	for key := range prefs.DrinksToUnits {
		if !core.IsDrinkKey(string(key)) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown drink kind: " + string(key)})
			return
		}
	}
	if prefs.UnitsToColors.Yellow < 0 || prefs.UnitsToColors.Orange < prefs.UnitsToColors.Yellow {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "thresholds must satisfy 0 <= yellow <= orange"})
		return
	}
	if err := s.sessions.SavePreferences(r.Context(), r.PathValue("user"), prefs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.SyncState(r.PathValue("user"))
	writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}
