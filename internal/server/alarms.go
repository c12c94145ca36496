package server

import (
	"encoding/json"
	"net/http"

	"grepwise/internal/alarm"
	"grepwise/internal/errs"
)

// alarmDTO is the JSON wire shape for alarm.Alarm, which carries no json
// tags of its own (it's an in-process domain type shared with the
// Scheduler). JSON field names are camelCase (windowMillis, thresholdOp,
// ...), the same names the CLI client's alarm shape uses.
type alarmDTO struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Query          string            `json:"query"`
	WindowMillis   int64             `json:"windowMillis"`
	ThresholdOp    alarm.ThresholdOp `json:"thresholdOp"`
	ThresholdValue float64           `json:"thresholdValue"`
	IntervalMillis int64             `json:"intervalMillis"`
	GroupBy        []string          `json:"groupBy,omitempty"`
	ThrottleMillis int64             `json:"throttleMillis"`
	Channels       []string          `json:"channels,omitempty"`
	Enabled        bool              `json:"enabled"`

	LastEvalTS  int64       `json:"lastEvalTs,omitempty"`
	LastFiredTS int64       `json:"lastFiredTs,omitempty"`
	LastState   alarm.State `json:"lastState,omitempty"`
}

func toDTO(a alarm.Alarm) alarmDTO {
	return alarmDTO{
		ID: a.ID, Name: a.Name, Query: a.Query, WindowMillis: a.WindowMillis,
		ThresholdOp: a.ThresholdOp, ThresholdValue: a.ThresholdValue,
		IntervalMillis: a.IntervalMillis, GroupBy: a.GroupBy, ThrottleMillis: a.ThrottleMillis,
		Channels: a.Channels, Enabled: a.Enabled,
		LastEvalTS: a.LastEvalTS, LastFiredTS: a.LastFiredTS, LastState: a.LastState,
	}
}

func fromDTO(d alarmDTO) alarm.Alarm {
	return alarm.Alarm{
		ID: d.ID, Name: d.Name, Query: d.Query, WindowMillis: d.WindowMillis,
		ThresholdOp: d.ThresholdOp, ThresholdValue: d.ThresholdValue,
		IntervalMillis: d.IntervalMillis, GroupBy: d.GroupBy, ThrottleMillis: d.ThrottleMillis,
		Channels: d.Channels, Enabled: d.Enabled,
	}
}

func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	alarms := s.alarmStore.List()
	dtos := make([]alarmDTO, len(alarms))
	for i, a := range alarms {
		dtos[i] = toDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	a, ok := s.alarmStore.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(a))
}

// handleCreateAlarm creates an alarm and, if enabled, registers it with the
// Scheduler so it starts ticking immediately.
func (s *Server) handleCreateAlarm(w http.ResponseWriter, r *http.Request) {
	var dto alarmDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.ID == "" || dto.Name == "" {
		writeError(w, errs.ErrBadConfig)
		return
	}

	a := fromDTO(dto)
	if err := s.alarmStore.Create(a); err != nil {
		writeError(w, err)
		return
	}
	if err := s.scheduler.RegisterAlarm(a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(a))
}

// handleUpdateAlarm replaces an alarm's definition fields, preserving its
// runtime state, then re-registers it with the Scheduler so a changed
// interval or enabled flag takes effect.
func (s *Server) handleUpdateAlarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var dto alarmDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	dto.ID = id

	err := s.alarmStore.Update(id, func(a *alarm.Alarm) {
		updated := fromDTO(dto)
		a.Name = updated.Name
		a.Query = updated.Query
		a.WindowMillis = updated.WindowMillis
		a.ThresholdOp = updated.ThresholdOp
		a.ThresholdValue = updated.ThresholdValue
		a.IntervalMillis = updated.IntervalMillis
		a.GroupBy = updated.GroupBy
		a.ThrottleMillis = updated.ThrottleMillis
		a.Channels = updated.Channels
		a.Enabled = updated.Enabled
	})
	if err != nil {
		writeError(w, err)
		return
	}

	updated, _ := s.alarmStore.Get(id)
	if err := s.scheduler.RegisterAlarm(updated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(updated))
}

func (s *Server) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.scheduler.UnregisterAlarm(id)
	s.alarmStore.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvaluateAlarm implements POST /alarms/{id}/evaluate, an on-demand
// evaluation outside the alarm's normal interval.
func (s *Server) handleEvaluateAlarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.alarmStore.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	if err := s.scheduler.EvaluateNow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	a, _ := s.alarmStore.Get(id)
	writeJSON(w, http.StatusOK, toDTO(a))
}
