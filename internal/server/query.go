package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"grepwise/internal/errs"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/query"
)

// timeSlot is one bucket of the search response's histogram.
type timeSlot struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// searchResponse is the GET /logs/search body.
type searchResponse struct {
	Results   []logentry.LogEntry `json:"results"`
	Total     int                 `json:"total"`
	TimeSlots []timeSlot          `json:"timeSlots"`
}

const defaultTimeSlots = 24

func parseRange(r *http.Request) index.TimeRange {
	q := r.URL.Query()
	start, _ := strconv.ParseInt(q.Get("start"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("end"), 10, 64)
	return index.TimeRange{StartMillis: start, EndMillis: end}
}

func parseSize(r *http.Request) int {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		return 0
	}
	return size
}

// bucketCounts buckets entries into defaultTimeSlots equal-width windows
// across rng, for the search response's timeSlots histogram.
func bucketCounts(entries []logentry.LogEntry, rng index.TimeRange) []timeSlot {
	if rng.EndMillis <= rng.StartMillis {
		return nil
	}
	width := (rng.EndMillis - rng.StartMillis) / defaultTimeSlots
	if width <= 0 {
		width = 1
	}
	counts := make(map[int64]int)
	for _, e := range entries {
		bucket := rng.StartMillis + ((e.Timestamp - rng.StartMillis) / width)
		counts[bucket]++
	}
	slots := make([]timeSlot, 0, len(counts))
	for t := rng.StartMillis; t < rng.EndMillis; t += width {
		if c, ok := counts[t]; ok {
			slots = append(slots, timeSlot{Time: t, Count: c})
		}
	}
	return slots
}

// handleSearch implements GET /logs/search. When Accept: application/x-ndjson
// is requested, results stream one JSON object per line instead of being
// buffered into the results array — the streaming search surface.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = "search *"
	}
	rng := parseRange(r)
	opts := query.Options{Range: rng, Limit: parseSize(r)}

	result, err := s.executor.Execute(r.Context(), q, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	if wantsNDJSON(r) {
		s.streamNDJSON(w, result.Entries)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results:   result.Entries,
		Total:     result.Total,
		TimeSlots: bucketCounts(result.Entries, rng),
	})
}

func wantsNDJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/x-ndjson"
}

// streamNDJSON writes one JSON-encoded LogEntry per line, flushing after
// each so a client can consume results incrementally instead of waiting for
// the full result set to buffer.
func (s *Server) streamNDJSON(w http.ResponseWriter, entries []logentry.LogEntry) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	bw := bufio.NewWriter(w)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(bw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return
		}
		bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleSPL implements POST /logs/spl: the request body is raw SPL text,
// and the response is either the log array or the stats mapping the
// pipeline produced.
func (s *Server) handleSPL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errs.ErrBadConfig)
		return
	}

	result, err := s.executor.Execute(r.Context(), string(body), query.Options{Range: parseRange(r)})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Stats != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":      result.Stats,
			"statsField": result.StatsField,
			"warnings":   result.Warnings,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":  result.Entries,
		"total":    result.Total,
		"warnings": result.Warnings,
	})
}

// handleGetByID implements GET /logs/{id}?reveal=bool, built on top of the
// id= search predicate (internal/index's fieldString maps "id" directly to
// LogEntry.ID).
func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, errs.ErrBadConfig)
		return
	}
	wantReveal := r.URL.Query().Get("reveal") == "true"
	if wantReveal && !s.revealAllowed(r) {
		writeError(w, errs.ErrUnauthorizedReveal)
		return
	}

	executor := s.executor
	if wantReveal && s.rawExecutor != nil {
		executor = s.rawExecutor
	}

	result, err := executor.Execute(r.Context(), "search id=\""+id+"\"", query.Options{Limit: 1})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(result.Entries) == 0 {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, result.Entries[0])
}

// handleCount implements GET /logs/count?….
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = "search *"
	}
	result, err := s.executor.Execute(r.Context(), q, query.Options{Range: parseRange(r)})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Total)
}

// revealAllowed reports whether the caller's RequestContext authorizes
// bypassing redaction on this request.
func (s *Server) revealAllowed(r *http.Request) bool {
	return requestContextFrom(r.Context()).CanReveal()
}
