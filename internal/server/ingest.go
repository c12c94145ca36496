package server

import (
	"encoding/json"
	"net/http"
	"time"

	"grepwise/internal/config"
	"grepwise/internal/errs"
	"grepwise/internal/logentry"
)

// ingestRequest is the POST /logs body. Timestamp is optional (RFC3339Nano);
// when absent the server's receipt time is used for both source and ingest
// time, so RecordTime stays unset.
type ingestRequest struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Level     string            `json:"level,omitempty"`
	Message   string            `json:"message"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const enqueueTimeout = 2 * time.Second

// handleIngest accepts one log entry and hands it to the ingestion buffer.
// It returns 202 Accepted once the entry is enqueued — durability is the
// buffer's and partition manager's concern, not the caller's.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	if req.Message == "" {
		writeError(w, errs.ErrBadConfig)
		return
	}
	source := req.Source
	if source == "" {
		source = "unknown"
	}

	ingestTime := time.Now().UTC()
	sourceTime := ingestTime
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			writeError(w, errs.ErrBadConfig)
			return
		}
		sourceTime = parsed
	}

	entry := logentry.New(sourceTime, ingestTime, req.Level, req.Message, source, req.Message, req.Metadata)
	s.enrich(&entry)

	if err := s.buffer.Enqueue(r.Context(), entry, enqueueTimeout); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": entry.ID})
}

// handlePutSource upserts a configured log source. Only SYSLOG sources are
// accepted here; file-based intake is configured out of band.
func (s *Server) handlePutSource(w http.ResponseWriter, r *http.Request) {
	if s.sourceStore == nil {
		writeError(w, errs.ErrBadConfig)
		return
	}

	var src config.LogSourceConfig
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	if src.ID == "" || src.Name == "" {
		writeError(w, errs.ErrBadConfig)
		return
	}
	if src.SourceType == "" {
		src.SourceType = config.SourceTypeSyslog
	}
	if src.SourceType != config.SourceTypeSyslog {
		writeError(w, errs.ErrBadConfig)
		return
	}

	if err := s.sourceStore.Put(r.Context(), src); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}
