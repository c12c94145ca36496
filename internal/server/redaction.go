package server

import (
	"encoding/json"
	"net/http"

	"grepwise/internal/errs"
	"grepwise/internal/redact"
)

// redactionConfigResponse is the GET /redaction/config body: the grouped
// map as stored on disk, plus a flattened convenience view.
type redactionConfigResponse struct {
	Groups   redact.RedactionConfig `json:"groups"`
	Keys     []string               `json:"keys"`
	Patterns []string               `json:"patterns"`
}

// handleGetRedactionConfig implements GET /redaction/config.
func (s *Server) handleGetRedactionConfig(w http.ResponseWriter, r *http.Request) {
	if s.redactStore == nil || s.redactor == nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	cfg, err := s.redactStore.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	flat := s.redactor.Flattened()
	writeJSON(w, http.StatusOK, redactionConfigResponse{
		Groups:   cfg,
		Keys:     flat.Keys,
		Patterns: flat.PatternSrc,
	})
}

// handlePostRedactionConfig implements POST /redaction/config. Only the
// grouped shape is accepted; a flat {keys,patterns} payload fails to
// unmarshal into redact.RedactionConfig's map-of-GroupEntry shape and is
// rejected as invalid configuration.
func (s *Server) handlePostRedactionConfig(w http.ResponseWriter, r *http.Request) {
	if s.redactStore == nil || s.redactor == nil {
		writeError(w, errs.ErrBadConfig)
		return
	}

	var cfg redact.RedactionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	if isFlatPayload(cfg) {
		writeError(w, errs.ErrBadConfig)
		return
	}

	if err := s.redactor.Reload(cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := s.redactStore.Save(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// isFlatPayload detects a legacy {keys,patterns} body that happened to
// unmarshal without error (e.g. "keys" and "patterns" decoded as group
// names with no patterns of their own) — a shape no real grouped config
// would produce.
func isFlatPayload(cfg redact.RedactionConfig) bool {
	_, hasKeys := cfg["keys"]
	_, hasPatterns := cfg["patterns"]
	return hasKeys && hasPatterns
}

// handleReloadRedaction implements POST /redaction/reload: re-read the
// on-disk config and swap it into the live Redactor.
func (s *Server) handleReloadRedaction(w http.ResponseWriter, r *http.Request) {
	if s.redactStore == nil || s.redactor == nil {
		writeError(w, errs.ErrBadConfig)
		return
	}
	cfg, err := s.redactStore.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.redactor.Reload(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
