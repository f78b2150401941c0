package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-influx/internal/audit"
	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
)

// maxIDLen limits path and query identifiers.
const maxIDLen = 100

// handleListRules returns all persistence rules.
//
// Query parameters:
//   - device_id: only rules for this device
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.settings.Current().Rules
	var list []export.Rule
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		if len(deviceID) > maxIDLen {
			writeBadRequest(w, "device_id exceeds maximum length")
			return
		}
		list = rules.ForDevice(deviceID)
	} else {
		list = rules.Rules()
	}
	if list == nil {
		list = []export.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":   list,
		"count":   len(list),
		"version": rules.Version(),
	})
}

// handleGetRule returns a single rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid rule ID")
		return
	}
	rule, ok := s.findRule(id)
	if !ok {
		writeNotFound(w, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a rule. The ID is generated unless supplied.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule export.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if rule.ID != "" {
		if _, exists := s.findRule(rule.ID); exists {
			writeError(w, http.StatusConflict, ErrCodeConflict, "rule already exists")
			return
		}
	}
	s.saveRule(w, r, rule, http.StatusCreated)
}

// handleUpdateRule replaces an existing rule.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid rule ID")
		return
	}
	if _, ok := s.findRule(id); !ok {
		writeNotFound(w, "rule not found")
		return
	}
	var rule export.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rule.ID = id
	s.saveRule(w, r, rule, http.StatusOK)
}

// handleDeleteRule removes a rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid rule ID")
		return
	}
	if err := s.settings.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		s.logger.Error("deleting rule failed", "rule_id", id, "error", err)
		writeInternalError(w, "failed to delete rule")
		return
	}
	s.logger.Info("rule deleted", "rule_id", id, "by", subject(r))
	s.recordAudit(r, audit.ActionDelete, audit.EntityRule, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) saveRule(w http.ResponseWriter, r *http.Request, rule export.Rule, okStatus int) {
	saved, err := s.settings.SaveRule(r.Context(), rule)
	if err != nil {
		if errors.Is(err, export.ErrInvalidRule) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("saving rule failed", "rule_id", rule.ID, "error", err)
		writeInternalError(w, "failed to save rule")
		return
	}
	s.logger.Info("rule saved", "rule_id", saved.ID, "device_id", saved.DeviceID, "by", subject(r))
	s.recordAudit(r, actionFor(okStatus), audit.EntityRule, saved.ID, map[string]any{
		"device_id":   saved.DeviceID,
		"measurement": saved.Measurement,
	})
	writeJSON(w, okStatus, saved)
}

func (s *Server) findRule(id string) (export.Rule, bool) {
	for _, rule := range s.settings.Current().Rules.Rules() {
		if rule.ID == id {
			return rule, true
		}
	}
	return export.Rule{}, false
}

// subject returns the token subject of the caller, for audit log lines.
func subject(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
