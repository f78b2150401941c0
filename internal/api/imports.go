package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-influx/internal/audit"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
)

// importDTO is the wire form of an import definition. The interval is in
// whole seconds; zero means the configured maximum.
type importDTO struct {
	DeviceID        string `json:"device_id"`
	Query           string `json:"query"`
	IntervalSeconds int64  `json:"interval_seconds"`
	Unit            string `json:"unit,omitempty"`
	Active          bool   `json:"active"`
}

func (d importDTO) definition() importer.Definition {
	return importer.Definition{
		DeviceID: d.DeviceID,
		Query:    d.Query,
		Interval: time.Duration(d.IntervalSeconds) * time.Second,
		Unit:     d.Unit,
	}
}

// toImportDTO converts d. active reports whether the running pipeline polls
// the device.
func toImportDTO(d importer.Definition, active bool) importDTO {
	return importDTO{
		DeviceID:        d.DeviceID,
		Query:           d.Query,
		IntervalSeconds: int64(d.Interval / time.Second),
		Unit:            d.Unit,
		Active:          active,
	}
}

// handleListImports returns all import definitions.
func (s *Server) handleListImports(w http.ResponseWriter, _ *http.Request) {
	snap := s.settings.Current()
	active := make(map[string]bool)
	for _, id := range s.pipeline.ImportDeviceIDs() {
		active[id] = true
	}

	ids := snap.ImportDeviceIDs()
	list := make([]importDTO, 0, len(ids))
	for _, id := range ids {
		list = append(list, toImportDTO(snap.Imports[id], active[id]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": list, "count": len(list)})
}

// handleGetImport returns the definition of one device.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(w, r)
	if !ok {
		return
	}
	d, found := s.settings.Current().ImportDefinition(id)
	if !found {
		writeNotFound(w, "import definition not found")
		return
	}
	writeJSON(w, http.StatusOK, toImportDTO(d, s.isActiveImport(id)))
}

// handleCreateImport adds a definition for a device that has none.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	var dto importDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if _, exists := s.settings.Current().ImportDefinition(dto.DeviceID); exists {
		writeError(w, http.StatusConflict, ErrCodeConflict, "import definition already exists")
		return
	}
	s.saveImport(w, r, dto.definition(), http.StatusCreated)
}

// handleUpdateImport replaces the definition of a device.
func (s *Server) handleUpdateImport(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(w, r)
	if !ok {
		return
	}
	if _, found := s.settings.Current().ImportDefinition(id); !found {
		writeNotFound(w, "import definition not found")
		return
	}
	var dto importDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	dto.DeviceID = id
	s.saveImport(w, r, dto.definition(), http.StatusOK)
}

// handleDeleteImport removes the definition of a device. Its poll loop ends
// at its next wake-up.
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(w, r)
	if !ok {
		return
	}
	if err := s.settings.DeleteImport(r.Context(), id); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			writeNotFound(w, "import definition not found")
			return
		}
		s.logger.Error("deleting import definition failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete import definition")
		return
	}
	s.logger.Info("import definition deleted", "device_id", id, "by", subject(r))
	s.recordAudit(r, audit.ActionDelete, audit.EntityImport, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handlePollImport runs one import for the device immediately.
func (s *Server) handlePollImport(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(w, r)
	if !ok {
		return
	}
	if !s.pipeline.PollNow(r.Context(), id) {
		writeNotFound(w, "device is not an active import device")
		return
	}
	s.recordAudit(r, audit.ActionPoll, audit.EntityImport, id, nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"device_id": id, "polled": true})
}

func (s *Server) saveImport(w http.ResponseWriter, r *http.Request, d importer.Definition, okStatus int) {
	if err := s.settings.SaveImport(r.Context(), d); err != nil {
		if errors.Is(err, importer.ErrInvalidDefinition) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("saving import definition failed", "device_id", d.DeviceID, "error", err)
		writeInternalError(w, "failed to save import definition")
		return
	}
	s.logger.Info("import definition saved", "device_id", d.DeviceID, "by", subject(r))
	s.recordAudit(r, actionFor(okStatus), audit.EntityImport, d.DeviceID, map[string]any{
		"query":    d.Query,
		"interval": d.Interval.String(),
	})
	writeJSON(w, okStatus, toImportDTO(d, s.isActiveImport(d.DeviceID)))
}

func (s *Server) isActiveImport(deviceID string) bool {
	for _, id := range s.pipeline.ImportDeviceIDs() {
		if id == deviceID {
			return true
		}
	}
	return false
}

func importID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid device ID")
		return "", false
	}
	return id, true
}
