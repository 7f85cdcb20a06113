package httpapi

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/mux"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

func (h *Handler) handleListOccupancy(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resourceType := models.ResourceType(strings.ToUpper(strings.TrimSpace(query.Get("type"))))
	status := strings.ToUpper(strings.TrimSpace(query.Get("status")))
	if err := (validation.Errors{
		"type":   validation.Validate(resourceType, resourceTypeRule),
		"status": validation.Validate(status, occupancyStatusRule()),
	}).Filter(); err != nil {
		writeValidation(w, r, err)
		return
	}

	occupancies, err := h.engine.Occupancies(r.Context(), store.OccupancyFilter{
		ResourceType: resourceType,
		Status:       status,
		DoctorID:     strings.TrimSpace(query.Get("doctor_id")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occupancies)
}

func (h *Handler) handleGetOccupancy(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["id"]
	occ, found, err := h.engine.Occupancy(r.Context(), resourceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		h.fail(w, r, store.NotFound("occupancy", resourceID))
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientSurname = strings.TrimSpace(req.PatientSurname)
	req.Phone = strings.TrimSpace(req.Phone)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	req.Notes = strings.TrimSpace(req.Notes)
	if err := req.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	occ, err := h.engine.AssignResource(r.Context(), store.AssignInput{
		ResourceID:     mux.Vars(r)["id"],
		PatientName:    req.PatientName,
		PatientSurname: req.PatientSurname,
		Phone:          req.Phone,
		DoctorID:       req.DoctorID,
		StartedAt:      req.StartedAt,
		Status:         req.Status,
		Notes:          req.Notes,
		Actor:          actorFromRequest(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, occ)
}

func (h *Handler) handleUpdateOccupancy(w http.ResponseWriter, r *http.Request) {
	var req updateOccupancyRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	req.PatientName = trimPtr(req.PatientName)
	req.PatientSurname = trimPtr(req.PatientSurname)
	req.Phone = trimPtr(req.Phone)
	req.DoctorID = trimPtr(req.DoctorID)
	req.Notes = trimPtr(req.Notes)
	if req.Status != nil {
		status := strings.ToUpper(strings.TrimSpace(*req.Status))
		req.Status = &status
	}
	if err := req.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	occ, err := h.engine.UpdateOccupancy(r.Context(), store.UpdateOccupancyInput{
		ResourceID:     mux.Vars(r)["id"],
		PatientName:    req.PatientName,
		PatientSurname: req.PatientSurname,
		Phone:          req.Phone,
		DoctorID:       req.DoctorID,
		Status:         req.Status,
		Notes:          req.Notes,
		Actor:          actorFromRequest(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}
	req.Outcome = strings.ToUpper(strings.TrimSpace(req.Outcome))
	req.Notes = strings.TrimSpace(req.Notes)
	if err := req.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	history, err := h.engine.ReleaseResource(r.Context(), store.ReleaseInput{
		ResourceID: mux.Vars(r)["id"],
		Outcome:    req.Outcome,
		Notes:      req.Notes,
		Actor:      actorFromRequest(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	resource, err := h.engine.DeactivateResource(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (h *Handler) handleResourceHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := queryTime(query.Get("from"), "from", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryTime(query.Get("to"), "to", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resourceType := models.ResourceType(strings.ToUpper(strings.TrimSpace(query.Get("type"))))
	if err := validation.Validate(resourceType, resourceTypeRule); err != nil {
		writeValidation(w, r, validation.Errors{"type": err})
		return
	}

	entries, err := h.engine.ResourceHistory(r.Context(), store.HistoryFilter{
		ResourceID:   strings.TrimSpace(query.Get("resource_id")),
		ResourceType: resourceType,
		DoctorID:     strings.TrimSpace(query.Get("doctor_id")),
		From:         from,
		To:           to,
		Search:       strings.TrimSpace(query.Get("search")),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain date used
// as an upper bound covers the whole day.
func queryTime(raw, name string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, store.Validation(name+" must be RFC 3339 or YYYY-MM-DD", name, raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}
