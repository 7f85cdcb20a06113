package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"qms/turn-service/internal/engine"
	"qms/turn-service/internal/store"
)

func (h *Handler) handleCreateTurn(w http.ResponseWriter, r *http.Request) {
	var req createTurnRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	turn, created, err := h.engine.CreateTurn(r.Context(), store.CreateTurnInput{
		RequestID:    req.RequestID,
		ServiceID:    req.ServiceID,
		PatientID:    req.PatientID,
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		DoctorID:     req.DoctorID,
		ResourceID:   req.ResourceID,
		Priority:     req.Priority,
		Notes:        req.Notes,
		Actor:        actorFromRequest(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, turn)
}

func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	statuses, err := queryStatuses(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	turns, err := h.engine.ListTurns(r.Context(), store.TurnFilter{
		Statuses:  statuses,
		ServiceID: strings.TrimSpace(query.Get("service_id")),
		DoctorID:  strings.TrimSpace(query.Get("doctor_id")),
		Day:       strings.TrimSpace(query.Get("day")),
		Limit:     limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) handleGetTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := h.engine.Turn(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleTurnHistory(w http.ResponseWriter, r *http.Request) {
	audit, err := h.engine.TurnHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (h *Handler) handleTurnAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action, ok := turnActions[vars["action"]]
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown turn action")
		return
	}

	var req turnActionRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}
	req.Notes = strings.TrimSpace(req.Notes)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if err := req.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	turn, _, err := action(h.engine, r.Context(), engine.Action{
		TurnID:   vars["id"],
		Actor:    actorFromRequest(r),
		Notes:    req.Notes,
		DoctorID: req.DoctorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	statuses, err := queryStatuses(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	turns, err := h.engine.Queue(r.Context(), store.QueueFilter{
		Statuses:  statuses,
		ServiceID: strings.TrimSpace(query.Get("service_id")),
		DoctorID:  strings.TrimSpace(query.Get("doctor_id")),
		Limit:     limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	display, err := h.engine.Display(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

func (h *Handler) handleDoctorWorklist(w http.ResponseWriter, r *http.Request) {
	worklist, err := h.engine.DoctorWorklist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, worklist)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context(), strings.TrimSpace(r.URL.Query().Get("day")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
