package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/repository"
	"reconciler-server/internal/service"
	"reconciler-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type ConflictHandler struct {
	service  *service.ConflictService
	validate *validator.Validate
}

func NewConflictHandler(service *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req domain.DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	conflicts, err := h.service.DetectConflicts(r.Context(), req.Table, req.RecordID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, conflicts)
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.GetUnresolvedConflicts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, conflicts)
}

func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]

	conflict, err := h.service.Get(r.Context(), conflictID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, conflict)
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]

	var req domain.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ResolveConflict(r.Context(), conflictID, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	conflict, err := h.service.Get(r.Context(), conflictID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, conflict)
}

func (h *ConflictHandler) AutoResolve(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]

	if err := h.service.AutoResolve(r.Context(), conflictID); err != nil {
		writeServiceError(w, err)
		return
	}

	conflict, err := h.service.Get(r.Context(), conflictID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, conflict)
}

func (h *ConflictHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.service.GetMetrics())
}

func (h *ConflictHandler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReloadRules(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "detection rules reloaded"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrConflictNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateConflict),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, service.ErrConflictClosed),
		errors.Is(err, service.ErrManualResolutionRequired):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrIncompleteResolution),
		errors.Is(err, service.ErrUnknownStrategy):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, err.Error())
	}
}
