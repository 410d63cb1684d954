package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/guideforge/guideforge/internal/auth"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store/model"
)

type enqueueRequest struct {
	ProductId string `json:"productId"`
	Priority  string `json:"priority,omitempty"`
}

type enqueueBatchRequest struct {
	ProductIds []string `json:"productIds"`
	Priority   string   `json:"priority,omitempty"`
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

func (h *ServiceHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	productID, err := uuid.Parse(req.ProductId)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "productId must be a valid uuid")
		return
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSrv.Enqueue(r.Context(), productID, priority, model.TriggeredByManual)
	if err != nil {
		switch err.(type) {
		case *service.ErrProductNotFound, *service.ErrNoSourceDocument:
			h.writeError(w, r, http.StatusBadRequest, err.Error())
		case *service.ErrJobAlreadyActive:
			h.writeError(w, r, http.StatusConflict, err.Error())
		default:
			h.logger.Errorw("enqueue failed", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue job: %v", err))
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *ServiceHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req enqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if len(req.ProductIds) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "productIds is required")
		return
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	productIDs := make([]uuid.UUID, 0, len(req.ProductIds))
	for _, raw := range req.ProductIds {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid product id %q", raw))
			return
		}
		productIDs = append(productIDs, id)
	}

	result, err := h.jobSrv.EnqueueBatch(r.Context(), productIDs, priority, model.TriggeredByBatch)
	if err != nil {
		h.logger.Errorw("batch enqueue failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue batch: %v", err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromRequest(w, r)
	if !ok {
		return
	}

	job, err := h.jobSrv.Get(r.Context(), jobID)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			h.writeError(w, r, http.StatusNotFound, err.Error())
		default:
			h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobSrv.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, toJobResponse(&jobs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromRequest(w, r)
	if !ok {
		return
	}

	job, err := h.jobSrv.Cancel(r.Context(), jobID)
	if err != nil {
		h.writeJobStateError(w, r, err, "cancel")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ServiceHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromRequest(w, r)
	if !ok {
		return
	}

	job, err := h.jobSrv.Retry(r.Context(), jobID)
	if err != nil {
		h.writeJobStateError(w, r, err, "retry")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ServiceHandler) ApproveJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromRequest(w, r)
	if !ok {
		return
	}

	user := auth.MustHaveUser(r.Context())
	job, err := h.publishSrv.Approve(r.Context(), jobID, user.Username)
	if err != nil {
		h.writeJobStateError(w, r, err, "approve")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ServiceHandler) RejectJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDFromRequest(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	user := auth.MustHaveUser(r.Context())
	job, err := h.publishSrv.Reject(r.Context(), jobID, user.Username, req.Notes)
	if err != nil {
		h.writeJobStateError(w, r, err, "reject")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ServiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobSrv.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to read stats: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

func (h *ServiceHandler) jobIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "job id must be a valid uuid")
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *ServiceHandler) writeJobStateError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch err.(type) {
	case *service.ErrJobNotFound:
		h.writeError(w, r, http.StatusNotFound, err.Error())
	case *service.ErrInvalidJobState, *service.ErrNoStoredArtifact:
		h.writeError(w, r, http.StatusConflict, err.Error())
	default:
		h.logger.Errorw("job operation failed", "operation", operation, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to %s job: %v", operation, err))
	}
}
