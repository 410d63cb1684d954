// Package handlers exposes the job queue and dispatch triggers over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/dispatch"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store/model"
	"github.com/guideforge/guideforge/pkg/requestid"
)

type ServiceHandler struct {
	jobSrv     *service.JobService
	publishSrv *service.PublishService
	dispatcher *dispatch.Dispatcher
	logger     *zap.SugaredLogger
}

func NewServiceHandler(jobSrv *service.JobService, publishSrv *service.PublishService, dispatcher *dispatch.Dispatcher) *ServiceHandler {
	return &ServiceHandler{
		jobSrv:     jobSrv,
		publishSrv: publishSrv,
		dispatcher: dispatcher,
		logger:     zap.S().Named("handlers"),
	}
}

type errorResponse struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}

type jobResponse struct {
	Id              string     `json:"id"`
	ProductId       string     `json:"productId"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	TriggeredBy     string     `json:"triggeredBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ConfidenceScore *float64   `json:"confidenceScore,omitempty"`
	QualityFlags    []string   `json:"qualityFlags,omitempty"`
	ReviewNotes     *string    `json:"reviewNotes,omitempty"`
	ReviewedBy      *string    `json:"reviewedBy,omitempty"`
	PrimaryModel    *string    `json:"primaryModel,omitempty"`
	SecondaryModel  *string    `json:"secondaryModel,omitempty"`
}

func toJobResponse(job *model.GenerationJob) jobResponse {
	resp := jobResponse{
		Id:              job.ID.String(),
		ProductId:       job.ProductID.String(),
		Status:          job.Status,
		Priority:        model.PriorityName(job.PriorityRank),
		TriggeredBy:     job.TriggeredBy,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
		ConfidenceScore: job.ConfidenceScore,
		ReviewNotes:     job.ReviewNotes,
		ReviewedBy:      job.ReviewedBy,
		PrimaryModel:    job.PrimaryModel,
		SecondaryModel:  job.SecondaryModel,
	}
	if job.QualityFlags != nil {
		resp.QualityFlags = job.QualityFlags.Data
	}
	return resp
}

func (h *ServiceHandler) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}

func (h *ServiceHandler) writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	h.writeJSON(w, statusCode, errorResponse{
		Message:   message,
		RequestId: requestid.FromContextPtr(r.Context()),
	})
}
