package server

import (
	"errors"
	"net/http"

	"github.com/ashita-ai/kenkyu/internal/ctxutil"
	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/workflow"
)

// HandleStartPlanning handles POST /v1/sessions.
func (h *Handlers) HandleStartPlanning(w http.ResponseWriter, r *http.Request) {
	var req model.StartPlanningRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateTask(req.Task); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if req.SessionID != "" {
		if !h.authorizeSession(w, r, req.SessionID, true) {
			return
		}
		release, ok := h.guard.TryAcquire(req.SessionID)
		if !ok {
			h.writeBusy(w, r, req.SessionID)
			return
		}
		defer release()
	}

	res, err := h.engine.StartPlanning(r.Context(), workflow.PlanRequest{
		Task:      req.Task,
		SessionID: req.SessionID,
		Owner:     ctxutil.Owner(r.Context()),
	})
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, model.StartPlanningResponse{
		SessionID: res.SessionID,
		Stage:     res.Stage,
		Plan:      res.Plan,
	})
}

// HandleExecutePlan handles POST /v1/sessions/{session_id}/execute.
func (h *Handlers) HandleExecutePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	if !h.authorizeSession(w, r, id, false) {
		return
	}
	release, ok := h.guard.TryAcquire(id)
	if !ok {
		h.writeBusy(w, r, id)
		return
	}
	defer release()

	res, err := h.engine.ExecutePlan(r.Context(), id)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.ExecutePlanResponse{
		SessionID:    res.SessionID,
		Stage:        res.Stage,
		FinalReport:  res.FinalReport,
		ReasoningLog: res.ReasoningLog,
	})
}

// HandleGetSession handles GET /v1/sessions/{session_id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	sess, err := h.engine.Session(r.Context(), id)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	if !ctxutil.CanAccess(r.Context(), sess.Owner) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// authorizeSession checks that the caller may act on session id. Sessions
// owned by another client are reported as missing. When allowMissing is
// set, an unknown id passes so the caller can create it.
func (h *Handlers) authorizeSession(w http.ResponseWriter, r *http.Request, id string, allowMissing bool) bool {
	sess, err := h.engine.Session(r.Context(), id)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		if allowMissing {
			return true
		}
		writeErrorDetail(w, r, http.StatusNotFound, model.ErrorDetail{
			Code: model.ErrCodeNotFound, Message: "session not found", SessionID: id,
		})
		return false
	case err != nil:
		h.writeWorkflowError(w, r, err)
		return false
	case !ctxutil.CanAccess(r.Context(), sess.Owner):
		writeErrorDetail(w, r, http.StatusNotFound, model.ErrorDetail{
			Code: model.ErrCodeNotFound, Message: "session not found", SessionID: id,
		})
		return false
	}
	return true
}

func (h *Handlers) writeBusy(w http.ResponseWriter, r *http.Request, id string) {
	writeErrorDetail(w, r, http.StatusConflict, model.ErrorDetail{
		Code:      model.ErrCodeConflict,
		Message:   "session is already being advanced by another request",
		SessionID: id,
	})
}

var statusByCode = map[string]int{
	model.ErrCodeNotFound:      http.StatusNotFound,
	model.ErrCodeConflict:      http.StatusConflict,
	model.ErrCodeInvalidInput:  http.StatusBadRequest,
	model.ErrCodePlanParse:     http.StatusUnprocessableEntity,
	model.ErrCodeUpstream:      http.StatusBadGateway,
	model.ErrCodeStore:         http.StatusServiceUnavailable,
	model.ErrCodeTimeout:       http.StatusGatewayTimeout,
	model.ErrCodeInternalError: http.StatusInternalServerError,
}

// writeWorkflowError maps an engine error onto the error envelope. The
// session ID is always included when known so the caller can resume.
func (h *Handlers) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	code := workflow.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	detail := model.ErrorDetail{
		Code:      code,
		Message:   err.Error(),
		SessionID: workflow.SessionIDOf(err),
	}
	switch code {
	case model.ErrCodeNotFound:
		detail.Message = "session not found"
	case model.ErrCodePlanParse:
		detail.Details = model.PlanParseDetails{RawOutput: workflow.RawOutputOf(err)}
	case model.ErrCodeInternalError:
		detail.Message = "internal error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("http: workflow request failed",
			"session_id", detail.SessionID,
			"code", code,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}
	writeErrorDetail(w, r, status, detail)
}
