package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kenkyu/internal/ctxutil"
	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/workflow"
)

func (s *Server) registerTools() {
	// research_plan: first call of the two-call contract.
	s.mcpServer.AddTool(
		mcplib.NewTool("research_plan",
			mcplib.WithDescription(`Plan research for a task and stop for approval.

WHEN TO USE: At the start of any research question. The tool breaks the task
into sub-questions and returns them as a numbered plan. Nothing is searched yet.

Show the plan to the user. When they approve it, call research_execute with the
returned session_id.

If planning fails the response still carries session_id. Call research_plan again
with the same task and session_id to retry.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("task",
				mcplib.Description("The research question, in natural language."),
				mcplib.Required(),
			),
			mcplib.WithString("session_id",
				mcplib.Description("Optional: your own identifier for the session, or the id of a session to retry planning for."),
			),
		),
		s.handlePlan,
	)

	// research_execute: second call: research, draft, revise.
	s.mcpServer.AddTool(
		mcplib.NewTool("research_execute",
			mcplib.WithDescription(`Execute an approved research plan and return the final report.

WHEN TO USE: After the user approves the plan from research_plan. Retrieves
evidence for every plan item, drafts a report with [Source: <doc>, page: <n>]
citations, then revises it.

If the call fails part-way, call it again with the same session_id. Completed
stages are not repeated.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("session_id",
				mcplib.Description("The session_id returned by research_plan."),
				mcplib.Required(),
			),
		),
		s.handleExecute,
	)

	// research_status: read-only snapshot.
	s.mcpServer.AddTool(
		mcplib.NewTool("research_status",
			mcplib.WithDescription(`Show the current stage, plan, findings, and reasoning log of a research session.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_id",
				mcplib.Description("The session to inspect."),
				mcplib.Required(),
			),
		),
		s.handleStatus,
	)
}

func (s *Server) handlePlan(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	task := request.GetString("task", "")
	sessionID := request.GetString("session_id", "")
	if task == "" {
		return errorResult("task is required"), nil
	}

	if sessionID != "" {
		if res := s.checkAccess(ctx, sessionID, true); res != nil {
			return res, nil
		}
		release, ok := s.guard.TryAcquire(sessionID)
		if !ok {
			return busyResult(sessionID), nil
		}
		defer release()
	}

	res, err := s.engine.StartPlanning(ctx, workflow.PlanRequest{
		Task:      task,
		SessionID: sessionID,
		Owner:     ctxutil.Owner(ctx),
	})
	if err != nil {
		return s.workflowErrorResult("research_plan", err), nil
	}
	return jsonResult(map[string]any{
		"session_id": res.SessionID,
		"stage":      res.Stage,
		"plan":       res.Plan,
		"next":       "Show the plan to the user. After approval call research_execute with this session_id.",
	})
}

func (s *Server) handleExecute(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}
	if res := s.checkAccess(ctx, sessionID, false); res != nil {
		return res, nil
	}
	release, ok := s.guard.TryAcquire(sessionID)
	if !ok {
		return busyResult(sessionID), nil
	}
	defer release()

	res, err := s.engine.ExecutePlan(ctx, sessionID)
	if err != nil {
		return s.workflowErrorResult("research_execute", err), nil
	}
	return jsonResult(map[string]any{
		"session_id":    res.SessionID,
		"stage":         res.Stage,
		"final_report":  res.FinalReport,
		"reasoning_log": res.ReasoningLog,
	})
}

func (s *Server) handleStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}
	sess, err := s.engine.Session(ctx, sessionID)
	if err != nil {
		return s.workflowErrorResult("research_status", err), nil
	}
	if !ctxutil.CanAccess(ctx, sess.Owner) {
		return notFoundResult(sessionID), nil
	}
	return jsonResult(compactSession(sess))
}

// checkAccess returns a tool error when the caller may not act on the
// session, or nil when it may.
func (s *Server) checkAccess(ctx context.Context, sessionID string, allowMissing bool) *mcplib.CallToolResult {
	sess, err := s.engine.Session(ctx, sessionID)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		if allowMissing {
			return nil
		}
		return notFoundResult(sessionID)
	case err != nil:
		return s.workflowErrorResult("session lookup", err)
	case !ctxutil.CanAccess(ctx, sess.Owner):
		return notFoundResult(sessionID)
	}
	return nil
}

// workflowErrorResult renders an engine error as a tool error. The payload
// is JSON so agents can recover the session_id and retry.
func (s *Server) workflowErrorResult(op string, err error) *mcplib.CallToolResult {
	code := workflow.Code(err)
	payload := map[string]any{
		"error":   code,
		"message": err.Error(),
	}
	if id := workflow.SessionIDOf(err); id != "" {
		payload["session_id"] = id
	}
	switch code {
	case model.ErrCodeNotFound:
		payload["message"] = "session not found"
	case model.ErrCodePlanParse:
		payload["raw_output"] = workflow.RawOutputOf(err)
	case model.ErrCodeUpstream, model.ErrCodeStore, model.ErrCodeTimeout, model.ErrCodeInternalError:
		s.logger.Error("mcp: "+op+" failed", "session_id", payload["session_id"], "code", code, "error", err)
	}
	data, _ := json.Marshal(payload)
	return errorResult(string(data))
}

func notFoundResult(sessionID string) *mcplib.CallToolResult {
	data, _ := json.Marshal(map[string]any{
		"error":      model.ErrCodeNotFound,
		"message":    "session not found",
		"session_id": sessionID,
	})
	return errorResult(string(data))
}

func busyResult(sessionID string) *mcplib.CallToolResult {
	data, _ := json.Marshal(map[string]any{
		"error":      model.ErrCodeConflict,
		"message":    "session is already being advanced by another request",
		"session_id": sessionID,
	})
	return errorResult(string(data))
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
