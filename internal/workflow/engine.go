package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// AdvanceRequest identifies the session to advance and the guard value.
type AdvanceRequest struct {
	// SessionID selects an existing session. When empty, a new session is
	// created for Task with an engine-generated ID. When set but unknown,
	// a new session is created under that ID, which requires Task.
	SessionID string
	// Task is required when creating a session and must match the stored
	// task when resuming one.
	Task string
	// ExecuteResearch is the guard evaluated after planning. When false the
	// engine stops at PAUSED_FOR_APPROVAL.
	ExecuteResearch bool
	// Owner is recorded on newly created sessions.
	Owner string
}

// Advance runs the session forward from its persisted stage until it pauses
// for approval, finishes, or fails. The returned snapshot reflects every
// stage that completed; on error it is the last persisted state.
func (e *Engine) Advance(ctx context.Context, req AdvanceRequest) (model.Session, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.advance", trace.WithAttributes(
		attribute.Bool("kenkyu.execute_research", req.ExecuteResearch),
	))
	defer span.End()

	sess, err := e.open(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open session")
		return model.Session{}, err
	}
	span.SetAttributes(attribute.String("kenkyu.session_id", sess.ID))

	sess, err = e.drive(ctx, sess, req.ExecuteResearch)
	span.SetAttributes(attribute.String("kenkyu.stage", string(sess.Stage)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance")
	}
	return sess, err
}

// PlanRequest starts or retries planning for a task.
type PlanRequest struct {
	Task      string
	SessionID string
	Owner     string
}

// PlanResult is the outcome of StartPlanning.
type PlanResult struct {
	SessionID string
	Stage     model.Stage
	Plan      []string
}

// StartPlanning creates a session for the task (or reuses the supplied one)
// and runs planning only. The session stops at PAUSED_FOR_APPROVAL. A session
// already paused returns its stored plan; one whose execution has begun or
// finished is rejected with ErrAlreadyPlanned.
func (e *Engine) StartPlanning(ctx context.Context, req PlanRequest) (PlanResult, error) {
	if err := model.ValidateTask(req.Task); err != nil {
		return PlanResult{SessionID: req.SessionID}, inputError(req.SessionID, err)
	}
	if req.SessionID != "" && model.ValidateSessionID(req.SessionID) == nil {
		existing, err := e.load(ctx, req.SessionID)
		switch {
		case err == nil:
			if existing.Stage != model.StagePlanning && existing.Stage != model.StagePausedForApproval {
				return PlanResult{SessionID: existing.ID, Stage: existing.Stage, Plan: existing.Plan},
					&Error{Kind: ErrInvalidInput, SessionID: existing.ID, Stage: existing.Stage, Err: ErrAlreadyPlanned}
			}
		case !errors.Is(err, model.ErrSessionNotFound):
			return PlanResult{SessionID: req.SessionID}, err
		}
	}
	sess, err := e.Advance(ctx, AdvanceRequest{
		SessionID:       req.SessionID,
		Task:            req.Task,
		ExecuteResearch: false,
		Owner:           req.Owner,
	})
	if err != nil {
		id := sess.ID
		if id == "" {
			id = SessionIDOf(err)
		}
		return PlanResult{SessionID: id, Stage: sess.Stage}, err
	}
	return PlanResult{SessionID: sess.ID, Stage: sess.Stage, Plan: sess.Plan}, nil
}

// ExecuteResult is the outcome of ExecutePlan.
type ExecuteResult struct {
	SessionID    string
	Stage        model.Stage
	FinalReport  string
	ReasoningLog []string
}

// ExecutePlan resumes an approved session and runs research, drafting, and
// revision to completion. The persisted plan is used as-is; planning never
// re-runs. A session interrupted mid-execution resumes from the stage it
// stopped at.
func (e *Engine) ExecutePlan(ctx context.Context, sessionID string) (ExecuteResult, error) {
	if err := model.ValidateSessionID(sessionID); err != nil {
		return ExecuteResult{}, inputError("", err)
	}
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return ExecuteResult{}, inputError(sessionID, err)
		}
		return ExecuteResult{}, err
	}
	if !sess.Stage.Executable() {
		return ExecuteResult{SessionID: sess.ID, Stage: sess.Stage},
			&Error{Kind: ErrInvalidInput, SessionID: sess.ID, Stage: sess.Stage, Err: ErrNotExecutable}
	}

	sess, err = e.Advance(ctx, AdvanceRequest{SessionID: sessionID, ExecuteResearch: true})
	res := ExecuteResult{
		SessionID:    sessionID,
		Stage:        sess.Stage,
		FinalReport:  sess.FinalReport,
		ReasoningLog: sess.ReasoningLog,
	}
	return res, err
}

// Session returns the persisted snapshot for id.
func (e *Engine) Session(ctx context.Context, id string) (model.Session, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return model.Session{}, inputError("", err)
	}
	return e.load(ctx, id)
}

func (e *Engine) load(ctx context.Context, id string) (model.Session, error) {
	sess, err := e.store.Get(ctx, id)
	if errors.Is(err, model.ErrSessionNotFound) {
		return model.Session{}, err
	}
	if err != nil {
		return model.Session{}, &Error{Kind: ErrStore, SessionID: id, Err: err}
	}
	return sess, nil
}

// open resolves the session for an advance call, creating and persisting a
// new one when needed. A new session is stored before planning runs so that
// every later failure can name it.
func (e *Engine) open(ctx context.Context, req AdvanceRequest) (model.Session, error) {
	id := req.SessionID
	if id != "" {
		if err := model.ValidateSessionID(id); err != nil {
			return model.Session{}, inputError("", err)
		}
		sess, err := e.load(ctx, id)
		switch {
		case err == nil:
			if req.Task != "" && req.Task != sess.Task {
				return model.Session{}, &Error{Kind: ErrInvalidInput, SessionID: id, Stage: sess.Stage, Err: ErrTaskMismatch}
			}
			return sess, nil
		case errors.Is(err, model.ErrSessionNotFound):
			if req.Task == "" {
				return model.Session{}, inputError(id, err)
			}
		default:
			return model.Session{}, err
		}
	} else {
		id = e.newID()
	}

	if err := model.ValidateTask(req.Task); err != nil {
		return model.Session{}, inputError(req.SessionID, err)
	}

	now := e.now()
	sess := model.Session{
		ID:        id,
		Task:      req.Task,
		Stage:     model.StagePlanning,
		Owner:     req.Owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.Log("Session created for task: " + singleLine(req.Task))
	if err := e.persist(ctx, &sess); err != nil {
		return model.Session{}, err
	}
	e.logger.Info("workflow: session created", "session_id", id)
	return sess, nil
}

// drive is the transition table. Each iteration runs the stage named by
// sess.Stage, advances the stage, and persists before continuing.
func (e *Engine) drive(ctx context.Context, sess model.Session, execute bool) (model.Session, error) {
	for {
		switch sess.Stage {
		case model.StageDone:
			return sess, nil

		case model.StagePausedForApproval:
			if !execute {
				return sess, nil
			}
			sess.Log("Plan approved. Resuming with research.")
			sess.Stage = model.StageResearching
			if err := e.persist(ctx, &sess); err != nil {
				return sess, err
			}
			continue

		case model.StagePlanning, model.StageResearching, model.StageDrafting, model.StageRevising:
			if !execute && sess.Stage != model.StagePlanning {
				return sess, nil
			}
			next, err := e.runStage(ctx, &sess, execute)
			if err != nil {
				return e.fail(ctx, sess, err)
			}
			completed := sess.Stage
			sess.Stage = next
			if err := e.persist(ctx, &sess); err != nil {
				return sess, err
			}
			e.logger.Info("workflow: stage completed", "session_id", sess.ID, "stage", completed, "next", next)

		default:
			return sess, &Error{Kind: ErrPrecondition, SessionID: sess.ID, Stage: sess.Stage,
				Err: fmt.Errorf("unknown stage %q", sess.Stage)}
		}
	}
}

// runStage executes the work of the current stage. Stage functions set their
// output field only on success; reasoning log entries are kept either way.
// The returned stage is the next position in the graph.
func (e *Engine) runStage(ctx context.Context, sess *model.Session, execute bool) (model.Stage, error) {
	stage := sess.Stage
	ctx, span := e.tracer.Start(ctx, "workflow.stage."+string(stage), trace.WithAttributes(
		attribute.String("kenkyu.session_id", sess.ID),
		attribute.String("kenkyu.stage", string(stage)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		e.stageDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("kenkyu.stage", string(stage))))
	}()

	var (
		next model.Stage
		err  error
	)
	switch stage {
	case model.StagePlanning:
		err = e.plan(ctx, sess)
		next = model.StagePausedForApproval
		if execute {
			next = model.StageResearching
		} else if err == nil {
			sess.Log("Plan is ready for review. Awaiting approval to start research.")
		}
	case model.StageResearching:
		err = e.researchStage(ctx, sess)
		next = model.StageDrafting
	case model.StageDrafting:
		err = e.draft(ctx, sess)
		next = model.StageRevising
	case model.StageRevising:
		err = e.revise(ctx, sess)
		next = model.StageDone
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		return stage, err
	}
	return next, nil
}

// fail records a stage failure in the reasoning log and persists it without
// changing the stage, so the session stays resumable. A store error on this
// write is logged; the original failure is what the caller needs.
func (e *Engine) fail(ctx context.Context, sess model.Session, cause error) (model.Session, error) {
	var we *Error
	if !errors.As(cause, &we) {
		we = &Error{Kind: ErrGeneration, Err: cause}
	}
	we.SessionID = sess.ID
	we.Stage = sess.Stage

	e.logger.Warn("workflow: stage failed", "session_id", sess.ID, "stage", sess.Stage, "error", cause)
	if ctx.Err() != nil {
		return sess, we
	}
	failure := we.Kind.Error()
	if we.Err != nil {
		failure += ": " + we.Err.Error()
	}
	sess.Log(fmt.Sprintf("Stage %s failed: %s", sess.Stage, singleLine(failure)))
	if err := e.persist(ctx, &sess); err != nil {
		e.logger.Error("workflow: persist failure note", "session_id", sess.ID, "error", err)
	}
	return sess, we
}

func (e *Engine) persist(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = e.now()
	if err := e.store.Put(ctx, sess.Clone()); err != nil {
		return &Error{Kind: ErrStore, SessionID: sess.ID, Stage: sess.Stage, Err: err}
	}
	return nil
}

func (e *Engine) plan(ctx context.Context, sess *model.Session) error {
	sess.Log("Generating a new research plan...")
	raw, err := e.generator.Generate(ctx, buildPlannerPrompt(sess.Task))
	if err != nil {
		return &Error{Kind: ErrGeneration, Err: err}
	}
	items := ParsePlan(raw)
	if len(items) == 0 {
		return &Error{Kind: ErrPlanParse, Raw: raw,
			Err: errors.New("planner output contained no numbered items")}
	}
	sess.Plan = items
	sess.Log(fmt.Sprintf("Plan generated successfully with %d sub-queries.", len(items)))
	return nil
}

func (e *Engine) researchStage(ctx context.Context, sess *model.Session) error {
	if len(sess.Plan) == 0 {
		return &Error{Kind: ErrPrecondition, Err: errors.New("research requires a non-empty plan")}
	}
	sess.Log(fmt.Sprintf("Researching %d sub-queries...", len(sess.Plan)))

	findings := e.research(ctx, sess.Plan)
	if err := ctx.Err(); err != nil {
		return &Error{Kind: ErrRetrieval, Err: err}
	}

	var empty, failed int
	for _, f := range findings {
		switch f.Outcome {
		case model.FindingEmpty:
			empty++
			sess.Log(fmt.Sprintf("Sub-query %d returned no information.", f.Index))
		case model.FindingFailed:
			failed++
			sess.Log(fmt.Sprintf("Sub-query %d failed: %s", f.Index, singleLine(f.Error)))
		default:
			sess.Log(fmt.Sprintf("Sub-query %d returned %d passages.", f.Index, len(f.Passages)))
		}
	}
	sess.Findings = findings
	sess.ResearchSummary = FormatSummary(sess.Task, findings)
	sess.Log(fmt.Sprintf("Research complete: %d found, %d empty, %d failed.",
		len(findings)-empty-failed, empty, failed))
	return nil
}

func (e *Engine) draft(ctx context.Context, sess *model.Session) error {
	if strings.TrimSpace(sess.ResearchSummary) == "" {
		return &Error{Kind: ErrPrecondition, Err: errors.New("drafting requires a non-empty research summary")}
	}
	sess.Log("Drafting the report from the research summary...")
	out, err := e.generator.Generate(ctx, buildDraftPrompt(sess.Task, sess.ResearchSummary))
	if err != nil {
		return &Error{Kind: ErrGeneration, Err: err}
	}
	sess.Draft = out
	sess.Log("Draft complete.")
	return nil
}

func (e *Engine) revise(ctx context.Context, sess *model.Session) error {
	if strings.TrimSpace(sess.Draft) == "" {
		return &Error{Kind: ErrPrecondition, Err: errors.New("revision requires a non-empty draft")}
	}
	sess.Log("Revising the draft for completeness, clarity, and accuracy...")
	out, err := e.generator.Generate(ctx, buildRevisePrompt(sess.Task, sess.Draft))
	if err != nil {
		return &Error{Kind: ErrGeneration, Err: err}
	}
	sess.FinalReport = out
	sess.Log("Final report ready.")
	return nil
}
