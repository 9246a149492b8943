package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hr-lifecycle/backend/internal/auth"
	"hr-lifecycle/backend/internal/dispatch"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/pkg/models"
)

const tracerName = "hr-lifecycle/backend/internal/services"

// ErrEmployeeNotFound is returned when the directory has no such employee.
var ErrEmployeeNotFound = errors.New("employee not found")

// Task metadata keys recorded when intents are dispatched and executed. They
// carry dispatch.ReservedPrefix so they never leak into later payloads.
const (
	KeyIntentStatus = dispatch.ReservedPrefix + "status"
	KeyDispatched   = dispatch.ReservedPrefix + "dispatched"
	KeyIntentID     = dispatch.ReservedPrefix + "id"
	KeyIntentKind   = dispatch.ReservedPrefix + "kind"
	KeyTemplateID   = dispatch.ReservedPrefix + "template_id"
	KeyIntentError  = dispatch.ReservedPrefix + "error"
)

// Values of KeyIntentStatus.
const (
	IntentDispatched = "dispatched"
	IntentExecuted   = "executed"
	IntentFailed     = "failed"
)

// KeyArtifactRef is the payload key holding the latest letter reference of a run.
const KeyArtifactRef = "artifact_ref"

// StartRequest starts a workflow. An empty Track selects the onboarding
// track matching the employee type.
type StartRequest struct {
	EmployeeID string       `json:"employee_id"`
	Track      models.Track `json:"track,omitempty"`
}

// Outcome is a committed transition plus the intents it produced.
type Outcome struct {
	Result  *engine.Result
	Intents []models.Intent
	// Recorded is the annotation listing the dispatched intents, if any.
	Recorded *engine.Result
}

// Latest returns the most recent committed view of the workflow.
func (o *Outcome) Latest() *engine.Instance {
	if o.Recorded != nil {
		return o.Recorded.Instance
	}
	return o.Result.Instance
}

// IntentResult records the execution of one intent.
type IntentResult struct {
	Intent      models.Intent `json:"intent"`
	ArtifactRef string        `json:"artifact_ref,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ExecutionReport summarizes an ExecuteIntents run.
type ExecutionReport struct {
	Executed []IntentResult `json:"executed"`
	// Failed is the intent that stopped execution, if any.
	Failed *IntentResult `json:"failed,omitempty"`
	// NotRun lists the intents after Failed.
	NotRun []models.Intent `json:"not_run,omitempty"`
	// Reported is the engine result recording the failure.
	Reported *engine.Result `json:"-"`
	// FollowUp holds intents produced by the failure report. They are
	// returned to the caller and never executed automatically.
	FollowUp []models.Intent `json:"follow_up,omitempty"`
}

// OK reports whether every intent ran successfully.
func (r *ExecutionReport) OK() bool { return r.Failed == nil }

// LifecycleService is the caller layer around the engine: it resolves
// employees, turns committed transitions into intents and runs them through
// the collaborators.
type LifecycleService struct {
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	directory  Directory
	executors  Collaborators
	overrides  *auth.Policy
	logger     engine.Logger
	tracer     trace.Tracer
}

// Option configures a LifecycleService.
type Option func(*LifecycleService)

// WithOverridePolicy restricts which actors may request overrides. Without
// it every actor may.
func WithOverridePolicy(p *auth.Policy) Option {
	return func(s *LifecycleService) { s.overrides = p }
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(eng *engine.Engine, dispatcher *dispatch.Dispatcher, directory Directory, executors Collaborators, logger engine.Logger, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		engine:     eng,
		dispatcher: dispatcher,
		directory:  directory,
		executors:  executors,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the underlying engine, mainly for catalog access.
func (s *LifecycleService) Engine() *engine.Engine { return s.engine }

func (s *LifecycleService) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "LifecycleService."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("lifecycle.reason", engine.Reason(err)))
	}
	span.End()
}

// StartWorkflow creates a workflow for an employee known to the directory.
func (s *LifecycleService) StartWorkflow(ctx context.Context, req StartRequest) (in *engine.Instance, err error) {
	ctx, span := s.start(ctx, "StartWorkflow",
		attribute.String("employee.id", req.EmployeeID),
		attribute.String("lifecycle.track", string(req.Track)),
	)
	defer func() { finish(span, err) }()

	emp, err := s.employee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	track := req.Track
	if track == "" {
		var ok bool
		if track, ok = emp.EmployeeType.OnboardingTrack(); !ok {
			return nil, &engine.TransitionError{
				Kind: engine.ErrInvalidRequest,
				Msg:  fmt.Sprintf("no onboarding track for employee type %q", emp.EmployeeType),
			}
		}
	}
	return s.engine.Create(ctx, emp.ID, track)
}

// Transition applies req, dispatches the intents of the task transition and
// journals their ids as an annotation on the task.
//
// If dispatch or its record fails after the commit, the committed outcome is
// returned together with the error.
func (s *LifecycleService) Transition(ctx context.Context, req engine.TransitionRequest) (out *Outcome, err error) {
	ctx, span := s.start(ctx, "Transition",
		attribute.String("workflow.id", req.WorkflowID),
		attribute.String("task.id", req.TaskID),
		attribute.String("task.to", string(req.To)),
	)
	defer func() { finish(span, err) }()

	if req.Override {
		if err := s.overrides.AuthorizeOverride(req.Actor); err != nil {
			return nil, err
		}
	}
	in, err := s.engine.Get(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	emp, err := s.employee(ctx, in.Workflow.EmployeeID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.ApplyTransition(ctx, req)
	if err != nil {
		return nil, err
	}
	out = &Outcome{Result: res}
	out.Intents, err = s.intentsFor(res, *emp)
	if err != nil {
		s.logger.Error("failed to dispatch intents", "workflow_id", req.WorkflowID, "task_id", req.TaskID, "error", err)
		return out, err
	}
	span.SetAttributes(attribute.Int("lifecycle.intents", len(out.Intents)))
	if len(out.Intents) == 0 {
		return out, nil
	}
	out.Recorded, err = s.recordDispatch(ctx, res, out.Intents, req.Actor)
	if err != nil {
		s.logger.Error("failed to record dispatched intents", "workflow_id", req.WorkflowID, "task_id", req.TaskID, "error", err)
		return out, err
	}
	return out, nil
}

func (s *LifecycleService) recordDispatch(ctx context.Context, res *engine.Result, intents []models.Intent, actor string) (*engine.Result, error) {
	ids := make([]string, len(intents))
	templates := make([]string, len(intents))
	for i, intent := range intents {
		ids[i] = intent.ID
		templates[i] = intent.TemplateID
	}
	rec, err := s.engine.Annotate(ctx, engine.AnnotateRequest{
		WorkflowID: res.Instance.Workflow.ID,
		TaskID:     res.TaskID,
		Actor:      actor,
		Note:       "dispatched " + strings.Join(templates, ", "),
		Metadata: map[string]string{
			KeyIntentStatus: IntentDispatched,
			KeyDispatched:   strings.Join(ids, ","),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("record dispatched intents: %w", err)
	}
	return rec, nil
}

func (s *LifecycleService) intentsFor(res *engine.Result, emp models.Employee) ([]models.Intent, error) {
	if len(res.Entries) == 0 {
		return nil, nil
	}
	st, err := res.Instance.CurrentState(res.TaskID)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(dispatch.Input{
		WorkflowID: res.Instance.Workflow.ID,
		Track:      res.Instance.Workflow.Track,
		TaskID:     res.TaskID,
		From:       res.From,
		To:         res.To,
		Seq:        res.Entries[0].Seq,
		Employee:   emp,
		Metadata:   st.Metadata,
	})
}

// Annotate records metadata on a task without changing its status.
func (s *LifecycleService) Annotate(ctx context.Context, req engine.AnnotateRequest) (res *engine.Result, err error) {
	ctx, span := s.start(ctx, "Annotate",
		attribute.String("workflow.id", req.WorkflowID),
		attribute.String("task.id", req.TaskID),
	)
	defer func() { finish(span, err) }()
	return s.engine.Annotate(ctx, req)
}

// Cancel cancels an active workflow.
func (s *LifecycleService) Cancel(ctx context.Context, workflowID, actor, reason string) (res *engine.Result, err error) {
	ctx, span := s.start(ctx, "Cancel", attribute.String("workflow.id", workflowID))
	defer func() { finish(span, err) }()
	return s.engine.Cancel(ctx, workflowID, actor, reason)
}

// Get returns a workflow instance.
func (s *LifecycleService) Get(ctx context.Context, workflowID string) (in *engine.Instance, err error) {
	ctx, span := s.start(ctx, "Get", attribute.String("workflow.id", workflowID))
	defer func() { finish(span, err) }()
	return s.engine.Get(ctx, workflowID)
}

// List returns workflows matching filter, newest first.
func (s *LifecycleService) List(ctx context.Context, filter repository.WorkflowFilter) (wfs []*models.Workflow, err error) {
	ctx, span := s.start(ctx, "List",
		attribute.String("employee.id", filter.EmployeeID),
		attribute.String("workflow.status", string(filter.Status)),
	)
	defer func() { finish(span, err) }()
	return s.engine.List(ctx, filter)
}

// History returns the audit entries of a workflow in occurrence order.
func (s *LifecycleService) History(ctx context.Context, workflowID string) (entries []models.AuditEntry, err error) {
	ctx, span := s.start(ctx, "History", attribute.String("workflow.id", workflowID))
	defer func() { finish(span, err) }()
	return s.engine.History(ctx, workflowID)
}

// Verify replays a workflow's history against its stored view.
func (s *LifecycleService) Verify(ctx context.Context, workflowID string) (in *engine.Instance, err error) {
	ctx, span := s.start(ctx, "Verify", attribute.String("workflow.id", workflowID))
	defer func() { finish(span, err) }()
	return s.engine.Verify(ctx, workflowID)
}

// ExecuteIntents runs intents in order. Every successful execution is
// annotated on the originating task; artifact references returned by the
// letter generator go into that annotation and into the payload of the
// intents that follow. The first failure stops execution and is reported on
// the originating task: as a transition to failed when that is still legal,
// as an annotation otherwise.
//
// The returned error is non-nil only when recording a result failed.
func (s *LifecycleService) ExecuteIntents(ctx context.Context, intents []models.Intent, actor string) (report *ExecutionReport, err error) {
	ctx, span := s.start(ctx, "ExecuteIntents",
		attribute.Int("lifecycle.intents", len(intents)),
	)
	defer func() { finish(span, err) }()

	report = &ExecutionReport{}
	refs := make(map[string]string)
	for i, intent := range intents {
		intent = withRefs(intent, refs)
		result := IntentResult{Intent: intent}

		ref, execErr := s.execute(ctx, intent)
		if execErr != nil {
			s.logger.Warn("intent failed",
				"intent_id", intent.ID,
				"kind", intent.Kind,
				"template_id", intent.TemplateID,
				"workflow_id", intent.WorkflowID,
				"error", execErr,
			)
			result.Error = execErr.Error()
			report.Failed = &result
			report.NotRun = append([]models.Intent(nil), intents[i+1:]...)
			return report, s.reportFailure(ctx, report, intent, actor, execErr)
		}

		meta := intentMetadata(intent, IntentExecuted)
		note := fmt.Sprintf("%s %s executed", intent.Kind, intent.TemplateID)
		if ref != "" {
			result.ArtifactRef = ref
			refs[intent.TemplateID+"_ref"] = ref
			refs[KeyArtifactRef] = ref
			meta[intent.TemplateID+"_ref"] = ref
			note = fmt.Sprintf("%s generated", intent.TemplateID)
		}
		report.Executed = append(report.Executed, result)
		if _, err := s.engine.Annotate(ctx, engine.AnnotateRequest{
			WorkflowID: intent.WorkflowID,
			TaskID:     intent.TaskID,
			Actor:      actor,
			Note:       note,
			Metadata:   meta,
		}); err != nil {
			report.NotRun = append([]models.Intent(nil), intents[i+1:]...)
			return report, fmt.Errorf("record execution of intent %s: %w", intent.ID, err)
		}
		s.logger.Debug("intent executed", "intent_id", intent.ID, "kind", intent.Kind, "template_id", intent.TemplateID)
	}
	return report, nil
}

func (s *LifecycleService) execute(ctx context.Context, intent models.Intent) (string, error) {
	switch intent.Kind {
	case models.IntentSendEmail:
		if s.executors.Email == nil {
			return "", fmt.Errorf("no email executor configured")
		}
		return "", s.executors.Email.SendEmail(ctx, intent)
	case models.IntentGenerateLetter:
		if s.executors.Letters == nil {
			return "", fmt.Errorf("no letter generator configured")
		}
		return s.executors.Letters.GenerateLetter(ctx, intent)
	case models.IntentExternalNotify:
		if s.executors.Notifier == nil {
			return "", fmt.Errorf("no notifier configured")
		}
		return "", s.executors.Notifier.Notify(ctx, intent)
	default:
		return "", fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}

func (s *LifecycleService) reportFailure(ctx context.Context, report *ExecutionReport, intent models.Intent, actor string, cause error) error {
	note := fmt.Sprintf("%s %s failed: %v", intent.Kind, intent.TemplateID, cause)
	meta := intentMetadata(intent, IntentFailed)
	meta[KeyIntentError] = cause.Error()

	in, err := s.engine.Get(ctx, intent.WorkflowID)
	if err != nil {
		return err
	}
	cur, err := in.CurrentState(intent.TaskID)
	if err != nil {
		return err
	}

	if in.Workflow.Status == models.WorkflowActive && slices.Contains(engine.NextStatuses(cur.Status), models.TaskFailed) {
		out, err := s.Transition(ctx, engine.TransitionRequest{
			WorkflowID: intent.WorkflowID,
			TaskID:     intent.TaskID,
			To:         models.TaskFailed,
			Actor:      actor,
			Note:       note,
			Metadata:   meta,
		})
		if err == nil || out != nil {
			report.Reported = out.Result
			report.FollowUp = out.Intents
			return err
		}
		// Another caller moved the task first; fall through to an annotation.
		if !errors.Is(err, engine.ErrIllegalTransition) && !errors.Is(err, engine.ErrWorkflowNotActive) {
			return err
		}
	}

	res, err := s.engine.Annotate(ctx, engine.AnnotateRequest{
		WorkflowID: intent.WorkflowID,
		TaskID:     intent.TaskID,
		Actor:      actor,
		Note:       note,
		Metadata:   meta,
	})
	if err != nil {
		return err
	}
	report.Reported = res
	return nil
}

func intentMetadata(intent models.Intent, status string) map[string]string {
	return map[string]string{
		KeyIntentStatus: status,
		KeyIntentID:     intent.ID,
		KeyIntentKind:   string(intent.Kind),
		KeyTemplateID:   intent.TemplateID,
	}
}

func (s *LifecycleService) employee(ctx context.Context, employeeID string) (*models.Employee, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, &engine.TransitionError{Kind: engine.ErrInvalidRequest, Msg: "employee id is required"}
	}
	emp, err := s.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		return nil, fmt.Errorf("%w: directory lookup %s: %w", engine.ErrPersistence, employeeID, err)
	}
	return emp, nil
}

// withRefs adds artifact references produced earlier in the run to the
// intent payload without overriding keys the dispatcher already set.
func withRefs(intent models.Intent, refs map[string]string) models.Intent {
	if len(refs) == 0 {
		return intent
	}
	payload := make(map[string]string, len(intent.Payload)+len(refs))
	for k, v := range intent.Payload {
		payload[k] = v
	}
	for k, v := range refs {
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
	intent.Payload = payload
	return intent
}
