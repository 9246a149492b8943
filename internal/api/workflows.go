package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/internal/services"
	"hr-lifecycle/backend/pkg/models"
)

// ActorHeader supplies the actor when the request body does not.
const ActorHeader = "X-Actor"

// Server holds the dependencies for the API server.
type Server struct {
	Service *services.LifecycleService
}

// NewServer creates a new Server.
func NewServer(service *services.LifecycleService) *Server {
	return &Server{Service: service}
}

// RegisterHandlers mounts all routes on g, normally the /api/v1 group.
func RegisterHandlers(g *echo.Group, h *Handler, s *Server) {
	g.GET("/health", h.HandleHealth)
	g.GET("/ready", h.HandleReady)

	g.GET("/tracks", s.ListTracks)
	g.GET("/tracks/:track", s.GetTrack)

	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.StartWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.GET("/workflows/:id/history", s.GetHistory)
	g.GET("/workflows/:id/verify", s.VerifyWorkflow)
	g.POST("/workflows/:id/cancel", s.CancelWorkflow)
	g.POST("/workflows/:id/tasks/:task/transitions", s.ApplyTransition)
	g.POST("/workflows/:id/tasks/:task/annotations", s.Annotate)

	g.POST("/intents/execute", s.ExecuteIntents)
}

// WorkflowView is the JSON representation of a workflow instance.
type WorkflowView struct {
	ID          string                `json:"id"`
	EmployeeID  string                `json:"employee_id"`
	Track       models.Track          `json:"track"`
	Status      models.WorkflowStatus `json:"status"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Version     int64                 `json:"version"`
	Tasks       []engine.TaskView     `json:"tasks"`
	Blocked     []string              `json:"blocked"`
	Ready       []string              `json:"ready"`
}

func viewOf(in *engine.Instance) WorkflowView {
	wf := in.Workflow
	return WorkflowView{
		ID:          wf.ID,
		EmployeeID:  wf.EmployeeID,
		Track:       wf.Track,
		Status:      wf.Status,
		StartedAt:   wf.StartedAt,
		CompletedAt: wf.CompletedAt,
		Version:     wf.Version,
		Tasks:       in.Views(),
		Blocked:     nonNil(in.Blocked()),
		Ready:       nonNil(in.Ready()),
	}
}

// TransitionResponse describes a committed transition.
type TransitionResponse struct {
	Workflow          WorkflowView              `json:"workflow"`
	TaskID            string                    `json:"task_id,omitempty"`
	From              models.TaskStatus         `json:"from,omitempty"`
	To                models.TaskStatus         `json:"to,omitempty"`
	Entries           []models.AuditEntry       `json:"entries"`
	Unblocked         []string                  `json:"unblocked"`
	WorkflowCompleted bool                      `json:"workflow_completed"`
	Intents           []models.Intent           `json:"intents"`
	Execution         *services.ExecutionReport `json:"execution,omitempty"`
	// DispatchError is set when the transition committed but its intents
	// could not be derived or journaled. Retrying the transition is wrong.
	DispatchError *ProblemDetails `json:"dispatch_error,omitempty"`
}

func responseOf(res *engine.Result, intents []models.Intent) TransitionResponse {
	if intents == nil {
		intents = []models.Intent{}
	}
	return TransitionResponse{
		Workflow:          viewOf(res.Instance),
		TaskID:            res.TaskID,
		From:              res.From,
		To:                res.To,
		Entries:           res.Entries,
		Unblocked:         nonNil(res.Unblocked),
		WorkflowCompleted: res.WorkflowCompleted,
		Intents:           intents,
	}
}

// ListTracks returns every track definition
// (GET /api/v1/tracks)
func (s *Server) ListTracks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Service.Engine().Catalog().Definitions())
}

// GetTrack returns the task definitions of one track
// (GET /api/v1/tracks/:track)
func (s *Server) GetTrack(c echo.Context) error {
	track := models.Track(c.Param("track"))
	tasks, err := s.Service.Engine().Catalog().GetTrack(track)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, catalog.TrackDefinition{Track: track, Tasks: tasks})
}

// ListWorkflows returns workflows, newest first
// (GET /api/v1/workflows?employee_id=&track=&status=&limit=)
func (s *Server) ListWorkflows(c echo.Context) error {
	filter := repository.WorkflowFilter{
		EmployeeID: c.QueryParam("employee_id"),
		Track:      models.Track(c.QueryParam("track")),
		Status:     models.WorkflowStatus(c.QueryParam("status")),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	workflows, err := s.Service.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// StartWorkflow creates a workflow for an employee
// (POST /api/v1/workflows)
func (s *Server) StartWorkflow(c echo.Context) error {
	var req services.StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	in, err := s.Service.StartWorkflow(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, c.Path()+"/"+in.Workflow.ID)
	return c.JSON(http.StatusCreated, viewOf(in))
}

// GetWorkflow returns one workflow with effective task statuses
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	in, err := s.Service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(in))
}

// GetHistory returns the audit entries of a workflow in order
// (GET /api/v1/workflows/:id/history)
func (s *Server) GetHistory(c echo.Context) error {
	entries, err := s.Service.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// VerifyResponse reports whether history replay reproduces the stored view.
type VerifyResponse struct {
	WorkflowID string `json:"workflow_id"`
	Consistent bool   `json:"consistent"`
	Detail     string `json:"detail,omitempty"`
}

// VerifyWorkflow replays the history of a workflow
// (GET /api/v1/workflows/:id/verify)
func (s *Server) VerifyWorkflow(c echo.Context) error {
	id := c.Param("id")
	_, err := s.Service.Verify(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, VerifyResponse{WorkflowID: id, Consistent: true})
	case errors.Is(err, engine.ErrReplayMismatch):
		return c.JSON(http.StatusOK, VerifyResponse{WorkflowID: id, Consistent: false, Detail: err.Error()})
	default:
		return err
	}
}

type cancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// CancelWorkflow cancels an active workflow
// (POST /api/v1/workflows/:id/cancel)
func (s *Server) CancelWorkflow(c echo.Context) error {
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	res, err := s.Service.Cancel(c.Request().Context(), c.Param("id"), actorOf(c, req.Actor), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, responseOf(res, nil))
}

type transitionRequest struct {
	To       models.TaskStatus `json:"to"`
	Actor    string            `json:"actor"`
	Override bool              `json:"override"`
	Note     string            `json:"note"`
	Metadata map[string]string `json:"metadata"`
	// Execute runs the produced intents before responding.
	Execute bool `json:"execute"`
}

// ApplyTransition moves a task to a new status
// (POST /api/v1/workflows/:id/tasks/:task/transitions)
func (s *Server) ApplyTransition(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if !req.To.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown target status: "+string(req.To))
	}
	ctx := c.Request().Context()
	actor := actorOf(c, req.Actor)

	out, err := s.Service.Transition(ctx, engine.TransitionRequest{
		WorkflowID: c.Param("id"),
		TaskID:     c.Param("task"),
		To:         req.To,
		Actor:      actor,
		Override:   req.Override,
		Note:       req.Note,
		Metadata:   req.Metadata,
	})
	if out == nil {
		return err
	}
	resp := responseOf(out.Result, out.Intents)
	resp.Workflow = viewOf(out.Latest())
	if err != nil {
		problem := problemFor(err)
		problem.Instance = c.Request().URL.Path
		resp.DispatchError = &problem
		return c.JSON(http.StatusOK, resp)
	}
	if req.Execute && len(out.Intents) > 0 {
		report, err := s.Service.ExecuteIntents(ctx, out.Intents, actor)
		if err != nil {
			return err
		}
		resp.Execution = report
		if in, err := s.Service.Get(ctx, out.Result.Instance.Workflow.ID); err == nil {
			resp.Workflow = viewOf(in)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type annotateRequest struct {
	Actor    string            `json:"actor"`
	Note     string            `json:"note"`
	Metadata map[string]string `json:"metadata"`
}

// Annotate records metadata on a task without changing its status
// (POST /api/v1/workflows/:id/tasks/:task/annotations)
func (s *Server) Annotate(c echo.Context) error {
	var req annotateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	res, err := s.Service.Annotate(c.Request().Context(), engine.AnnotateRequest{
		WorkflowID: c.Param("id"),
		TaskID:     c.Param("task"),
		Actor:      actorOf(c, req.Actor),
		Note:       req.Note,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, responseOf(res, nil))
}

type executeRequest struct {
	Actor   string          `json:"actor"`
	Intents []models.Intent `json:"intents"`
}

// ExecuteIntents runs previously returned intents through the collaborators
// (POST /api/v1/intents/execute)
func (s *Server) ExecuteIntents(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	actor := actorOf(c, req.Actor)
	if actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor is required")
	}
	report, err := s.Service.ExecuteIntents(c.Request().Context(), req.Intents, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func actorOf(c echo.Context, fromBody string) string {
	if actor := strings.TrimSpace(fromBody); actor != "" {
		return actor
	}
	return strings.TrimSpace(c.Request().Header.Get(ActorHeader))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
