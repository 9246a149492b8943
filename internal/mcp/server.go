package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hr-lifecycle/backend/internal/auth"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/services"
	"hr-lifecycle/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	lifecycle *services.LifecycleService
}

func NewServer(lifecycle *services.LifecycleService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"HR Lifecycle",
			version,
			server.WithToolCapabilities(true),
		),
		lifecycle: lifecycle,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_workflow",
			mcp.WithDescription("Start an onboarding or offboarding workflow for an employee"),
			mcp.WithString("employee_id", mcp.Required(), mcp.Description("Directory id of the employee")),
			mcp.WithString("track", mcp.Description("Track name; defaults to the onboarding track of the employee type")),
		),
		s.handleStartWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"apply_transition",
			mcp.WithDescription("Move a workflow task to a new status and return the resulting intents"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("The ID of the task")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Target status: in_progress, completed, failed or skipped")),
			mcp.WithString("actor", mcp.Required(), mcp.Description("Who performs the transition")),
			mcp.WithString("note", mcp.Description("Free-text note recorded in the audit log")),
			mcp.WithBoolean("override", mcp.Description("Required to skip a task")),
		),
		s.handleApplyTransition,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get a workflow with the effective status of each task"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_history",
			mcp.WithDescription("List the audit entries of a workflow in order"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleWorkflowHistory,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"cancel_workflow",
			mcp.WithDescription("Cancel an active workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("actor", mcp.Required(), mcp.Description("Who cancels the workflow")),
			mcp.WithString("reason", mcp.Description("Why the workflow is cancelled")),
		),
		s.handleCancelWorkflow,
	)
}

// workflowResult is the tool view of a workflow.
type workflowResult struct {
	Workflow *models.Workflow  `json:"workflow"`
	Tasks    []engine.TaskView `json:"tasks"`
	Blocked  []string          `json:"blocked,omitempty"`
	Ready    []string          `json:"ready,omitempty"`
}

func resultOf(in *engine.Instance) workflowResult {
	return workflowResult{Workflow: in.Workflow, Tasks: in.Views(), Blocked: in.Blocked(), Ready: in.Ready()}
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, mcp.NewToolResultError("Invalid arguments type")
	}
	return args, nil
}

func requiredString(args map[string]interface{}, name string) (string, *mcp.CallToolResult) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", mcp.NewToolResultError("Missing required parameter: " + name)
	}
	return v, nil
}

func reason(err error) string {
	if errors.Is(err, auth.ErrForbidden) {
		return "forbidden"
	}
	return engine.Reason(err)
}

func failure(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s (%s): %v", action, reason(err), err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleStartWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := arguments(request)
	if bad != nil {
		return bad, nil
	}
	employeeID, bad := requiredString(args, "employee_id")
	if bad != nil {
		return bad, nil
	}
	track, _ := args["track"].(string)

	in, err := s.lifecycle.StartWorkflow(ctx, services.StartRequest{EmployeeID: employeeID, Track: models.Track(track)})
	if err != nil {
		return failure("start workflow", err), nil
	}
	return jsonResult(resultOf(in))
}

func (s *Server) handleApplyTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := arguments(request)
	if bad != nil {
		return bad, nil
	}
	req := engine.TransitionRequest{}
	for name, dst := range map[string]*string{"workflow_id": &req.WorkflowID, "task_id": &req.TaskID, "actor": &req.Actor} {
		if *dst, bad = requiredString(args, name); bad != nil {
			return bad, nil
		}
	}
	to, bad := requiredString(args, "to")
	if bad != nil {
		return bad, nil
	}
	req.To = models.TaskStatus(to)
	if !req.To.IsValid() {
		return mcp.NewToolResultError("Unknown target status: " + to), nil
	}
	req.Note, _ = args["note"].(string)
	req.Override, _ = args["override"].(bool)

	out, err := s.lifecycle.Transition(ctx, req)
	if out == nil {
		return failure("apply transition", err), nil
	}
	// A non-nil outcome is committed even when dispatch failed afterwards.
	var dispatchErr string
	if err != nil {
		dispatchErr = fmt.Sprintf("(%s) %v", reason(err), err)
	}
	return jsonResult(struct {
		workflowResult
		Entries           []models.AuditEntry `json:"entries"`
		Unblocked         []string            `json:"unblocked,omitempty"`
		WorkflowCompleted bool                `json:"workflow_completed"`
		Intents           []models.Intent     `json:"intents"`
		DispatchError     string              `json:"dispatch_error,omitempty"`
	}{
		workflowResult:    resultOf(out.Latest()),
		Entries:           out.Result.Entries,
		Unblocked:         out.Result.Unblocked,
		WorkflowCompleted: out.Result.WorkflowCompleted,
		Intents:           out.Intents,
		DispatchError:     dispatchErr,
	})
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := arguments(request)
	if bad != nil {
		return bad, nil
	}
	id, bad := requiredString(args, "workflow_id")
	if bad != nil {
		return bad, nil
	}

	in, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return failure("get workflow", err), nil
	}
	return jsonResult(resultOf(in))
}

func (s *Server) handleWorkflowHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := arguments(request)
	if bad != nil {
		return bad, nil
	}
	id, bad := requiredString(args, "workflow_id")
	if bad != nil {
		return bad, nil
	}

	entries, err := s.lifecycle.History(ctx, id)
	if err != nil {
		return failure("load history", err), nil
	}
	return jsonResult(entries)
}

func (s *Server) handleCancelWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := arguments(request)
	if bad != nil {
		return bad, nil
	}
	id, bad := requiredString(args, "workflow_id")
	if bad != nil {
		return bad, nil
	}
	actor, bad := requiredString(args, "actor")
	if bad != nil {
		return bad, nil
	}
	reason, _ := args["reason"].(string)

	res, err := s.lifecycle.Cancel(ctx, id, actor, reason)
	if err != nil {
		return failure("cancel workflow", err), nil
	}
	return jsonResult(resultOf(res.Instance))
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
