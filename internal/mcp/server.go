package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	mcpServer *server.MCPServer
	workflows *services.WorkflowService
	instances *services.InstanceService
	rules     *services.RuleService
}

func NewServer(workflows *services.WorkflowService, instances *services.InstanceService, rules *services.RuleService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ProjectFlow Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		workflows: workflows,
		instances: instances,
		rules:     rules,
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
			"list_workflows",
			mcp.WithDescription("List active workflow definitions, optionally of one type"),
			mcp.WithString("type",
				mcp.Description("Workflow type filter"),
				mcp.Enum("sales", "support", "development", "marketing", "operations"),
			),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow_instance",
			mcp.WithDescription("Get a workflow instance with its history, workflow and project"),
			mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("The ID of the workflow instance")),
		),
		s.handleGetInstance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transition_stage",
			mcp.WithDescription("Move a workflow instance to another stage and record the transition"),
			mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("The ID of the workflow instance")),
			mcp.WithString("to_stage", mcp.Required(), mcp.Description("The target stage")),
			mcp.WithString("from_stage", mcp.Description("Expected current stage; rejected if it differs")),
			mcp.WithObject("transition_data", mcp.Description("Data merged into the instance's stage data")),
			mcp.WithString("notes", mcp.Description("Notes included in the transition notification")),
			mcp.WithNumber("triggered_by", mcp.Description("ID of the user making the transition")),
		),
		s.handleTransition,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"evaluate_rules",
			mcp.WithDescription("Evaluate active business rules against a context and return the actions of those that match"),
			mcp.WithObject("context", mcp.Required(), mcp.Description("Key/value context tested against rule conditions")),
		),
		s.handleEvaluateRules,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var typ *models.WorkflowType
	if raw := request.GetString("type", ""); raw != "" {
		t, err := services.ParseWorkflowType(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		typ = &t
	}

	workflows, err := s.workflows.List(ctx, typ, true)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}
	return jsonResult(workflows)
}

func (s *Server) handleGetInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireFloat("instance_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: instance_id"), nil
	}

	inst, err := s.instances.Get(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow instance: %v", err)), nil
	}
	return jsonResult(inst)
}

func (s *Server) handleTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !auth.HasScope(ctx, auth.ScopeWorkflowWrite) {
		return mcp.NewToolResultError("Missing scope: " + auth.ScopeWorkflowWrite), nil
	}
	id, err := request.RequireFloat("instance_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: instance_id"), nil
	}
	toStage, err := request.RequireString("to_stage")
	if err != nil || toStage == "" {
		return mcp.NewToolResultError("Missing required parameter: to_stage"), nil
	}

	args := request.GetArguments()
	data, err := models.MapFromInterface(args["transition_data"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid transition_data: %v", err)), nil
	}

	req := models.StageTransition{
		FromStage:      request.GetString("from_stage", ""),
		ToStage:        toStage,
		TransitionData: data,
		Notes:          request.GetString("notes", ""),
	}
	// only honored when the request carries no authenticated user
	if by, ok := args["triggered_by"].(float64); ok {
		actor := int64(by)
		req.TriggeredBy = &actor
	}

	inst, err := s.instances.Transition(ctx, int64(id), req, auth.ActorID(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transition: %v", err)), nil
	}
	return jsonResult(inst)
}

func (s *Server) handleEvaluateRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := request.GetArguments()["context"]
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: context"), nil
	}
	evalCtx, err := models.MapFromInterface(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid context: %v", err)), nil
	}

	triggered, err := s.rules.Evaluate(ctx, evalCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to evaluate rules: %v", err)), nil
	}
	return jsonResult(models.NewRuleEvaluation(triggered))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves the SSE transport under /mcp. Each middleware
// wraps every endpoint, outermost first.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer, middleware ...func(http.Handler) http.Handler) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	wrap := func(h http.Handler) http.Handler {
		for i := len(middleware) - 1; i >= 0; i-- {
			h = middleware[i](h)
		}
		return h
	}

	mux.Handle("/mcp", wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})))
	mux.Handle("/mcp/sse", wrap(sseServer))
	mux.Handle("/mcp/message", wrap(sseServer))
}
