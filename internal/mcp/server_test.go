package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/config"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	server    *Server
	instances *services.InstanceService
	rules     *services.RuleService
	instance  *models.WorkflowInstance
	userID    int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	user := &models.User{Email: "owner@example.com", FullName: "Pat Owner", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))
	project := &models.Project{Name: "Acme Rollout", OwnerID: user.ID}
	require.NoError(t, store.CreateProject(ctx, project))

	workflows := services.NewWorkflowService(store, store, nil)
	instances := services.NewInstanceService(store, config.EngineConfig{StrictStages: true, CheckFromStage: true, TransitionRetries: 3}, nil, nil, nil)
	t.Cleanup(instances.Wait)
	rules := services.NewRuleService(store, nil, nil)

	workflow, err := workflows.Create(ctx, models.WorkflowCreate{
		Name:   "Sales Pipeline",
		Type:   models.WorkflowTypeSales,
		Stages: models.Map{"lead": models.Object(models.Map{}), "closed_won": models.Object(models.Map{})},
	})
	require.NoError(t, err)
	inst, err := instances.Create(ctx, models.InstanceCreate{WorkflowID: workflow.ID, ProjectID: project.ID, CurrentStage: "lead"})
	require.NoError(t, err)

	return &env{
		server:    NewServer(workflows, instances, rules),
		instances: instances,
		rules:     rules,
		instance:  inst,
		userID:    user.ID,
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestTransitionStage(t *testing.T) {
	e := newEnv(t)

	res, err := e.server.handleTransition(context.Background(), callRequest("transition_stage", map[string]any{
		"instance_id":     float64(e.instance.ID),
		"from_stage":      "lead",
		"to_stage":        "closed_won",
		"transition_data": map[string]any{"amount": float64(5000)},
		"triggered_by":    float64(e.userID),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var inst models.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &inst))
	assert.Equal(t, "closed_won", inst.CurrentStage)
	require.Len(t, inst.History, 1)
	assert.Equal(t, "lead", inst.History[0].FromStage)
	if assert.NotNil(t, inst.History[0].TriggeredBy) {
		assert.Equal(t, e.userID, *inst.History[0].TriggeredBy)
	}
	assert.True(t, inst.StageData.Equal(models.Map{"amount": models.Number(5000)}))
}

func TestTransitionStage_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.server.handleTransition(ctx, callRequest("transition_stage", map[string]any{"to_stage": "closed_won"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "instance_id")

	res, err = e.server.handleTransition(ctx, callRequest("transition_stage", map[string]any{
		"instance_id": float64(e.instance.ID),
		"to_stage":    "unknown",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = e.server.handleTransition(ctx, callRequest("transition_stage", map[string]any{
		"instance_id":     float64(e.instance.ID),
		"to_stage":        "closed_won",
		"transition_data": "not an object",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "transition_data")
}

func TestGetWorkflowInstance(t *testing.T) {
	e := newEnv(t)

	res, err := e.server.handleGetInstance(context.Background(), callRequest("get_workflow_instance", map[string]any{
		"instance_id": float64(e.instance.ID),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var inst models.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &inst))
	assert.Equal(t, e.instance.ID, inst.ID)
	require.NotNil(t, inst.Workflow)
	assert.Equal(t, "Sales Pipeline", inst.Workflow.Name)

	res, err = e.server.handleGetInstance(context.Background(), callRequest("get_workflow_instance", map[string]any{
		"instance_id": float64(999),
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Workflow instance not found")
}

func TestListWorkflows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.server.handleListWorkflows(ctx, callRequest("list_workflows", map[string]any{"type": "sales"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var workflows []models.Workflow
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &workflows))
	require.Len(t, workflows, 1)
	assert.Equal(t, "Sales Pipeline", workflows[0].Name)

	res, err = e.server.handleListWorkflows(ctx, callRequest("list_workflows", map[string]any{"type": "finance"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestEvaluateRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.rules.Create(ctx, models.RuleCreate{
		Name:       "Escalate",
		RuleType:   models.RuleTypeNotification,
		Conditions: models.Map{"status": models.String("open"), "priority": models.String("high")},
		Actions:    models.Map{"notify": models.String("manager")},
	})
	require.NoError(t, err)

	res, err := e.server.handleEvaluateRules(ctx, callRequest("evaluate_rules", map[string]any{
		"context": map[string]any{"status": "open", "priority": "high"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var result models.RuleEvaluation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	require.Equal(t, 1, result.TotalTriggered)
	assert.Equal(t, "Escalate", result.TriggeredRules[0].RuleName)

	res, err = e.server.handleEvaluateRules(ctx, callRequest("evaluate_rules", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_RegistersTools(t *testing.T) {
	e := newEnv(t)
	resp := e.server.GetMCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"list_workflows", "get_workflow_instance", "transition_stage", "evaluate_rules"} {
		assert.Contains(t, string(body), `"`+name+`"`)
	}
}

func TestTransitionStage_AuthenticatedActorWins(t *testing.T) {
	e := newEnv(t)
	ctx := auth.WithUser(context.Background(), &models.User{ID: e.userID, Email: "owner@example.com", IsActive: true})

	res, err := e.server.handleTransition(ctx, callRequest("transition_stage", map[string]any{
		"instance_id":  float64(e.instance.ID),
		"to_stage":     "closed_won",
		"triggered_by": float64(4242),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var inst models.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &inst))
	require.Len(t, inst.History, 1)
	if assert.NotNil(t, inst.History[0].TriggeredBy) {
		assert.Equal(t, e.userID, *inst.History[0].TriggeredBy)
	}
}

func TestTransitionStage_RequiresWriteScope(t *testing.T) {
	e := newEnv(t)
	ctx := auth.WithScopes(context.Background(), []string{auth.ScopeWorkflowRead})

	res, err := e.server.handleTransition(ctx, callRequest("transition_stage", map[string]any{
		"instance_id": float64(e.instance.ID),
		"to_stage":    "closed_won",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), auth.ScopeWorkflowWrite)

	got, err := e.instances.Get(context.Background(), e.instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead", got.CurrentStage)
}

func TestMountHTTPHandlers_AppliesMiddleware(t *testing.T) {
	e := newEnv(t)
	mux := http.NewServeMux()
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	MountHTTPHandlers(mux, e.server.GetMCPServer(), deny)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"transition_stage","arguments":{"instance_id":1,"to_stage":"closed_won","triggered_by":42}}}`
	for _, path := range []string{"/mcp", "/mcp/message?sessionId=x", "/mcp/sse"} {
		method := http.MethodPost
		if path == "/mcp/sse" {
			method = http.MethodGet
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	got, err := e.instances.Get(context.Background(), e.instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead", got.CurrentStage)
	assert.Empty(t, got.History)
}
