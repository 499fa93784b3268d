package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/hooks"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/logging"
	"github.com/soyeahso/agentgen/internal/parser"
	"github.com/soyeahso/agentgen/internal/pipeline"
	"github.com/soyeahso/agentgen/internal/planner"
	"github.com/soyeahso/agentgen/internal/prompt"
	"github.com/soyeahso/agentgen/internal/store"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type mockPlanner struct{ mock.Mock }

func (m *mockPlanner) Plan(ctx context.Context, req planner.Request) (*build.Plan, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*build.Plan)
	return p, args.Error(1)
}

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) Build(ctx context.Context, p *build.Plan) (*build.Summary, error) {
	args := m.Called(ctx, p)
	s, _ := args.Get(0).(*build.Summary)
	return s, args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*pipeline.Result)
	return r, args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) Get(ctx context.Context, id string) (*store.BuildRun, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*store.BuildRun)
	return r, args.Error(1)
}

func (m *mockHistory) List(ctx context.Context, limit int) ([]store.BuildRun, error) {
	args := m.Called(ctx, limit)
	r, _ := args.Get(0).([]store.BuildRun)
	return r, args.Error(1)
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Server.Host = "127.0.0.1"
	return cfg
}

func testServer(t *testing.T, cfg config.Config, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	t.Setenv(TokenEnv, "")
	srv := New(cfg, testLog(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, resp).Status)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeBody[ErrorResponse](t, resp).Detail, "/nonexistent")
}

func TestPlanEndpoint(t *testing.T) {
	mp := &mockPlanner{}
	plan := &build.Plan{
		SelectedTarget: "crewai",
		UseCase:        "triage support tickets",
		ProjectTree:    []string{"build/crewai/agents/triage_support_tickets"},
		BuildTasks:     []build.Task{{Kind: build.KindAgentDefinition, Name: "triage_support_tickets"}},
	}
	mp.On("Plan", mock.Anything, mock.MatchedBy(func(r planner.Request) bool {
		return r.UseCase == "triage support tickets" && r.PreferredTarget == "crewai" && r.Catalog["slack"].Gateway == "slack-gw"
	})).Return(plan, nil).Once()

	_, ts := testServer(t, testConfig(), WithPlanner(mp))

	resp := postJSON(t, ts.URL+"/plan", `{
		"use_case": "triage support tickets",
		"preferred_target": "crewai",
		"component_catalog": {"slack": {"gateway": "slack-gw"}}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "crewai", got["selected_target"])
	assert.Equal(t, "triage support tickets", got["use_case"])
	assert.Len(t, got["build_tasks"], 1)
	assert.Len(t, got["project_tree"], 1)
	mp.AssertExpectations(t)
}

func TestPlanEndpointBadRequests(t *testing.T) {
	mp := &mockPlanner{}
	_, ts := testServer(t, testConfig(), WithPlanner(mp))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"use_case":`},
		{"missing use case", `{}`},
		{"blank use case", `{"use_case": "   "}`},
		{"catalog of wrong type", `{"use_case": "x", "component_catalog": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/plan", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, resp).Detail)
		})
	}
	mp.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything)
}

func TestPlanEndpointErrors(t *testing.T) {
	rateLimited := &llm.ProviderError{Provider: "watsonx", Kind: llm.KindRateLimit, Code: 429, Message: "slow down"}
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"planning error", &planner.PlanningError{Message: "response is not a plan"}, http.StatusBadGateway},
		{"rate limited", &planner.PlanningError{Message: "completion provider failed", Err: rateLimited}, http.StatusTooManyRequests},
		{"provider auth", &planner.PlanningError{Message: "completion provider failed", Err: &llm.ProviderError{Provider: "openai", Kind: llm.KindAuth}}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockPlanner{}
			mp.On("Plan", mock.Anything, mock.Anything).Return(nil, tt.err)
			_, ts := testServer(t, testConfig(), WithPlanner(mp))

			resp := postJSON(t, ts.URL+"/plan", `{"use_case": "summarize news"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.err.Error(), decodeBody[ErrorResponse](t, resp).Detail)
		})
	}
}

func TestUnconfiguredOperations(t *testing.T) {
	_, ts := testServer(t, testConfig())

	for _, path := range []string{"/plan", "/build", "/generate"} {
		resp := postJSON(t, ts.URL+path, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestBuildEndpoint(t *testing.T) {
	mb := &mockBuilder{}
	mb.On("Build", mock.Anything, mock.MatchedBy(func(p *build.Plan) bool {
		return p.SelectedTarget == "langgraph" && len(p.BuildTasks) == 2
	})).Return(&build.Summary{
		RunID:  "run-1",
		Target: "langgraph",
		Output: "/tmp/build/langgraph",
		Tree:   []string{"agents/a/agent.yaml", "tool_sources/t/pyproject.toml"},
		State:  build.StateSucceeded,
	}, nil).Once()

	_, ts := testServer(t, testConfig(), WithBuilder(mb))

	resp := postJSON(t, ts.URL+"/build", `{
		"selected_target": "langgraph",
		"project_tree": [],
		"build_tasks": [
			{"kind": "python_tool", "name": "t"},
			{"kind": "agent_definition", "name": "a"}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[BuildResponse](t, resp)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "langgraph", got.Summary.Target)
	assert.Equal(t, "run-1", got.Summary.RunID)
	assert.Equal(t, []string{"agents/a/agent.yaml", "tool_sources/t/pyproject.toml"}, got.Summary.Tree)
	mb.AssertExpectations(t)
}

func TestBuildEndpointAcceptsFrameworkAlias(t *testing.T) {
	mb := &mockBuilder{}
	mb.On("Build", mock.Anything, mock.MatchedBy(func(p *build.Plan) bool {
		return p.SelectedTarget == "beeai"
	})).Return(&build.Summary{RunID: "r", Target: "beeai", Tree: []string{}}, nil)

	_, ts := testServer(t, testConfig(), WithBuilder(mb))

	resp := postJSON(t, ts.URL+"/build", `{"selected_framework": "beeai", "build_tasks": [{"kind": "agent_definition", "name": "a"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mb.AssertExpectations(t)
}

func TestBuildEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `[`, nil, http.StatusBadRequest},
		{"missing target", `{"build_tasks": []}`, nil, http.StatusBadRequest},
		{"missing tasks", `{"selected_target": "crewai"}`, nil, http.StatusBadRequest},
		{
			"task failure",
			`{"selected_target": "crewai", "build_tasks": [{"kind": "python_tool", "name": "x"}]}`,
			&build.BuildTaskError{Name: "x", Kind: build.KindPythonTool, Err: errors.New("disk full")},
			http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := &mockBuilder{}
			if tt.err != nil {
				mb.On("Build", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			_, ts := testServer(t, testConfig(), WithBuilder(mb))

			resp := postJSON(t, ts.URL+"/build", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			detail := decodeBody[ErrorResponse](t, resp).Detail
			if tt.err != nil {
				assert.Contains(t, detail, "disk full")
			}
			if tt.err == nil {
				mb.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestBuildEndpointWithManager(t *testing.T) {
	root := t.TempDir()
	mgr := build.NewManager(root, testLog())
	_, ts := testServer(t, testConfig(), WithBuilder(mgr))

	resp := postJSON(t, ts.URL+"/build", `{
		"selected_target": "crewai",
		"build_tasks": [
			{"kind": "python_tool", "name": "fetch"},
			{"kind": "mcp_tool", "name": "search", "gateway": "search-gw"}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[BuildResponse](t, resp)
	assert.Equal(t, "crewai", got.Summary.Target)
	assert.NotEmpty(t, got.Summary.RunID)
	assert.Contains(t, got.Summary.Tree, "mcp_servers/search/reference.yaml")
	assert.Contains(t, got.Summary.Tree, "tool_sources/fetch/pyproject.toml")

	resp = postJSON(t, ts.URL+"/build", `{"selected_target": "crewai", "build_tasks": [{"kind": "python_tool", "name": "../escape"}]}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGenerateEndpoint(t *testing.T) {
	mg := &mockGenerator{}
	mg.On("Generate", mock.Anything, pipeline.Request{
		Requirement:   "Research the topic then write a summary",
		Target:        "crewai",
		Provider:      "watsonx",
		Model:         config.DefaultModel,
		Temperature:   0.2,
		MaxTokens:     config.DefaultMaxTokens,
		WrapAsService: true,
	}).Return(&pipeline.Result{
		Artifact: &generator.Artifact{Target: generator.CrewAI, Extension: "py", Content: []byte("print('hi')\n")},
		Diagram:  "graph TD\n",
	}, nil).Once()

	_, ts := testServer(t, testConfig(), WithGenerator(mg))

	resp := postJSON(t, ts.URL+"/generate", `{
		"prompt": "Research the topic then write a summary",
		"target": "crewai",
		"temperature": 0.2,
		"wrap_as_service": true
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[GenerateResponse](t, resp)
	assert.Equal(t, "print('hi')\n", got.Code)
	assert.Equal(t, "py", got.Extension)
	assert.Equal(t, "graph TD\n", got.Diagram)
	assert.Nil(t, got.Usage)
	mg.AssertExpectations(t)
}

func TestGenerateEndpointWithPipeline(t *testing.T) {
	_, ts := testServer(t, testConfig(), WithGenerator(pipeline.New(nil, testLog())))

	resp := postJSON(t, ts.URL+"/generate", `{"prompt": "Research the market. Then write a report.", "target": "watsonx_orchestrate"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[GenerateResponse](t, resp)
	assert.Equal(t, "yaml", got.Extension)
	assert.True(t, strings.HasPrefix(got.Code, "# Auto-generated watsonx Orchestrate definitions"))
	assert.True(t, strings.HasPrefix(got.Diagram, "graph TD"))

	resp = postJSON(t, ts.URL+"/generate", `{"prompt": "   ", "target": "crewai"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/generate", `{"prompt": "Research the market.", "target": "cobol"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeBody[ErrorResponse](t, resp).Detail, "target")
}

func TestGenerateEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{"prompt": 1}`, nil, http.StatusBadRequest},
		{"missing prompt", `{"target": "crewai"}`, nil, http.StatusBadRequest},
		{"missing target", `{"prompt": "write code"}`, nil, http.StatusBadRequest},
		{"parse error", `{"prompt": "", "target": "crewai"}`, &parser.ParseError{Message: "requirement text is empty"}, http.StatusUnprocessableEntity},
		{"configuration error", `{"prompt": "x", "target": ""}`, &prompt.ConfigurationError{Field: "target", Message: "target syntax is required"}, http.StatusUnprocessableEntity},
		{"generation error", `{"prompt": "x", "target": "react"}`, &generator.GenerationError{Target: "react", Entity: "task t1", Message: "no agent"}, http.StatusUnprocessableEntity},
		{"provider rate limit", `{"prompt": "x", "target": "react", "use_llm": true}`, &llm.ProviderError{Provider: "openai", Kind: llm.KindRateLimit}, http.StatusTooManyRequests},
		{"provider unavailable", `{"prompt": "x", "target": "react", "use_llm": true}`, &llm.ProviderError{Provider: "openai", Kind: llm.KindUnavailable}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mg := &mockGenerator{}
			if tt.err != nil {
				mg.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			_, ts := testServer(t, testConfig(), WithGenerator(mg))

			resp := postJSON(t, ts.URL+"/generate", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, resp).Detail)
		})
	}
}

func TestBuildHistoryEndpoints(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []store.BuildRun{
		{ID: "b", Target: "crewai", State: build.StateSucceeded, TaskCount: 2, Manifest: []string{"x"}, StartedAt: started},
		{ID: "a", Target: "beeai", State: build.StateFailed, TaskCount: 1, Error: "boom", StartedAt: started.Add(-time.Hour)},
	}
	mh := &mockHistory{}
	mh.On("List", mock.Anything, store.DefaultListLimit).Return(runs, nil)
	mh.On("List", mock.Anything, 1).Return(runs[:1], nil)
	mh.On("Get", mock.Anything, "b").Return(&runs[0], nil)
	mh.On("Get", mock.Anything, "missing").Return(nil, store.ErrNotFound)

	_, ts := testServer(t, testConfig(), WithHistory(mh))

	get := func(path string) *http.Response {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get("/builds")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[map[string][]store.BuildRun](t, resp)
	require.Len(t, list["builds"], 2)
	assert.Equal(t, "b", list["builds"][0].ID)

	resp = get("/builds?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[map[string][]store.BuildRun](t, resp)["builds"], 1)

	resp = get("/builds?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get("/builds/b")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decodeBody[store.BuildRun](t, resp)
	assert.Equal(t, "crewai", run.Target)
	assert.Equal(t, build.StateSucceeded, run.State)

	resp = get("/builds/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mh.AssertExpectations(t)
}

func TestBuildHistoryDisabled(t *testing.T) {
	_, ts := testServer(t, testConfig())

	for _, path := range []string{"/builds", "/builds/abc"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Token = "test-token-123"
	_, ts := testServer(t, cfg)

	do := func(path, auth string) int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, do("/health", ""), "health stays public")
	assert.Equal(t, http.StatusUnauthorized, do("/builds", ""))
	assert.Equal(t, http.StatusUnauthorized, do("/builds", "Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, do("/builds", "Basic test-token-123"))
	assert.Equal(t, http.StatusNotFound, do("/builds", "Bearer test-token-123"))
	assert.Equal(t, http.StatusNotFound, do("/builds?token=test-token-123", ""))
}

func TestBearerAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Token = "secret"
	_, ts := testServer(t, cfg)

	for range authRateMaxFails {
		resp, err := http.Get(ts.URL + "/builds")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/builds", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	assert.Equal(t, "from-env", ResolveToken(config.ServerConfig{}))
	assert.Equal(t, "from-config", ResolveToken(config.ServerConfig{Token: "from-config"}))
}

func dialEvents(t *testing.T, ts *httptest.Server, srv *Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, FrameTypeHello, hello.Type)
	assert.NotEmpty(t, hello.Payload["conn_id"])

	require.Eventually(t, func() bool { return srv.clients.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestEventStream(t *testing.T) {
	hm := hooks.NewManager(testLog())
	srv, ts := testServer(t, testConfig(), WithHooks(hm))
	conn := dialEvents(t, ts, srv)

	hm.Emit(context.Background(), hooks.EventBuildStart, map[string]any{"run_id": "r1", "target": "crewai"})
	hm.Emit(context.Background(), hooks.EventBuildSucceeded, map[string]any{"run_id": "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Frame
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, FrameTypeEvent, first.Type)
	assert.Equal(t, hooks.EventBuildStart, first.Event)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "crewai", first.Payload["target"])
	assert.Equal(t, hooks.EventBuildSucceeded, second.Event)
	assert.Equal(t, int64(2), second.Seq)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	assert.Eventually(t, func() bool { return srv.clients.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamDuringBuild(t *testing.T) {
	hm := hooks.NewManager(testLog())
	mgr := build.NewManager(t.TempDir(), testLog(), build.WithHooks(hm))
	srv, ts := testServer(t, testConfig(), WithHooks(hm), WithBuilder(mgr))
	conn := dialEvents(t, ts, srv)

	resp := postJSON(t, ts.URL+"/build", `{"selected_target": "react", "build_tasks": [{"kind": "agent_definition", "name": "helper"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		events = append(events, f.Event)
		if f.Event == hooks.EventBuildSucceeded {
			break
		}
	}
	assert.Equal(t, []string{hooks.EventBuildStart, hooks.EventTaskStart, hooks.EventTaskDone, hooks.EventBuildSucceeded}, events)
}

func TestEventStreamRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Token = "tok"
	_, ts := testServer(t, cfg)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=tok", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://ok.example"}
	_, ts := testServer(t, cfg)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	_, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
	assert.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://ok.example"}})
	require.NoError(t, err)
	conn.Close()
}

type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingHooks) handle(_ context.Context, p hooks.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p.Event)
	return nil
}

func (r *recordingHooks) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestStartAndShutdown(t *testing.T) {
	hm := hooks.NewManager(testLog())
	rec := &recordingHooks{}
	hm.On(hooks.EventServerStart, "test", rec.handle)
	hm.On(hooks.EventServerStop, "test", rec.handle)

	cfg := testConfig()
	cfg.Server.Port = 0
	t.Setenv(TokenEnv, "")
	srv := New(cfg, testLog(), WithHooks(hm))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, srv.Uptime(), time.Duration(0))

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	health := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Uptime)
	assert.Zero(t, health.Subscribers)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{hooks.EventServerStart, hooks.EventServerStop}, rec.seen())
}

func TestStartListenError(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = -1
	srv := New(cfg, testLog())

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"parse", &parser.ParseError{Message: "empty"}, http.StatusUnprocessableEntity},
		{"configuration", &prompt.ConfigurationError{Field: "provider"}, http.StatusUnprocessableEntity},
		{"generation", &generator.GenerationError{Target: "crewai"}, http.StatusUnprocessableEntity},
		{"wrapped generation", fmt.Errorf("ctx: %w", &generator.GenerationError{Target: "crewai"}), http.StatusUnprocessableEntity},
		{"planning", &planner.PlanningError{Message: "bad"}, http.StatusBadGateway},
		{"planning rate limit", &planner.PlanningError{Err: &llm.ProviderError{Kind: llm.KindRateLimit}}, http.StatusTooManyRequests},
		{"build task", &build.BuildTaskError{Name: "x"}, http.StatusInternalServerError},
		{"planning timeout", &planner.PlanningError{Err: &llm.ProviderError{Kind: llm.KindTimeout}}, http.StatusGatewayTimeout},
		{"provider timeout", &llm.ProviderError{Kind: llm.KindTimeout}, http.StatusGatewayTimeout},
		{"wrapped provider timeout", fmt.Errorf("call: %w", &llm.ProviderError{Kind: llm.KindTimeout, Err: context.DeadlineExceeded}), http.StatusGatewayTimeout},
		{"provider rate limit", &llm.ProviderError{Kind: llm.KindRateLimit}, http.StatusTooManyRequests},
		{"provider unavailable", &llm.ProviderError{Kind: llm.KindUnavailable}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRequestBodyLimit(t *testing.T) {
	mp := &mockPlanner{}
	_, ts := testServer(t, testConfig(), WithPlanner(mp))

	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	body := `{"use_case": "` + string(big) + `"}`
	resp := postJSON(t, ts.URL+"/plan", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	mp.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything)
}
