package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func chain(n int) ([]Agent, []Task, []Edge) {
	agents := []Agent{{ID: "agent_a", Role: "A"}}
	var tasks []Task
	var edges []Edge
	for i := 1; i <= n; i++ {
		tasks = append(tasks, Task{ID: fmt.Sprintf("task_%d", i), Goal: "step", AgentID: "agent_a"})
		if i > 1 {
			edges = append(edges, Edge{From: fmt.Sprintf("task_%d", i-1), To: fmt.Sprintf("task_%d", i)})
		}
	}
	return agents, tasks, edges
}

func TestNewValid(t *testing.T) {
	agents := []Agent{{ID: "agent_a", Role: "A"}, {ID: "agent_b", Role: "B", Tools: []string{"search"}}}
	tasks := []Task{
		{ID: "task_1", Goal: "research market data", Outputs: []string{"output_1"}, AgentID: "agent_a"},
		{ID: "task_2", Goal: "write a summary", Inputs: []string{"output_1"}, Outputs: []string{"output_2"}, AgentID: "agent_b"},
	}
	edges := []Edge{{From: "task_1", To: "task_2"}}

	wf, err := New(agents, tasks, edges)
	require.NoError(t, err)
	assert.Len(t, wf.Agents, 2)
	assert.Len(t, wf.Tasks, 2)
	assert.Equal(t, edges, wf.Edges)

	// New copies its inputs.
	agents[1].Tools[0] = "mutated"
	assert.Equal(t, "search", wf.Agents[1].Tools[0])
}

func TestNewEmpty(t *testing.T) {
	wf, err := New(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, wf.Agents)
	assert.Empty(t, wf.Tasks)
	assert.Empty(t, wf.Edges)
}

func TestValidateRules(t *testing.T) {
	a := Agent{ID: "agent_a", Role: "A"}
	t1 := Task{ID: "task_1", AgentID: "agent_a"}
	t2 := Task{ID: "task_2", AgentID: "agent_a"}
	t3 := Task{ID: "task_3", AgentID: "agent_a"}

	tests := []struct {
		name   string
		agents []Agent
		tasks  []Task
		edges  []Edge
		rule   string
		entity string
	}{
		{"empty agent id", []Agent{{Role: "A"}}, nil, nil, RuleEmptyID, "agent"},
		{"duplicate agent", []Agent{a, a}, nil, nil, RuleDuplicateID, "agent_a"},
		{"empty role", []Agent{{ID: "agent_x"}}, nil, nil, RuleEmptyRole, "agent_x"},
		{"duplicate tool", []Agent{{ID: "agent_x", Role: "X", Tools: []string{"s", "s"}}}, nil, nil, RuleDuplicateTool, "agent_x"},
		{"empty task id", []Agent{a}, []Task{{AgentID: "agent_a"}}, nil, RuleEmptyID, "task"},
		{"duplicate task", []Agent{a}, []Task{t1, t1}, nil, RuleDuplicateID, "task_1"},
		{"dangling agent", []Agent{a}, []Task{{ID: "task_1", AgentID: "nobody"}}, nil, RuleDanglingAgent, "task_1"},
		{"dangling edge", []Agent{a}, []Task{t1}, []Edge{{From: "task_1", To: "task_9"}}, RuleDanglingEdge, "task_1->task_9"},
		{"self loop", []Agent{a}, []Task{t1}, []Edge{{From: "task_1", To: "task_1"}}, RuleSelfLoop, "task_1->task_1"},
		{"duplicate edge", []Agent{a}, []Task{t1, t2}, []Edge{{From: "task_1", To: "task_2"}, {From: "task_1", To: "task_2"}}, RuleDuplicateEdge, "task_1->task_2"},
		{"cycle", []Agent{a}, []Task{t1, t2, t3}, []Edge{{From: "task_1", To: "task_2"}, {From: "task_2", To: "task_3"}, {From: "task_3", To: "task_1"}}, RuleCycle, "task_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.agents, tt.tasks, tt.edges)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.rule, ve.Rule)
			assert.Equal(t, tt.entity, ve.Entity)
			assert.Contains(t, err.Error(), tt.rule)
		})
	}
}

func TestAccessors(t *testing.T) {
	agents, tasks, edges := chain(3)
	wf, err := New(agents, tasks, edges)
	require.NoError(t, err)

	a, ok := wf.Agent("agent_a")
	require.True(t, ok)
	assert.Equal(t, "A", a.Role)
	_, ok = wf.Agent("missing")
	assert.False(t, ok)

	task, ok := wf.Task("task_2")
	require.True(t, ok)
	assert.Equal(t, "agent_a", task.AgentID)
	_, ok = wf.Task("missing")
	assert.False(t, ok)

	assert.Len(t, wf.TasksFor("agent_a"), 3)
	assert.Equal(t, []string{"task_1"}, wf.Predecessors("task_2"))
	assert.Equal(t, []string{"task_3"}, wf.Successors("task_2"))
	assert.Empty(t, wf.Predecessors("task_1"))

	roots := wf.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "task_1", roots[0].ID)
}

func TestTopologicalOrderTieBreak(t *testing.T) {
	a := Agent{ID: "agent_a", Role: "A"}
	tasks := []Task{
		{ID: "t_c", AgentID: "agent_a"},
		{ID: "t_a", AgentID: "agent_a"},
		{ID: "t_b", AgentID: "agent_a"},
	}
	// t_b must precede t_c; t_a is free and was inserted before t_b.
	wf, err := New([]Agent{a}, tasks, []Edge{{From: "t_b", To: "t_c"}})
	require.NoError(t, err)

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	var ids []string
	for _, task := range order {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"t_a", "t_b", "t_c"}, ids)
}

func TestJSONShape(t *testing.T) {
	agents, tasks, edges := chain(2)
	wf, err := New(agents, tasks, edges)
	require.NoError(t, err)

	data, err := json.Marshal(wf)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "agents")
	assert.Contains(t, raw, "tasks")
	edge := raw["edges"].([]any)[0].(map[string]any)
	assert.Equal(t, "task_1", edge["source"])
	assert.Equal(t, "task_2", edge["target"])

	var back Workflow
	require.NoError(t, json.Unmarshal(data, &back))
	require.NoError(t, back.Validate())
	assert.Equal(t, wf.Edges, back.Edges)
}

// randomDAG draws a workflow whose edges always point from a lower to a
// higher insertion index.
func randomDAG(t *rapid.T) ([]Agent, []Task, []Edge) {
	n := rapid.IntRange(2, 12).Draw(t, "tasks")
	agents := []Agent{{ID: "agent_a", Role: "A"}}
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprintf("task_%d", i+1), AgentID: "agent_a"}
	}
	var edges []Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
				edges = append(edges, Edge{From: tasks[i].ID, To: tasks[j].ID})
			}
		}
	}
	return agents, tasks, edges
}

func TestProperty_RandomDAGValidates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agents, tasks, edges := randomDAG(t)
		if _, err := New(agents, tasks, edges); err != nil {
			t.Fatalf("valid DAG rejected: %v", err)
		}
	})
}

func TestProperty_InjectedCycleRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agents, tasks, edges := randomDAG(t)
		if len(edges) == 0 {
			edges = append(edges, Edge{From: tasks[0].ID, To: tasks[1].ID})
		}
		e := rapid.SampledFrom(edges).Draw(t, "reversed")
		edges = append(edges, Edge{From: e.To, To: e.From})

		_, err := New(agents, tasks, edges)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Rule != RuleCycle {
			t.Fatalf("expected cycle error, got %v", err)
		}
	})
}

func TestProperty_TopologicalOrderRespectsEdges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agents, tasks, edges := randomDAG(t)
		wf, err := New(agents, tasks, edges)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		order, err := wf.TopologicalOrder()
		if err != nil {
			t.Fatalf("TopologicalOrder: %v", err)
		}
		if len(order) != len(tasks) {
			t.Fatalf("order has %d tasks, want %d", len(order), len(tasks))
		}
		pos := make(map[string]int, len(order))
		for i, task := range order {
			pos[task.ID] = i
		}
		for _, e := range wf.Edges {
			if pos[e.From] >= pos[e.To] {
				t.Fatalf("edge %s out of order", e)
			}
		}
	})
}
