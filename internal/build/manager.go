package build

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/agentgen/internal/hooks"
	"github.com/soyeahso/agentgen/internal/logging"
)

// Run describes a build as it starts.
type Run struct {
	ID        string
	Target    string
	UseCase   string
	TaskCount int
	StartedAt time.Time
}

// Recorder persists build runs. Recording failures are logged and never
// fail the build.
type Recorder interface {
	RecordStart(ctx context.Context, run Run) error
	RecordFinish(ctx context.Context, runID string, state State, manifest []string, buildErr error) error
}

// Summary is the result of a successful build.
type Summary struct {
	RunID  string   `json:"run_id"`
	Target string   `json:"target"`
	Output string   `json:"output"`
	Tree   []string `json:"tree"`
	State  State    `json:"state"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks emits build lifecycle events on h.
func WithHooks(h *hooks.Manager) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithHistory records every build on r.
func WithHistory(r Recorder) Option {
	return func(m *Manager) { m.history = r }
}

// WithModel sets the model written into agent definitions.
func WithModel(model string) Option {
	return func(m *Manager) { m.model = model }
}

// Manager runs build plans under one output root. Builds of different
// targets may run concurrently; builds of the same target are serialized.
type Manager struct {
	root    string
	hooks   *hooks.Manager
	history Recorder
	model   string
	log     *logging.Logger
	newID   func() string

	mu      sync.Mutex
	targets map[string]*sync.Mutex
}

// NewManager creates a Manager writing under root.
func NewManager(root string, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		root:    root,
		log:     log.Sub("build"),
		newID:   uuid.NewString,
		targets: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Root returns the output root.
func (m *Manager) Root() string { return m.root }

func (m *Manager) targetLock(target string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.targets[target]
	if !ok {
		l = &sync.Mutex{}
		m.targets[target] = l
	}
	return l
}

// Build executes p. Every task runs in its own goroutine and the first
// failure cancels the rest. Output already written by other tasks is left
// in place; rerunning the same plan is safe.
func (m *Manager) Build(ctx context.Context, p *Plan) (*Summary, error) {
	if p == nil {
		return nil, &BuildTaskError{Name: "plan", Err: errors.New("plan is nil")}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	lock := m.targetLock(p.SelectedTarget)
	lock.Lock()
	defer lock.Unlock()

	run := Run{
		ID:        m.newID(),
		Target:    p.SelectedTarget,
		UseCase:   p.UseCase,
		TaskCount: len(p.BuildTasks),
		StartedAt: time.Now().UTC(),
	}
	log := m.log.With("run_id", run.ID)
	targetRoot := filepath.Join(m.root, p.SelectedTarget)

	sm := newMachine(func(from, to State) {
		log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("build state changed")
	})

	if m.history != nil {
		if err := m.history.RecordStart(ctx, run); err != nil {
			log.Warn().Err(err).Msg("recording build start")
		}
	}
	m.hooks.Emit(ctx, hooks.EventBuildStart, map[string]any{
		"run_id": run.ID,
		"target": run.Target,
		"tasks":  run.TaskCount,
	})
	log.Info().Str("target", run.Target).Int("tasks", run.TaskCount).Msg("build started")

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range p.BuildTasks {
		g.Go(func() error {
			sm.start()
			m.hooks.Emit(gctx, hooks.EventTaskStart, taskData(run.ID, task, nil))

			written, err := runLeaf(gctx, targetRoot, p, task, m.model)
			if err != nil {
				bte := &BuildTaskError{Name: task.Name, Kind: task.Kind, Err: err}
				m.hooks.Emit(ctx, hooks.EventTaskFailed, taskData(run.ID, task, err))
				log.Error().Err(err).Str("task", task.String()).Msg("build task failed")
				return bte
			}
			m.hooks.Emit(gctx, hooks.EventTaskDone, taskData(run.ID, task, nil))
			log.Debug().Str("task", task.String()).Int("written", written).Msg("build task done")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.fail(ctx, sm, run, err)
		return nil, err
	}

	tree, err := Merge(targetRoot)
	if err != nil {
		err = &BuildTaskError{Name: "merge", Kind: "merge", Err: err}
		m.fail(ctx, sm, run, err)
		return nil, err
	}
	if err := sm.to(StateSucceeded); err != nil {
		return nil, err
	}

	if m.history != nil {
		if err := m.history.RecordFinish(ctx, run.ID, StateSucceeded, tree, nil); err != nil {
			log.Warn().Err(err).Msg("recording build finish")
		}
	}
	m.hooks.Emit(ctx, hooks.EventBuildSucceeded, map[string]any{
		"run_id": run.ID,
		"target": run.Target,
		"files":  len(tree),
	})
	log.Info().Int("files", len(tree)).Msg("build succeeded")

	return &Summary{
		RunID:  run.ID,
		Target: run.Target,
		Output: targetRoot,
		Tree:   tree,
		State:  sm.current(),
	}, nil
}

func (m *Manager) fail(ctx context.Context, sm *machine, run Run, err error) {
	// A failure before any leaf started still passes through Running.
	sm.start()
	_ = sm.to(StateFailed)

	if m.history != nil {
		if rerr := m.history.RecordFinish(context.WithoutCancel(ctx), run.ID, StateFailed, nil, err); rerr != nil {
			m.log.Warn().Err(rerr).Str("run_id", run.ID).Msg("recording build failure")
		}
	}
	m.hooks.Emit(ctx, hooks.EventBuildFailed, map[string]any{
		"run_id": run.ID,
		"target": run.Target,
		"error":  err.Error(),
	})
}

func taskData(runID string, t Task, err error) map[string]any {
	data := map[string]any{
		"run_id": runID,
		"kind":   string(t.Kind),
		"name":   t.Name,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}
