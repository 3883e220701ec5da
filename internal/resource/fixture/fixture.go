// Package fixture is a minimal in-memory implementation of
// resource.Service, loadable from a directory of YAML definition files the
// way the teacher's external workspace loader reads a directory tree of
// workflow/task/action YAML. It exists to drive the coordinator and
// executor end-to-end in tests, not as a production resource service.
package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/resource"
)

// Store is an in-memory, thread-safe resource.Service.
type Store struct {
	mu            sync.RWMutex
	workflows     map[string]*model.WorkflowDefinition
	tasks         map[string]*model.TaskDefinition
	actions       map[string]*model.ActionDefinition
	modelProfiles map[string]*resource.ModelProfile
	promptSpecs   map[string]*resource.PromptSpec
	runs          map[string]string // runID -> workflowID, for inspection/tests
}

// New builds an empty Store. Use the Put* methods, or Load, to populate it.
func New() *Store {
	return &Store{
		workflows:     make(map[string]*model.WorkflowDefinition),
		tasks:         make(map[string]*model.TaskDefinition),
		actions:       make(map[string]*model.ActionDefinition),
		modelProfiles: make(map[string]*resource.ModelProfile),
		promptSpecs:   make(map[string]*resource.PromptSpec),
		runs:          make(map[string]string),
	}
}

func key(id, version string) string {
	if version == "" {
		version = "latest"
	}
	return id + "@" + version
}

func (s *Store) PutWorkflow(w *model.WorkflowDefinition) { s.mu.Lock(); defer s.mu.Unlock(); s.workflows[key(w.ID, w.Version)] = w }
func (s *Store) PutTask(t *model.TaskDefinition)          { s.mu.Lock(); defer s.mu.Unlock(); s.tasks[key(t.ID, t.Version)] = t }
func (s *Store) PutAction(a *model.ActionDefinition)      { s.mu.Lock(); defer s.mu.Unlock(); s.actions[key(a.ID, a.Version)] = a }
func (s *Store) PutModelProfile(m *resource.ModelProfile) { s.mu.Lock(); defer s.mu.Unlock(); s.modelProfiles[m.ID] = m }
func (s *Store) PutPromptSpec(p *resource.PromptSpec)     { s.mu.Lock(); defer s.mu.Unlock(); s.promptSpecs[p.ID] = p }

func (s *Store) GetTask(_ context.Context, id, version string) (*model.TaskDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tasks[key(id, version)]; ok {
		return t, nil
	}
	return nil, &resource.NotFoundError{Kind: "task", ID: id}
}

func (s *Store) GetAction(_ context.Context, id, version string) (*model.ActionDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.actions[key(id, version)]; ok {
		return a, nil
	}
	return nil, &resource.NotFoundError{Kind: "action", ID: id}
}

func (s *Store) GetModelProfile(_ context.Context, id string) (*resource.ModelProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.modelProfiles[id]; ok {
		return m, nil
	}
	return nil, &resource.NotFoundError{Kind: "modelProfile", ID: id}
}

func (s *Store) GetPromptSpec(_ context.Context, id string) (*resource.PromptSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.promptSpecs[id]; ok {
		return p, nil
	}
	return nil, &resource.NotFoundError{Kind: "promptSpec", ID: id}
}

func (s *Store) GetWorkflow(_ context.Context, id, version string) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.workflows[key(id, version)]; ok {
		return w, nil
	}
	return nil, &resource.NotFoundError{Kind: "workflow", ID: id}
}

func (s *Store) CreateWorkflowRun(_ context.Context, workflowID string, _ map[string]interface{}, _, _, _ string) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.runs[id] = workflowID
	s.mu.Unlock()
	return id, nil
}

// fixtureFile mirrors the YAML shape a definitions directory carries: one
// file may declare any subset of workflows/tasks/actions/etc.
type fixtureFile struct {
	Workflows     []model.WorkflowDefinition `yaml:"workflows"`
	Tasks         []model.TaskDefinition     `yaml:"tasks"`
	Actions       []model.ActionDefinition   `yaml:"actions"`
	ModelProfiles []resource.ModelProfile    `yaml:"modelProfiles"`
	PromptSpecs   []resource.PromptSpec      `yaml:"promptSpecs"`
}

// Load reads every *.yaml/*.yml file under dir and populates a new Store.
func Load(dir string) (*Store, error) {
	s := New()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var f fixtureFile
		if err := yaml.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for i := range f.Workflows {
			w := f.Workflows[i]
			for ti := range w.Transitions {
				w.Transitions[ti].SetDeclOrder(ti)
			}
			s.PutWorkflow(&w)
		}
		for i := range f.Tasks {
			s.PutTask(&f.Tasks[i])
		}
		for i := range f.Actions {
			s.PutAction(&f.Actions[i])
		}
		for i := range f.ModelProfiles {
			s.PutModelProfile(&f.ModelProfiles[i])
		}
		for i := range f.PromptSpecs {
			s.PutPromptSpec(&f.PromptSpecs[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ resource.Service = (*Store)(nil)
