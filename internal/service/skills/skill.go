// Package skills answers skill requests.
package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fish-assistant/internal/models"
)

// FallbackSkill handles requests for skills that are not registered.
const FallbackSkill = "unknown"

// Skill produces the response for one request.
type Skill interface {
	Name() string
	Handle(ctx context.Context, req models.SkillRequest) (models.SkillResponse, error)
}

// Func adapts a function to a Skill.
type Func struct {
	name string
	fn   func(ctx context.Context, req models.SkillRequest) (string, error)
}

// NewFunc creates a Skill named name that speaks fn's result.
func NewFunc(name string, fn func(ctx context.Context, req models.SkillRequest) (string, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Skill.
func (f *Func) Name() string { return f.name }

// Handle implements Skill.
func (f *Func) Handle(ctx context.Context, req models.SkillRequest) (models.SkillResponse, error) {
	say, err := f.fn(ctx, req)
	if err != nil {
		return models.SkillResponse{}, err
	}
	return models.SkillResponse{Skill: f.name, Utterance: say}, nil
}

// Registry holds the skills by name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates a Registry holding skills.
func NewRegistry(skills ...Skill) *Registry {
	r := &Registry{skills: make(map[string]Skill)}
	for _, s := range skills {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any skill with the same name.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name()] = s
}

// Lookup returns the named skill, or the fallback skill when there is none.
func (r *Registry) Lookup(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.skills[name]; ok {
		return s, nil
	}
	if s, ok := r.skills[FallbackSkill]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no skill %q and no fallback registered", name)
}

// Names returns the registered skill names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for n := range r.skills {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
