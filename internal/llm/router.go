package llm

import (
	"context"
	"fmt"

	"github.com/matsen/firstrecord/internal/document"
)

// Generator produces a raw completion for prompt with model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Request selects the provider and model for one judgment.
type Request struct {
	Provider ProviderID
	Model    string
	Prompt   string
}

// Judge turns a prompt into a structured judgment. Quota accounting is the
// caller's job.
type Judge interface {
	Judge(ctx context.Context, req Request) (*document.Judgment, error)
}

// Router dispatches judgments to the generator registered for a provider.
type Router struct {
	generators map[ProviderID]Generator
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{generators: make(map[ProviderID]Generator)}
}

// Register sets the generator for provider id.
func (r *Router) Register(id ProviderID, g Generator) *Router {
	r.generators[id] = g
	return r
}

// Resolve validates provider and model, returning the provider row and the
// effective model name.
func (r *Router) Resolve(id ProviderID, model string) (Provider, string, error) {
	p, err := Lookup(id)
	if err != nil {
		return Provider{}, "", err
	}
	if err := p.CheckModel(model); err != nil {
		return Provider{}, "", err
	}
	if _, ok := r.generators[id]; !ok {
		return Provider{}, "", fmt.Errorf("%w: %s is not configured", ErrUnknownProvider, id)
	}
	return p, p.Model(model), nil
}

// Judge implements Judge.
func (r *Router) Judge(ctx context.Context, req Request) (*document.Judgment, error) {
	p, model, err := r.Resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	raw, err := r.generators[p.ID].Generate(ctx, model, req.Prompt)
	if err != nil {
		return nil, err
	}
	j, err := ParseJudgment(raw)
	if err != nil {
		return nil, err
	}
	j.Provider = string(p.ID)
	j.Model = model
	return j, nil
}
