package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/prompt"
	"github.com/google/uuid"
)

// PromptService looks up the named templates and background snippets used
// to assemble the five role prompts.
type PromptService struct {
	client *ent.Client
}

// NewPromptService creates a new PromptService.
func NewPromptService(client *ent.Client) *PromptService {
	return &PromptService{client: client}
}

// ByName retrieves a single Prompt by its unique name, e.g. "captain_role".
func (s *PromptService) ByName(ctx context.Context, name string) (*ent.Prompt, error) {
	p, err := s.client.Prompt.Query().Where(prompt.NameEQ(name)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get prompt %q: %w", name, err)
	}
	return p, nil
}

// ByCategory lists every Prompt in a category ("role" or "background"),
// used to assemble the background context shared across all five roles.
func (s *PromptService) ByCategory(ctx context.Context, category prompt.Category) ([]*ent.Prompt, error) {
	prompts, err := s.client.Prompt.Query().
		Where(prompt.CategoryEQ(category)).
		Order(ent.Asc(prompt.FieldName)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prompts by category: %w", err)
	}
	return prompts, nil
}

// Upsert creates or replaces a Prompt's content by name, the admin prompt
// management endpoint's write path.
func (s *PromptService) Upsert(ctx context.Context, name string, category prompt.Category, content string) (*ent.Prompt, error) {
	existing, err := s.client.Prompt.Query().Where(prompt.NameEQ(name)).Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return nil, fmt.Errorf("query existing prompt: %w", err)
	}

	if existing != nil {
		p, err := existing.Update().SetContent(content).Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("update prompt: %w", err)
		}
		return p, nil
	}

	p, err := s.client.Prompt.Create().
		SetID(uuid.New().String()).
		SetName(name).
		SetCategory(category).
		SetContent(content).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	return p, nil
}
