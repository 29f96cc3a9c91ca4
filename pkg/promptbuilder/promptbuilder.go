// Package promptbuilder assembles the system prompt each AI role sends to
// the LLM: a role template with {background_info} and {playbook_list}
// placeholders substituted from the shared background Prompts. Role and
// background text is stored in the Prompt table so an operator can tune
// it without a redeploy; DefaultPrompts seeds the table on first boot.
package promptbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/deepsoc/ent/prompt"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
)

// Role prompt names, as stored in the Prompt table.
const (
	NameCaptainRole  = "role_soc_captain"
	NameManagerRole  = "role_soc_manager"
	NameOperatorRole = "role_soc_operator"
	NameExpertRole   = "role_soc_expert"

	NameBackgroundSecurity = "background_security"
	NameBackgroundPlaybook = "background_soar_playbooks"
)

// Builder assembles role system prompts from Prompt rows.
type Builder struct {
	prompts *services.PromptService
}

// NewBuilder creates a Builder over the given PromptService.
func NewBuilder(prompts *services.PromptService) *Builder {
	return &Builder{prompts: prompts}
}

// Build loads the named role template and substitutes the background
// placeholders, falling back to DefaultPrompts for any name not yet
// present in the database.
func (b *Builder) Build(ctx context.Context, roleName string) (string, error) {
	template, err := b.load(ctx, roleName)
	if err != nil {
		return "", fmt.Errorf("load role prompt %q: %w", roleName, err)
	}

	background, err := b.load(ctx, NameBackgroundSecurity)
	if err != nil {
		return "", fmt.Errorf("load background prompt: %w", err)
	}
	playbooks, err := b.load(ctx, NameBackgroundPlaybook)
	if err != nil {
		return "", fmt.Errorf("load playbook prompt: %w", err)
	}

	out := strings.ReplaceAll(template, "{background_info}", background)
	out = strings.ReplaceAll(out, "{playbook_list}", playbooks)
	return out, nil
}

func (b *Builder) load(ctx context.Context, name string) (string, error) {
	p, err := b.prompts.ByName(ctx, name)
	if err != nil {
		if err == services.ErrNotFound {
			if def, ok := DefaultPrompts[name]; ok {
				return def, nil
			}
			return "", fmt.Errorf("no prompt or default registered for %q", name)
		}
		return "", err
	}
	return p.Content, nil
}

// SeedDefaults inserts any of DefaultPrompts not already present, the
// `init` CLI subcommand's prompt bootstrap step.
func SeedDefaults(ctx context.Context, prompts *services.PromptService) error {
	for name, content := range DefaultPrompts {
		existing, err := prompts.ByName(ctx, name)
		if err != nil && err != services.ErrNotFound {
			return fmt.Errorf("check prompt %q: %w", name, err)
		}
		if existing != nil {
			continue
		}
		category := prompt.CategoryRole
		if strings.HasPrefix(name, "background") {
			category = prompt.CategoryBackground
		}
		if _, err := prompts.Upsert(ctx, name, category, content); err != nil {
			return fmt.Errorf("seed prompt %q: %w", name, err)
		}
	}
	return nil
}
