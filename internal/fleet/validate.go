package fleet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct constraints and cross-references. Every problem is
// reported, joined under ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}
	problems = append(problems, c.crossCheck()...)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if", "required_unless":
		return fmt.Sprintf("%s is required for this server type", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

func (c *Config) crossCheck() []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	sharedBlocks := make(map[string]bool, len(c.SharedBlocks))
	for i, b := range c.SharedBlocks {
		if sharedBlocks[b.Name] {
			add("shared_blocks[%d]: duplicate name %q", i, b.Name)
		}
		sharedBlocks[b.Name] = true
		if b.Value != "" && b.FromFile != "" {
			add("shared_blocks[%d] %q: value and from_file are mutually exclusive", i, b.Name)
		}
	}
	sharedFolders := make(map[string]bool, len(c.SharedFolders))
	for i, f := range c.SharedFolders {
		if sharedFolders[f.Name] {
			add("shared_folders[%d]: duplicate name %q", i, f.Name)
		}
		sharedFolders[f.Name] = true
	}
	servers := make(map[string]bool, len(c.MCPServers))
	for i, s := range c.MCPServers {
		if servers[s.Name] {
			add("mcp_servers[%d]: duplicate name %q", i, s.Name)
		}
		servers[s.Name] = true
	}

	agents := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		where := fmt.Sprintf("agents[%d]", i)
		if a.Name != "" {
			where = fmt.Sprintf("agent %q", a.Name)
			if agents[a.Name] {
				add("agents[%d]: duplicate name %q", i, a.Name)
			}
			agents[a.Name] = true
		}
		if a.SystemPrompt.Value != "" && a.SystemPrompt.FromFile != "" {
			add("%s: system_prompt value and from_file are mutually exclusive", where)
		}

		blocks := map[string]bool{}
		for _, b := range a.MemoryBlocks {
			if blocks[b.Name] {
				add("%s: duplicate memory block %q", where, b.Name)
			}
			blocks[b.Name] = true
			if b.Value != "" && b.FromFile != "" {
				add("%s: memory block %q: value and from_file are mutually exclusive", where, b.Name)
			}
		}
		for _, name := range a.SharedBlocks {
			if !sharedBlocks[name] {
				add("%s: shared block %q is not declared in shared_blocks", where, name)
			}
			if blocks[name] {
				add("%s: memory block %q collides with a shared block reference", where, name)
			}
		}

		folders := map[string]bool{}
		for _, f := range a.Folders {
			if folders[f.Name] {
				add("%s: duplicate folder %q", where, f.Name)
			}
			folders[f.Name] = true
		}
		for _, name := range a.SharedFolders {
			if !sharedFolders[name] {
				add("%s: shared folder %q is not declared in shared_folders", where, name)
			}
		}

		archives := map[string]bool{}
		for _, ar := range a.Archives {
			if archives[ar.Name] {
				add("%s: duplicate archive %q", where, ar.Name)
			}
			archives[ar.Name] = true
		}

		tools := map[string]bool{}
		for _, t := range a.Tools {
			if tools[t] {
				add("%s: duplicate tool %q", where, t)
			}
			tools[t] = true
		}

		conversations := map[string]bool{}
		for _, conv := range a.Conversations {
			if conversations[conv.Summary] {
				add("%s: duplicate conversation %q", where, conv.Summary)
			}
			conversations[conv.Summary] = true
		}
	}
	return problems
}
