package fleet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/agentctl/internal/contenthash"
)

// ResolveContent replaces every from_file reference on blocks and system
// prompts with the file's content and checks that folder files exist. It is
// idempotent.
func (c *Config) ResolveContent() error {
	if c.resolved {
		return nil
	}
	var errs []error
	for i := range c.SharedBlocks {
		if err := c.resolveBlock(&c.SharedBlocks[i]); err != nil {
			errs = append(errs, fmt.Errorf("shared block %q: %w", c.SharedBlocks[i].Name, err))
		}
	}
	for _, f := range c.SharedFolders {
		if err := c.checkFiles(f); err != nil {
			errs = append(errs, fmt.Errorf("shared folder %q: %w", f.Name, err))
		}
	}
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.SystemPrompt.FromFile != "" {
			data, err := os.ReadFile(c.Path(a.SystemPrompt.FromFile))
			if err != nil {
				errs = append(errs, fmt.Errorf("agent %q system_prompt: %w", a.Name, err))
			} else {
				a.SystemPrompt.Value = string(data)
			}
		}
		for j := range a.MemoryBlocks {
			if err := c.resolveBlock(&a.MemoryBlocks[j]); err != nil {
				errs = append(errs, fmt.Errorf("agent %q memory block %q: %w", a.Name, a.MemoryBlocks[j].Name, err))
			}
		}
		for _, f := range a.Folders {
			if err := c.checkFiles(f); err != nil {
				errs = append(errs, fmt.Errorf("agent %q folder %q: %w", a.Name, f.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	c.resolved = true
	return nil
}

func (c *Config) resolveBlock(b *Block) error {
	if b.FromFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Path(b.FromFile))
	if err != nil {
		return err
	}
	b.Value = string(data)
	return nil
}

func (c *Config) checkFiles(f Folder) error {
	var errs []error
	for _, ref := range f.Files {
		info, err := os.Stat(c.Path(ref))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			errs = append(errs, fmt.Errorf("%s is a directory", ref))
		}
	}
	return errors.Join(errs...)
}

// ContentHash fingerprints the block's resolved value.
func (b Block) ContentHash() string {
	return contenthash.Of(b.Value)
}

// ToolSourcePath is where the source of a custom tool lives under the root.
func (c *Config) ToolSourcePath(name string) string {
	return filepath.Join(c.Root(), "tools", name+".py")
}

// ToolSource reads tools/<name>.py. ok is false when the tool has no source
// file, which marks it as not source-tracked.
func (c *Config) ToolSource(name string) (source string, ok bool, err error) {
	data, err := os.ReadFile(c.ToolSourcePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tool %q source: %w", name, err)
	}
	return string(data), true, nil
}

// ReadFile reads a document-relative file, typically a folder entry.
func (c *Config) ReadFile(ref string) ([]byte, error) {
	data, err := os.ReadFile(c.Path(ref))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}
