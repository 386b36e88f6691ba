package fleet

import (
	"maps"
	"slices"
)

// NameSet is an unordered set of resource names.
type NameSet map[string]struct{}

func (s NameSet) Add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s NameSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// DesiredNames is the fleet-wide set of resource names a run may bind to.
// Registries load only platform resources whose name is listed here.
type DesiredNames struct {
	Blocks        NameSet
	SharedBlocks  NameSet
	Folders       NameSet
	SharedFolders NameSet
	Archives      NameSet
}

// CollectDesiredNames unions every name the fleet declares or references.
func CollectDesiredNames(c *Config) DesiredNames {
	d := DesiredNames{
		Blocks:        NameSet{},
		SharedBlocks:  NameSet{},
		Folders:       NameSet{},
		SharedFolders: NameSet{},
		Archives:      NameSet{},
	}
	if c == nil {
		return d
	}
	for _, b := range c.SharedBlocks {
		d.Blocks.Add(b.Name)
		d.SharedBlocks.Add(b.Name)
	}
	for _, f := range c.SharedFolders {
		d.Folders.Add(f.Name)
		d.SharedFolders.Add(f.Name)
	}
	for _, a := range c.Agents {
		for _, b := range a.MemoryBlocks {
			d.Blocks.Add(b.Name)
		}
		d.Blocks.Add(a.SharedBlocks...)
		d.SharedBlocks.Add(a.SharedBlocks...)
		for _, f := range a.Folders {
			d.Folders.Add(f.Name)
		}
		d.Folders.Add(a.SharedFolders...)
		d.SharedFolders.Add(a.SharedFolders...)
		for _, ar := range a.Archives {
			d.Archives.Add(ar.Name)
		}
	}
	return d
}

// Usage maps a shared resource name to the agents that declare it.
type Usage map[string][]string

// SharedBlockUsage lists, per shared block, the agents referencing it.
func (c *Config) SharedBlockUsage() Usage {
	u := Usage{}
	for _, a := range c.Agents {
		for _, name := range a.SharedBlocks {
			u[name] = append(u[name], a.Name)
		}
	}
	return u
}

// SharedFolderUsage lists, per shared folder, the agents referencing it.
func (c *Config) SharedFolderUsage() Usage {
	u := Usage{}
	for _, a := range c.Agents {
		for _, name := range a.SharedFolders {
			u[name] = append(u[name], a.Name)
		}
	}
	return u
}

// Others lists the agents other than agent that use name.
func (u Usage) Others(name, agent string) []string {
	var out []string
	for _, a := range u[name] {
		if a != agent {
			out = append(out, a)
		}
	}
	return out
}
