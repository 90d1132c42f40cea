package language

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps language names and aliases to profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	aliases  map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]Profile),
		aliases:  make(map[string]string),
	}
}

// DefaultRegistry returns a registry holding the built-in profiles.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPython(nil), "py", "python3")
	r.Register(NewShell(nil), "bash", "sh")
	r.Register(NewJavaScript(nil), "js", "node")
	return r
}

// Register adds or replaces a profile under its name and aliases.
func (r *Registry) Register(p Profile, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(p.Name())
	r.profiles[name] = p
	delete(r.aliases, name)
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Lookup returns the profile for a name or alias.
func (r *Registry) Lookup(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := r.profiles[key]; ok {
		return p, nil
	}
	if target, ok := r.aliases[key]; ok {
		return r.profiles[target], nil
	}
	return nil, fmt.Errorf("unknown language %q (available: %s)", name, strings.Join(r.namesLocked(), ", "))
}

// Names returns the registered language names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Profiles returns all registered profiles ordered by name.
func (r *Registry) Profiles() []Profile {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(names))
	for _, n := range names {
		out = append(out, r.profiles[n])
	}
	return out
}
