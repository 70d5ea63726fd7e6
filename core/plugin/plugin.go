// Package plugin holds the registry of plugin-provided commands. The
// executor consults it after builtins and before PATH lookup.
package plugin

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// CommandFunc is a plugin command. It reads stdin and writes stdout/stderr
// like a process would and returns an exit code.
type CommandFunc func(args []string, stdin io.Reader, stdout, stderr io.Writer) int

// Plugin is a named bundle of commands.
type Plugin struct {
	Name        string
	Description string
	Commands    map[string]CommandFunc
}

// Manager tracks registered plugins.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

func NewManager() *Manager {
	return &Manager{plugins: make(map[string]*Plugin)}
}

// Register adds a plugin. Re-registering a name is an error.
func (m *Manager) Register(p *Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[p.Name]; exists {
		return fmt.Errorf("plugin: %q already registered", p.Name)
	}
	m.plugins[p.Name] = p
	return nil
}

// GetAllPlugins returns the registered plugins keyed by name.
func (m *Manager) GetAllPlugins() map[string]*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Plugin, len(m.plugins))
	for k, v := range m.plugins {
		out[k] = v
	}
	return out
}

// LookupCommand finds a command by name across all plugins. Plugins are
// scanned in name order so lookups are deterministic when names collide.
func (m *Manager) LookupCommand(name string) (CommandFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for k := range m.plugins {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, pluginName := range names {
		if fn, ok := m.plugins[pluginName].Commands[name]; ok {
			return fn, true
		}
	}
	return nil, false
}
