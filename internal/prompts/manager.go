package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	textTemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// GreetingPrompt is the name of the opening line shown to the user
const GreetingPrompt = "greeting"

//go:embed defaults/*.yaml
var defaultPrompts embed.FS

// Manager handles loading and rendering prompt templates
type Manager struct {
	prompts map[string]string
	sources map[string]string // Track which file provided each prompt (for debugging)
	now     func() time.Time
}

// NewManager creates a new prompt manager by loading prompts from a directory
func NewManager(promptsDir string) (*Manager, error) {
	pm := newManager()
	if err := pm.loadFS(os.DirFS(promptsDir), promptsDir, "system"); err != nil {
		return nil, err
	}
	return pm, nil
}

// NewDefaultManager loads the built-in prompts, then any YAML files found in
// overrideDir. Prompts from overrideDir replace built-in ones with the same
// name. A missing overrideDir is not an error.
func NewDefaultManager(overrideDir string) (*Manager, error) {
	pm := newManager()

	defaults, err := fs.Sub(defaultPrompts, "defaults")
	if err != nil {
		return nil, fmt.Errorf("failed to open built-in prompts: %w", err)
	}
	if err := pm.loadFS(defaults, "defaults", "system"); err != nil {
		return nil, fmt.Errorf("failed to load built-in prompts: %w", err)
	}

	if overrideDir != "" {
		if info, err := os.Stat(overrideDir); err == nil && info.IsDir() {
			if err := pm.loadFS(os.DirFS(overrideDir), overrideDir, "project"); err != nil {
				return nil, fmt.Errorf("failed to load project prompts: %w", err)
			}
		}
	}

	if err := pm.validateRequiredPrompts(GreetingPrompt); err != nil {
		return nil, err
	}
	return pm, nil
}

// NewManagerFromMap creates a prompt manager from a map (useful for testing)
func NewManagerFromMap(prompts map[string]string) *Manager {
	pm := newManager()
	for key, value := range prompts {
		pm.prompts[key] = value
		pm.sources[key] = "test:map"
	}
	return pm
}

func newManager() *Manager {
	return &Manager{
		prompts: make(map[string]string),
		sources: make(map[string]string),
		now:     time.Now,
	}
}

// loadFS loads all YAML files at the root of fsys
func (pm *Manager) loadFS(fsys fs.FS, dir, source string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := path.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read %s/%s: %w", dir, entry.Name(), err)
		}

		var prompts map[string]string
		if err := yaml.Unmarshal(data, &prompts); err != nil {
			return fmt.Errorf("failed to parse %s/%s: %w", dir, entry.Name(), err)
		}

		// Later files override earlier ones
		for key, value := range prompts {
			pm.prompts[key] = value
			pm.sources[key] = fmt.Sprintf("%s:%s", source, entry.Name())
		}
	}

	return nil
}

func (pm *Manager) validateRequiredPrompts(required ...string) error {
	var missing []string
	for _, key := range required {
		if _, ok := pm.prompts[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required prompts: %v", missing)
	}
	return nil
}

// Get returns a raw prompt by name
func (pm *Manager) Get(name string) (string, error) {
	prompt, ok := pm.prompts[name]
	if !ok {
		return "", fmt.Errorf("prompt '%s' not found (available: %v)", name, pm.Names())
	}
	return prompt, nil
}

// Render renders a prompt template with the given variables
func (pm *Manager) Render(name string, vars map[string]interface{}) (string, error) {
	promptTemplate, err := pm.Get(name)
	if err != nil {
		return "", err
	}

	tmpl, err := textTemplate.New(name).Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", name, err)
	}

	return buf.String(), nil
}

// SystemPrompt renders the named system prompt. Templates may use {{.Date}}.
func (pm *Manager) SystemPrompt(name string) (string, error) {
	out, err := pm.Render(name, map[string]interface{}{
		"Date": pm.now().Format("January 2, 2006"),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Greeting returns the rendered greeting
func (pm *Manager) Greeting() (string, error) {
	out, err := pm.Render(GreetingPrompt, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Names returns the sorted names of all loaded prompts
func (pm *Manager) Names() []string {
	names := make([]string, 0, len(pm.prompts))
	for name := range pm.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPrompt checks if a prompt exists
func (pm *Manager) HasPrompt(name string) bool {
	_, ok := pm.prompts[name]
	return ok
}

// GetSource returns which file provided a prompt (for debugging)
func (pm *Manager) GetSource(name string) string {
	if source, ok := pm.sources[name]; ok {
		return source
	}
	return "unknown"
}

// ListOverrides returns the sorted prompts that came from the override directory
func (pm *Manager) ListOverrides() []string {
	var overrides []string
	for key, source := range pm.sources {
		if strings.HasPrefix(source, "project:") {
			overrides = append(overrides, key)
		}
	}
	sort.Strings(overrides)
	return overrides
}

// CountPrompts returns the total number of loaded prompts
func (pm *Manager) CountPrompts() int {
	return len(pm.prompts)
}
