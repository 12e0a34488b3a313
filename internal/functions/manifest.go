package functions

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basalthq/basalt/internal/auth"
)

// ManifestFile is the file name that marks a directory as a function.
const ManifestFile = "function.yaml"

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest is the on-disk declaration of a function (function.yaml).
type Manifest struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Runtime      string            `yaml:"runtime"`
	Entrypoint   string            `yaml:"entrypoint"`
	Auth         string            `yaml:"auth"`
	AccessRule   string            `yaml:"access_rule"`
	Timeout      string            `yaml:"timeout"`
	Env          map[string]string `yaml:"env"`
	Dependencies []string          `yaml:"dependencies"`
	InputSchema  map[string]any    `yaml:"input_schema"`
	OutputSchema map[string]any    `yaml:"output_schema"`
}

// LoadManifest reads and parses the manifest in a function directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Detail: err.Error()}
	}
	if err := m.validate(path); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate(path string) error {
	if m.Name == "" {
		return &ManifestError{Path: path, Detail: "name is required"}
	}
	if !nameRe.MatchString(m.Name) {
		return &ManifestError{Path: path, Detail: fmt.Sprintf("name %q must match %s", m.Name, nameRe)}
	}
	switch Runtime(m.Runtime) {
	case RuntimeNode, RuntimePython, RuntimeDeno, RuntimeBun:
	case "":
		return &ManifestError{Path: path, Detail: "runtime is required"}
	default:
		return &ManifestError{Path: path, Detail: fmt.Sprintf("unknown runtime %q", m.Runtime)}
	}
	if m.Entrypoint == "" {
		return &ManifestError{Path: path, Detail: "entrypoint is required"}
	}
	if filepath.IsAbs(m.Entrypoint) || strings.HasPrefix(filepath.Clean(m.Entrypoint), "..") {
		return &ManifestError{Path: path, Detail: "entrypoint must be a relative path inside the function directory"}
	}
	if m.Timeout != "" {
		if _, err := time.ParseDuration(m.Timeout); err != nil {
			return &ManifestError{Path: path, Detail: fmt.Sprintf("invalid timeout: %v", err)}
		}
	}
	if _, err := auth.ParseMode(m.Auth); err != nil {
		return &ManifestError{Path: path, Detail: err.Error()}
	}
	return nil
}

// Descriptor converts a validated manifest into a registry descriptor,
// compiling its schemas. dir is the function directory the manifest was
// loaded from.
func (m *Manifest) Descriptor(dir string) (*Descriptor, error) {
	mode, err := auth.ParseMode(m.Auth)
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if m.Timeout != "" {
		timeout, err = time.ParseDuration(m.Timeout)
		if err != nil {
			return nil, err
		}
	}

	input, err := CompileSchema(m.Name+"-input", m.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("function %q input schema: %w", m.Name, err)
	}
	output, err := CompileSchema(m.Name+"-output", m.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("function %q output schema: %w", m.Name, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Name:         m.Name,
		Description:  m.Description,
		Runtime:      Runtime(m.Runtime),
		Dir:          abs,
		Entrypoint:   m.Entrypoint,
		AuthMode:     mode,
		AccessRule:   m.AccessRule,
		Timeout:      timeout,
		Env:          m.Env,
		Dependencies: m.Dependencies,
		Input:        input,
		Output:       output,
	}, nil
}
