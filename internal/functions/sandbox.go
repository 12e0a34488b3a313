package functions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sandbox runs a function in isolation and returns its structured response.
type Sandbox interface {
	Run(ctx context.Context, d *Descriptor, req *Request) (*Response, error)
}

type runtimeCommand struct {
	command string
	args    []string
}

var runtimeCommands = map[Runtime]runtimeCommand{
	RuntimeNode:   {command: "node"},
	RuntimePython: {command: "python3", args: []string{"-u"}},
	RuntimeDeno:   {command: "deno", args: []string{"run", "--allow-env", "--allow-read=."}},
	RuntimeBun:    {command: "bun", args: []string{"run"}},
}

// ProcessSandbox executes functions as subprocesses. Each invocation gets a
// fresh process with a JSON request on stdin and a JSON response on stdout.
// Dependencies are materialized into a per-function directory under envRoot
// and exposed through the runtime's module path variable, so functions never
// see each other's dependencies.
type ProcessSandbox struct {
	envRoot   string
	globalEnv map[string]string
	logger    zerolog.Logger
}

// NewProcessSandbox creates a subprocess sandbox rooted at envRoot.
func NewProcessSandbox(envRoot string, globalEnv map[string]string, logger zerolog.Logger) *ProcessSandbox {
	return &ProcessSandbox{
		envRoot:   envRoot,
		globalEnv: globalEnv,
		logger:    logger.With().Str("component", "sandbox").Logger(),
	}
}

// Materialize installs the function's declared dependencies into its
// isolated environment directory. A marker file records the installed set
// so unchanged dependencies are not reinstalled.
func (s *ProcessSandbox) Materialize(ctx context.Context, d *Descriptor) error {
	if len(d.Dependencies) == 0 {
		return nil
	}

	envDir := s.envDir(d)
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return fmt.Errorf("creating env dir: %w", err)
	}

	marker := filepath.Join(envDir, ".deps")
	want := depsFingerprint(d.Dependencies)
	if got, err := os.ReadFile(marker); err == nil && string(got) == want {
		return nil
	}

	var cmd *exec.Cmd
	switch d.Runtime {
	case RuntimeNode, RuntimeBun:
		args := append([]string{"install", "--prefix", envDir, "--no-save"}, d.Dependencies...)
		cmd = exec.CommandContext(ctx, "npm", args...)
	case RuntimePython:
		args := append([]string{"-m", "pip", "install", "--quiet", "--target", envDir}, d.Dependencies...)
		cmd = exec.CommandContext(ctx, "python3", args...)
	case RuntimeDeno:
		// Deno resolves remote modules itself; nothing to install.
		return os.WriteFile(marker, []byte(want), 0o644)
	default:
		return fmt.Errorf("unknown runtime %q", d.Runtime)
	}

	cmd.Dir = d.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("installing dependencies for %q: %w: %s", d.Name, err, strings.TrimSpace(string(out)))
	}

	s.logger.Info().Str("function", d.Name).Int("deps", len(d.Dependencies)).Msg("dependencies materialized")
	return os.WriteFile(marker, []byte(want), 0o644)
}

// Run executes the function once. The caller controls the deadline through
// ctx; on expiry the process is killed and the context error is returned.
func (s *ProcessSandbox) Run(ctx context.Context, d *Descriptor, req *Request) (*Response, error) {
	rc, ok := runtimeCommands[d.Runtime]
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q", d.Runtime)
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	args := append(append([]string{}, rc.args...), d.Entrypoint)
	cmd := exec.CommandContext(ctx, rc.command, args...)
	cmd.Dir = d.Dir
	cmd.Env = s.buildEnv(d)
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Deadline or cancellation; partial output is discarded.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("process exited: %w: %s", err, truncate(stderr.String(), 1024))
	}

	var resp Response
	if err := json.Unmarshal(lastJSONLine(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w: %s", err, truncate(stdout.String(), 256))
	}
	return &resp, nil
}

func (s *ProcessSandbox) envDir(d *Descriptor) string {
	return filepath.Join(s.envRoot, d.Name)
}

// buildEnv constructs a minimal environment. The parent process environment
// is not inherited; functions see only PATH, HOME, the configured global
// variables, their own manifest variables, and the module path pointing at
// their isolated dependency directory.
func (s *ProcessSandbox) buildEnv(d *Descriptor) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	for k, v := range s.globalEnv {
		env = append(env, k+"="+v)
	}
	for k, v := range d.Env {
		env = append(env, k+"="+v)
	}
	if len(d.Dependencies) > 0 {
		envDir := s.envDir(d)
		switch d.Runtime {
		case RuntimeNode, RuntimeBun:
			env = append(env, "NODE_PATH="+filepath.Join(envDir, "node_modules"))
		case RuntimePython:
			env = append(env, "PYTHONPATH="+envDir)
		}
	}
	return env
}

func depsFingerprint(deps []string) string {
	h := sha256.Sum256([]byte(strings.Join(deps, "\n")))
	return hex.EncodeToString(h[:])
}

// lastJSONLine returns the last non-empty stdout line. Functions may print
// freely before emitting the response object as their final line.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return nil
	}
	return bytes.TrimSpace(lines[len(lines)-1])
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
