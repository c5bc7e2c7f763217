package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultResponseMarker precedes the answer in GraphRAG query output.
const DefaultResponseMarker = "SUCCESS: Local Search Response:"

// CommandConfig describes the external GraphRAG query command. The prompt is
// passed as a positional argument after the --root and --method flags.
type CommandConfig struct {
	Executable     string   `json:"executable" yaml:"executable"`
	Args           []string `json:"args" yaml:"args"`
	Root           string   `json:"root" yaml:"root"`
	Method         string   `json:"method" yaml:"method"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	ResponseMarker string   `json:"response_marker" yaml:"response_marker"`
}

// DefaultCommandConfig runs `python -m graphrag.query` in global mode.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Executable:     "python",
		Args:           []string{"-m", "graphrag.query"},
		Root:           "./ragtest",
		Method:         "global",
		ResponseMarker: DefaultResponseMarker,
	}
}

// ErrCommandParse marks a command failure whose stderr reports a parsing
// or fetch problem.
var ErrCommandParse = errors.New("retrieval command could not parse its input")

// CommandBackend shells out to a GraphRAG-style query CLI.
type CommandBackend struct {
	cfg CommandConfig
}

// NewCommandBackend creates a CommandBackend. Empty fields take the values
// of DefaultCommandConfig.
func NewCommandBackend(cfg CommandConfig) *CommandBackend {
	def := DefaultCommandConfig()
	if cfg.Executable == "" {
		cfg.Executable = def.Executable
		if cfg.Args == nil {
			cfg.Args = def.Args
		}
	}
	if cfg.Root == "" {
		cfg.Root = def.Root
	}
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	if cfg.ResponseMarker == "" {
		cfg.ResponseMarker = def.ResponseMarker
	}
	return &CommandBackend{cfg: cfg}
}

func (b *CommandBackend) Name() string { return "command" }

// args returns the argument list for prompt.
func (b *CommandBackend) args(prompt string) []string {
	args := append([]string{}, b.cfg.Args...)
	args = append(args, "--root", b.cfg.Root, "--method", b.cfg.Method, prompt)
	if b.cfg.DataDir != "" {
		args = append(args, "--data", b.cfg.DataDir)
	}
	return args
}

// Search runs the command once and returns its stdout after the response
// marker, or all of stdout when the marker is absent.
func (b *CommandBackend) Search(ctx context.Context, req Request) (string, error) {
	cmd := exec.CommandContext(ctx, b.cfg.Executable, b.args(req.Prompt)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		slog.Warn("retrieval: command failed", "executable", b.cfg.Executable, "error", err, "stderr", truncate(msg, 400))
		if strings.Contains(msg, "failed") || strings.Contains(msg, "parsing") {
			return "", fmt.Errorf("%w: %s", ErrCommandParse, msg)
		}
		if msg == "" {
			return "", fmt.Errorf("running %s: %w", b.cfg.Executable, err)
		}
		return "", fmt.Errorf("running %s: %w: %s", b.cfg.Executable, err, msg)
	}

	return extractResponse(stdout.String(), b.cfg.ResponseMarker), nil
}

func extractResponse(output, marker string) string {
	output = strings.TrimSpace(output)
	if marker == "" {
		return output
	}
	if _, after, ok := strings.Cut(output, marker); ok {
		return strings.TrimSpace(after)
	}
	return output
}
