package retrieval

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shBackend runs script with sh; the prompt is $5 because the backend
// appends --root ROOT --method METHOD PROMPT.
func shBackend(t *testing.T, script string) *CommandBackend {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return NewCommandBackend(CommandConfig{
		Executable: "sh",
		Args:       []string{"-c", script, "graphrag"},
		Root:       "./corpus",
		Method:     "local",
	})
}

func TestCommandBackendArgs(t *testing.T) {
	b := NewCommandBackend(CommandConfig{DataDir: "out/artifacts"})
	assert.Equal(t,
		[]string{"-m", "graphrag.query", "--root", "./ragtest", "--method", "global", "the prompt", "--data", "out/artifacts"},
		b.args("the prompt"))
	assert.Equal(t, "python", b.cfg.Executable)
}

func TestCommandBackendStripsMarker(t *testing.T) {
	b := shBackend(t, `echo "INFO: loading index"; echo "SUCCESS: Local Search Response: facts about $5"`)
	out, err := b.Search(context.Background(), Request{Prompt: "syngas"})
	require.NoError(t, err)
	assert.Equal(t, "facts about syngas", out)
}

func TestCommandBackendWithoutMarker(t *testing.T) {
	b := shBackend(t, `echo "  plain answer  "`)
	out, err := b.Search(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out)
}

func TestCommandBackendParseFailure(t *testing.T) {
	b := shBackend(t, `echo "error parsing query" >&2; exit 2`)
	_, err := b.Search(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandParse))
}

func TestCommandBackendOtherFailure(t *testing.T) {
	b := shBackend(t, `echo "index missing" >&2; exit 3`)
	_, err := b.Search(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCommandParse))
	assert.Contains(t, err.Error(), "index missing")
}

func TestExtractResponse(t *testing.T) {
	assert.Equal(t, "b", extractResponse("a MARK b", "MARK"))
	assert.Equal(t, "a b", extractResponse(" a b ", "MARK"))
	assert.Equal(t, "a MARK b", extractResponse("a MARK b", ""))
}
