package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RESONANCE_DB_PATH", filepath.Join(t.TempDir(), "resonance.db"))
	t.Setenv("RESONANCE_LLM_PROVIDER", "none")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "resonance dev")
}

func TestKeywordsExtractFromStdin(t *testing.T) {
	out, err := run(t, "Sourdough starter needs feeding. The sourdough starter smells sour.", "keywords", "extract", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "sourdough")
	assert.Contains(t, out, "starter")
}

func TestAnalyzeTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonl")
	lines := []string{
		`{"role":"user","content":"Pizza dough needs a slow rise"}`,
		`{"role":"assistant","content":"A slow rise gives pizza dough flavor"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	out, err := run(t, "", "analyze", "c1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "c1: 2 new messages")
	assert.Contains(t, out, "summary v1")
}

func TestAccessSetUnknownKeyword(t *testing.T) {
	_, err := run(t, "", "access", "set", "ghost", "u1", "deny")
	assert.Error(t, err)
}
