package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEffective_CLIOnly(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Input: "in", Output: "out"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "in"), eff.Input)
	assert.Equal(t, "in", eff.InputArg)
	assert.Equal(t, filepath.Join(cwd, "out"), eff.Output)
	assert.False(t, eff.Pretty)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "webp", "txt"}, eff.Extensions)
	assert.Equal(t, "info", eff.LogLevel)
	assert.Empty(t, eff.ConfigFile)
}

func TestLoadEffective_MissingInputAndOutput(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{Output: "out"})
	assert.Equal(t, ErrCodeMissingInput, Code(err))

	_, err = LoadEffective(cwd, CLIArgs{Input: "in"})
	assert.Equal(t, ErrCodeMissingOutput, Code(err))
}

func TestLoadEffective_DefaultFileAndPrettyOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, DefaultFileName), "input: images\noutput: fx\npretty: true\nextensions: [PNG, .txt]\n")

	eff, err := LoadEffective(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "images"), eff.Input)
	assert.Equal(t, filepath.Join(cwd, "fx"), eff.Output)
	assert.True(t, eff.Pretty)
	assert.Equal(t, []string{"png", "txt"}, eff.Extensions)
	assert.Equal(t, filepath.Join(cwd, DefaultFileName), eff.ConfigFile)

	// --pretty=false 必须能覆盖配置中的 pretty: true。
	eff, err = LoadEffective(cwd, CLIArgs{Pretty: false, PrettySet: true, Input: "other"})
	require.NoError(t, err)
	assert.False(t, eff.Pretty)
	assert.Equal(t, filepath.Join(cwd, "other"), eff.Input)
}

func TestLoadEffective_ExplicitConfigMissing(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigFile: "nope.yaml", Input: "a", Output: "b"})
	assert.Equal(t, ErrCodeInvalid, Code(err))
}

func TestLoadEffective_InvalidLogLevel(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{Input: "a", Output: "b", LogLevel: "loud"})
	assert.Equal(t, ErrCodeInvalid, Code(err))
}

func TestLoadEffective_EnvOverridesFile(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, DefaultFileName), "input: images\noutput: fx\nlog_level: warn\n")
	t.Setenv("FIXTUREGEN_LOG_LEVEL", "debug")
	t.Setenv("FIXTUREGEN_EXTENSIONS", "png,webp")

	eff, err := LoadEffective(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, "debug", eff.LogLevel)
	assert.Equal(t, []string{"png", "webp"}, eff.Extensions)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	cwd := t.TempDir()
	p := filepath.Join(cwd, DefaultFileName)

	require.NoError(t, WriteDefault(p))
	assert.Error(t, WriteDefault(p), "已存在时不应覆盖")

	eff, err := LoadEffective(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "images"), eff.Input)
	assert.Equal(t, filepath.Join(cwd, "fixtures"), eff.Output)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
