package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-cli/refinery/internal/model"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `version: 1
env:
  VENV_DIR: .venv
stages:
  - name: setup
    run:
      - python3 -m venv ${VENV_DIR}
  - name: format
    needs: [setup]
    continue_on_error: true
    run:
      - black .
      - isort .
commit:
  message: Automated cleanup
  branch: main
approval:
  timeout: 15m
notify:
  webhook: https://hooks.example.com/refinery
`

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refinery.yaml", yamlConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Stages, 2)
	assert.Equal(t, []string{"setup"}, cfg.Stages[1].Needs)
	assert.True(t, cfg.Stages[1].ContinueOnError)
	assert.Equal(t, "Automated cleanup", cfg.Commit.Message)
	assert.Equal(t, "15m", cfg.Approval.Timeout)
	assert.Equal(t, "https://hooks.example.com/refinery", cfg.Notify.Webhook)
}

func TestLoadJSONCStripsComments(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refinery.jsonc", `{
  // pipeline schema version
  "version": 1,
  "container": { "image": "python:3.11-slim" },
  "stages": [
    {
      "name": "detect",
      "run": ["python code_optimizer.py ."], // detection pass
    },
  ],
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Container)
	assert.Equal(t, "python:3.11-slim", cfg.Container.Image)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, "detect", cfg.Stages[0].Name)
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refinery.yaml", `version: 1
stages:
  - name: setup
    run: ["true"]
    retries: 3
`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refinery.yaml", `version: 1
stages:
  - name: setup
    run: ["true"]
  - name: setup
    run: ["true"]
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "duplicate stage name")
}

func TestFindPrefersYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "refinery.jsonc", `{"version": 1, "stages": []}`)
	yamlPath := writeConfig(t, dir, "refinery.yaml", yamlConfig)

	found, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, yamlPath, found)
}

func TestFindReturnsConfigErrorWhenMissing(t *testing.T) {
	_, err := Find(t.TempDir())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "refinery init")
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refinery.yaml")

	require.NoError(t, Write(path, Default(), false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Stages, 4)
	assert.Equal(t, DefaultCommitMessage, cfg.Commit.Message)
}

func TestWriteRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refinery.yaml", yamlConfig)

	err := Write(path, Default(), false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, Write(path, Default(), true))
}
