package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpguard/internal/config"
	"mcpguard/internal/model"
)

type env struct {
	configFile string
	mcpConfig  string
	dir        string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.MCPConfigPath = filepath.Join(dir, "claude", "config.json")
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.Workers = 2

	configFile := filepath.Join(dir, "mcpguard.yaml")
	require.NoError(t, cfg.SaveTo(configFile))

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.MCPConfigPath), 0755))
	require.NoError(t, os.WriteFile(cfg.MCPConfigPath, []byte(`{"servers":["a.sh"]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude", "a.sh"), []byte("echo a\n"), 0755))

	return &env{configFile: configFile, mcpConfig: cfg.MCPConfigPath, dir: dir}
}

// run executes the CLI with args against the environment's config file.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.configFile}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *env) modify(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.mcpConfig, []byte(`{"servers":["a.sh","b.sh"]}`), 0644))
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, code, exit.code)
}

func TestInitThenCheckIsClean(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Baselined 2 tracked file(s)")

	out, err = e.run(t, "", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes")
}

func TestCheckReportsDrift(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "", "check")
	requireExitCode(t, err, exitDrift)
	assert.Contains(t, out, "1 change(s) detected")
	assert.Contains(t, out, `+{"servers":["a.sh","b.sh"]}`)
}

func TestCheckJSON(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "", "check", "--json")
	requireExitCode(t, err, exitDrift)

	var cs model.ChangeSet
	require.NoError(t, json.Unmarshal([]byte(out), &cs))
	require.Len(t, cs.Entries, 1)
	assert.Equal(t, e.mcpConfig, cs.Entries[0].Path)
	assert.Equal(t, model.KindModified, cs.Entries[0].Kind)
}

func TestCheckRejectsConflictingFormats(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "check", "--json", "--plain")
	assert.ErrorContains(t, err, "--json cannot be combined")
}

func TestRevertRestoresBaseline(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "", "revert", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "revert: 1 path(s) done.")

	data, err := os.ReadFile(e.mcpConfig)
	require.NoError(t, err)
	assert.Equal(t, `{"servers":["a.sh"]}`, string(data))

	_, err = e.run(t, "", "check")
	assert.NoError(t, err)
}

func TestRevertDeclined(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "n\n", "revert")
	require.NoError(t, err)
	assert.Contains(t, out, "Revert 1 change(s)? [y/N]")
	assert.Contains(t, out, "Nothing changed.")

	data, err := os.ReadFile(e.mcpConfig)
	require.NoError(t, err)
	assert.Contains(t, string(data), "b.sh", "declined revert leaves the file alone")
}

func TestAcceptConfirmed(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "y\n", "accept")
	require.NoError(t, err)
	assert.Contains(t, out, "accept: 1 path(s) done.")

	_, err = e.run(t, "", "check")
	assert.NoError(t, err, "accepted content is the new baseline")
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)

	out, err := e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Config:    "+e.mcpConfig)
	assert.Contains(t, out, "Tracked:   2 file(s)")

	out, err = e.run(t, "", "status", "--json")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.NotEmpty(t, st)
}

func TestHistory(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No baselines accepted yet.")

	_, err = e.run(t, "", "init")
	require.NoError(t, err)

	out, err = e.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "accept 2 path(s)")
	assert.Contains(t, out, e.mcpConfig)
}

func TestWatchOnceExitsOnDrift(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "init")
	require.NoError(t, err)
	e.modify(t)

	out, err := e.run(t, "", "watch", "--once", "--interval", "10ms")
	requireExitCode(t, err, exitDrift)
	assert.Contains(t, out, "1 change(s) detected")
}

func TestFlagOverrides(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{}`), 0644))

	out, err := e.run(t, "", "--mcp-config", other, "--state-dir", filepath.Join(e.dir, "state2"), "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Baselined 1 tracked file(s) for "+other)
}

func TestFingerprint(t *testing.T) {
	a := &model.ChangeSet{Entries: []model.ChangeEntry{{Path: "/x", Kind: model.KindModified, CurrentHash: "1"}}}
	b := &model.ChangeSet{Entries: []model.ChangeEntry{{Path: "/x", Kind: model.KindModified, CurrentHash: "2"}}}
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
	assert.Equal(t, "", fingerprint(&model.ChangeSet{}))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Revert", capitalize("revert"))
	assert.Equal(t, "", capitalize(""))
}
