package detector

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpguard/internal/content"
	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/internal/resolver"
	"mcpguard/internal/snapshot"
)

type fixture struct {
	dir      string
	config   string
	store    *snapshot.Store
	detector *Detector
}

func newFixture(t *testing.T, configContent string) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger, _ := logging.NewTestLogger()

	config := filepath.Join(dir, "mcp", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(config), 0755))
	require.NoError(t, os.WriteFile(config, []byte(configContent), 0644))

	store, err := snapshot.Open(filepath.Join(dir, "state", "snapshots"), logger)
	require.NoError(t, err)

	res := resolver.New(resolver.Options{
		Interpreters: []string{"python", "node"},
		Extensions:   []string{".py", ".js", ".sh"},
		SkipDirs:     []string{"node_modules"},
		MaxDepth:     5,
	}, logger)

	return &fixture{
		dir:      dir,
		config:   config,
		store:    store,
		detector: New(config, res, store, content.NewReader(1<<20, logger), 4, logger),
	}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, "mcp", name)
}

func (f *fixture) write(t *testing.T, name, data string) string {
	t.Helper()
	p := f.path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0644))
	return p
}

// baselineAll stores the current content of every path as its baseline.
func (f *fixture) baselineAll(t *testing.T) {
	t.Helper()
	cs, err := f.detector.Detect()
	require.NoError(t, err)
	for _, e := range cs.Entries {
		if e.CurrentExists {
			_, err := f.store.Put(e.Path, e.CurrentContent)
			require.NoError(t, err)
		} else {
			require.NoError(t, f.store.Remove(e.Path))
		}
	}
}

func TestDetect_FirstPassReportsEverythingAsAdded(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh","b.sh"]}`)
	f.write(t, "a.sh", "echo a\n")

	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 2, "missing b.sh without a baseline is not a change")
	assert.Equal(t, f.config, cs.Entries[0].Path)
	assert.Equal(t, model.KindAdded, cs.Entries[0].Kind)
	assert.Equal(t, "Config", cs.Entries[0].DisplayName)
	assert.Equal(t, f.path("a.sh"), cs.Entries[1].Path)
	assert.Contains(t, cs.Entries[1].DiffText, "new file")
	assert.Contains(t, cs.Entries[1].DiffText, "+echo a")
	assert.Equal(t, []string{f.config, f.path("a.sh"), f.path("b.sh")}, cs.Tracked)
	assert.NotEmpty(t, cs.ID)
}

func TestDetect_CleanAfterBaseline(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	cs, err := f.detector.Detect()

	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.NotNil(t, cs.Entries)
}

func TestDetect_ConfigScenario(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	require.NoError(t, os.WriteFile(f.config, []byte(`{"servers":["a.sh","b.sh"]}`), 0644))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	e := cs.Entries[0]
	assert.Equal(t, f.config, e.Path)
	assert.Equal(t, model.KindModified, e.Kind)
	assert.Contains(t, e.DiffText, `+{"servers":["a.sh","b.sh"]}`)
	assert.NotEqual(t, e.BaselineHash, e.CurrentHash)
}

func TestDetect_Removal(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	require.NoError(t, os.Remove(f.path("a.sh")))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	assert.Equal(t, model.KindRemoved, cs.Entries[0].Kind)
	assert.Contains(t, cs.Entries[0].DiffText, "file removed")
	assert.Contains(t, cs.Entries[0].DiffText, "-echo a")
	assert.False(t, cs.Entries[0].CurrentExists)
	assert.True(t, cs.Entries[0].BaselineExists)
}

func TestDetect_EmptyFileIsNotMissing(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	f.write(t, "a.sh", "")
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	assert.Equal(t, model.KindModified, cs.Entries[0].Kind)
	assert.True(t, cs.Entries[0].CurrentExists)
}

func TestDetect_UnreadableDoesNotHideOtherDrift(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	f := newFixture(t, `{"servers":["a.sh","b.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.write(t, "b.sh", "echo b\n")
	f.baselineAll(t)

	require.NoError(t, os.Chmod(f.path("a.sh"), 0000))
	t.Cleanup(func() { os.Chmod(f.path("a.sh"), 0644) })
	f.write(t, "b.sh", "echo B\n")

	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 2)
	assert.Equal(t, model.KindUnreadable, cs.Entries[0].Kind)
	assert.Contains(t, cs.Entries[0].DiffText, "cannot read current content")
	assert.NotEmpty(t, cs.Entries[0].ReadError)
	assert.Equal(t, model.KindModified, cs.Entries[1].Kind)
}

func TestDetect_CorruptBaseline(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	require.NoError(t, os.WriteFile(f.store.RecordPath(f.path("a.sh")), []byte("garbage"), 0600))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	e := cs.Entries[0]
	assert.Equal(t, model.KindModified, e.Kind)
	assert.NotEmpty(t, e.BaselineError)
	assert.False(t, e.BaselineExists)
	assert.Contains(t, e.DiffText, "stored baseline is invalid")
}

func TestDetect_DeletedFileInServerDirectory(t *testing.T) {
	f := newFixture(t, `{"mcpServers":{"tools":{"command":"python","args":["tools"]}}}`)
	f.write(t, filepath.Join("tools", "main.py"), "main()\n")
	f.write(t, filepath.Join("tools", "helper.py"), "def helper(): pass\n")
	f.baselineAll(t)

	require.NoError(t, os.Remove(f.path(filepath.Join("tools", "helper.py"))))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	assert.Equal(t, model.KindRemoved, cs.Entries[0].Kind)
	assert.Equal(t, "Server: tools (helper.py)", cs.Entries[0].DisplayName)
}

func TestDetect_CorruptBaselineOfRemovedFile(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh"]}`)
	f.write(t, "a.sh", "echo a\n")
	f.baselineAll(t)

	require.NoError(t, os.WriteFile(f.store.RecordPath(f.path("a.sh")), []byte("garbage"), 0600))
	require.NoError(t, os.Remove(f.path("a.sh")))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	e := cs.Entries[0]
	assert.Equal(t, model.KindRemoved, e.Kind)
	assert.Contains(t, e.DiffText, "stored baseline is invalid")
	assert.Contains(t, e.DiffText, "file removed")
	assert.NotContains(t, e.DiffText, "current file is empty")
}

func TestDetect_RemovedServerDirectory(t *testing.T) {
	f := newFixture(t, `{"mcpServers":{"srv":{"command":"node","args":["./srv"]}}}`)
	f.write(t, filepath.Join("srv", "index.js"), "start()\n")
	f.write(t, filepath.Join("srv", "lib", "util.js"), "exports.x = 1\n")
	f.baselineAll(t)

	require.NoError(t, os.RemoveAll(f.path("srv")))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 2)
	for _, e := range cs.Entries {
		assert.Equal(t, model.KindRemoved, e.Kind, e.Path)
	}
	assert.Equal(t, f.path(filepath.Join("srv", "index.js")), cs.Entries[0].Path)
	assert.Equal(t, "Server: srv (index.js)", cs.Entries[0].DisplayName)
	assert.Contains(t, cs.Tracked, f.path(filepath.Join("srv", "lib", "util.js")))
}

func TestDetect_RemovedExtensionlessEntryPoint(t *testing.T) {
	f := newFixture(t, `{"mcpServers":{"runner":{"command":"python","args":["./run"]}}}`)
	f.write(t, "run", "#!/usr/bin/env python\nmain()\n")
	f.baselineAll(t)

	require.NoError(t, os.Remove(f.path("run")))
	cs, err := f.detector.Detect()

	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)
	assert.Equal(t, f.path("run"), cs.Entries[0].Path)
	assert.Equal(t, model.KindRemoved, cs.Entries[0].Kind)
}

func TestDetect_Idempotent(t *testing.T) {
	f := newFixture(t, `{"servers":["a.sh","b.sh","c.sh"]}`)
	f.write(t, "a.sh", "a\n")
	f.write(t, "b.sh", "b\n")
	f.write(t, "c.sh", "c\n")
	f.baselineAll(t)
	f.write(t, "c.sh", "C\n")
	f.write(t, "a.sh", "A\n")

	first, err := f.detector.Detect()
	require.NoError(t, err)
	second, err := f.detector.Detect()
	require.NoError(t, err)

	assert.Equal(t, first.Paths(), second.Paths())
	assert.Equal(t, []string{f.path("a.sh"), f.path("c.sh")}, first.Paths())
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].DiffText, second.Entries[i].DiffText)
	}
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDetect_ConfigErrorsAbortThePass(t *testing.T) {
	f := newFixture(t, `{"servers": [`)

	cs, err := f.detector.Detect()

	assert.Nil(t, cs)
	assert.ErrorIs(t, err, resolver.ErrConfigMalformed)

	require.NoError(t, os.Remove(f.config))
	_, err = f.detector.Detect()
	assert.ErrorIs(t, err, resolver.ErrConfigUnreadable)
}
