package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortvideo/internal/services"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStorePutResolve(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	ns := NewNamespace("", "", "abc123def456")

	ref, err := store.Put(ctx, ns, KindSubsMM, strings.NewReader("1\n00:00:00,000 --> 00:00:01,000\nhi\n"))
	require.NoError(t, err)
	assert.Equal(t, "default/default/abc123def456/subs/mm.srt", ref.Key)
	assert.Equal(t, "text/plain; charset=utf-8", ref.ContentType)
	assert.EqualValues(t, 35, ref.Size)

	handle, err := store.Resolve(ctx, ns, KindSubsMM)
	require.NoError(t, err)
	assert.False(t, handle.Redirect())
	assert.Equal(t, "abc123def456_mm.srt", handle.Filename)
	assert.False(t, handle.Ref.Legacy)

	rc, err := handle.Open()
	require.NoError(t, err)
	assert.Contains(t, readAll(t, rc), "hi")

	ok, err := store.Exists(ctx, ns, KindSubsMM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStorePutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ns := NewNamespace("acme", "shorts", "task0001")

	_, err = store.Put(context.Background(), ns, KindPack, strings.NewReader("zip"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "acme", "shorts", "task0001", "pack"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "capcut_pack.zip", entries[0].Name())
}

func TestLocalStoreFailedPutIsInvisible(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	ns := NewNamespace("", "", "task0002")

	_, err = store.Put(ctx, ns, KindRaw, io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrStorage))

	ok, err := store.Exists(ctx, ns, KindRaw)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoreLegacyFallback(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	ns := NewNamespace("", "", "legacy01")

	legacyDir := filepath.Join(root, "tasks", "legacy01")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "capcut_pack.zip"), []byte("old pack"), 0o644))

	handle, err := store.Resolve(ctx, ns, KindPack)
	require.NoError(t, err)
	assert.True(t, handle.Ref.Legacy)
	assert.Equal(t, "tasks/legacy01/capcut_pack.zip", handle.Ref.Key)

	rc, err := handle.Open()
	require.NoError(t, err)
	assert.Equal(t, "old pack", readAll(t, rc))

	// A primary write takes precedence over the legacy copy.
	_, err = store.Put(ctx, ns, KindPack, strings.NewReader("new pack"))
	require.NoError(t, err)
	rc, ref, err := store.Open(ctx, ns, KindPack)
	require.NoError(t, err)
	assert.False(t, ref.Legacy)
	assert.Equal(t, "new pack", readAll(t, rc))
}

func TestLocalStoreNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	ns := NewNamespace("", "", "missing1")

	_, err = store.Resolve(ctx, ns, KindScenes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, services.ErrNotFound))

	ok, err := store.Exists(ctx, ns, KindScenes)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoreNamespaceIsolation(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	const tasks = 8
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ns := NewNamespace("", "", fmt.Sprintf("task%04d", i))
			payload := strings.Repeat(fmt.Sprintf("payload-%d;", i), 2048)
			_, err := store.Put(ctx, ns, KindSubsMM, strings.NewReader(payload))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < tasks; i++ {
		ns := NewNamespace("", "", fmt.Sprintf("task%04d", i))
		rc, ref, err := store.Open(ctx, ns, KindSubsMM)
		require.NoError(t, err)
		assert.Contains(t, ref.Key, ns.TaskID)
		assert.Equal(t, strings.Repeat(fmt.Sprintf("payload-%d;", i), 2048), readAll(t, rc))
	}
}

func TestLocalStoreRejectsEscapingNamespace(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, ns := range []Namespace{
		{Tenant: "default", Project: "default", TaskID: "../other"},
		{Tenant: "..", Project: "default", TaskID: "task"},
		{Tenant: "default", Project: "a/b", TaskID: "task"},
		{Tenant: "default", Project: "default", TaskID: ""},
	} {
		_, err := store.Put(ctx, ns, KindRaw, strings.NewReader("x"))
		require.Error(t, err, "namespace %+v", ns)
		assert.True(t, errors.Is(err, services.ErrValidation))

		_, err = store.Resolve(ctx, ns, KindRaw)
		assert.True(t, errors.Is(err, services.ErrValidation))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalStoreStagePromoteDiscard(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	ns := NewNamespace("", "", "task0003")

	_, err = store.Put(ctx, ns, KindSubsMM, strings.NewReader("current"))
	require.NoError(t, err)

	stale, err := store.Stage(ctx, ns, KindSubsMM, 1, strings.NewReader("stale"))
	require.NoError(t, err)
	fresh, err := store.Stage(ctx, ns, KindSubsMM, 2, strings.NewReader("fresh"))
	require.NoError(t, err)
	assert.Equal(t, "default/default/task0003/.staging/2/subs/mm.srt", fresh.Key)

	rc, _, err := store.Open(ctx, ns, KindSubsMM)
	require.NoError(t, err)
	assert.Equal(t, "current", readAll(t, rc), "staging must not touch the primary key")

	promoted, err := store.Promote(ctx, ns, fresh)
	require.NoError(t, err)
	assert.Equal(t, "default/default/task0003/subs/mm.srt", promoted.Key)
	require.NoError(t, store.Discard(ctx, stale))

	rc, _, err = store.Open(ctx, ns, KindSubsMM)
	require.NoError(t, err)
	assert.Equal(t, "fresh", readAll(t, rc))

	_, err = os.Stat(filepath.Join(root, "default", "default", "task0003", ".staging"))
	assert.True(t, os.IsNotExist(err), "empty staging directory should be pruned")

	_, err = store.Promote(ctx, ns, Ref{Kind: KindSubsMM, Key: "default/default/task0003/subs/mm.srt"})
	assert.True(t, errors.Is(err, services.ErrValidation))
}
