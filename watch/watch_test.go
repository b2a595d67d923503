package watch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) apply(path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return len(r.paths) == 1, nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.paths...)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherAppliesAfterWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	dw := New_watcher(dir, "PersData.kat", 100*time.Millisecond, rec.apply, quiet())
	require.NoError(t, dw.Start_watching())
	defer dw.Stop_watching()

	// somebody else's file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Other.kat"), []byte("x"), 0644))

	// a burst of writes is one update
	save := filepath.Join(dir, "PersData.kat")
	for i := range 5 {
		require.NoError(t, os.WriteFile(save, []byte{byte(i)}, 0644))
	}

	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, []string{save}, rec.calls())

	// and the next save gets another go
	require.NoError(t, os.WriteFile(save, []byte("again"), 0644))
	require.Eventually(t, func() bool { return len(rec.calls()) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherMatchesCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	dw := New_watcher(dir, "PersData.kat", 10*time.Millisecond, rec.apply, quiet())
	require.NoError(t, dw.Start_watching())
	defer dw.Stop_watching()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "PERSDATA.KAT"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return len(rec.calls()) > 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherMissingDir(t *testing.T) {
	dw := New_watcher(filepath.Join(t.TempDir(), "nope"), "PersData.kat", time.Millisecond, (&recorder{}).apply, quiet())
	require.Error(t, dw.Start_watching())
	dw.Stop_watching()
}

func TestStopIsIdempotent(t *testing.T) {
	dw := New_watcher(t.TempDir(), "PersData.kat", time.Millisecond, (&recorder{}).apply, quiet())
	require.NoError(t, dw.Start_watching())
	dw.Stop_watching()
	dw.Stop_watching()
}
