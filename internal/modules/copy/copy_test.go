package copy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

type fakeFiles struct {
	mu        sync.Mutex
	dirs      []string
	uploads   map[string]string
	renames   map[string]string
	uploadErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{uploads: map[string]string{}, renames: map[string]string{}}
}

func (f *fakeFiles) MkdirAll(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, dir)
	return nil
}

func (f *fakeFiles) Upload(_ context.Context, local, remote string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[remote] = local
	return nil
}

func (f *fakeFiles) Rename(_ context.Context, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames[oldPath] = newPath
	return nil
}

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func newModule(t *testing.T, params map[string]any) *Module {
	t.Helper()
	todo, err := types.NewTodo("copy", params)
	require.NoError(t, err)
	m, err := New(todo, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestReconcileSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "motd")
	writeFile(t, src, "welcome\n")

	mock := runner.NewMockExecutor()
	mock.Set("sha256sum /etc/motd", runner.MockResult{Stderr: "sha256sum: /etc/motd: No such file or directory\n", ExitCode: 1})
	files := newFakeFiles()

	m := newModule(t, map[string]any{"src": src, "dest": "/etc"})
	target := modules.Target{Runner: runner.New(mock, "", zerolog.Nop()), Files: files}

	require.Equal(t, types.Changed, m.Reconcile(context.Background(), target))
	require.Equal(t, []string{"/etc"}, files.dirs)
	require.Equal(t, map[string]string{"/etc/motd": src}, files.uploads)
	require.Empty(t, files.renames)
}

func TestReconcileSkipsIdenticalFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "motd")
	writeFile(t, src, "welcome\n")

	mock := runner.NewMockExecutor()
	mock.Set("sha256sum /etc/motd", runner.MockResult{Stdout: sum("welcome\n") + "  /etc/motd\n"})
	files := newFakeFiles()

	m := newModule(t, map[string]any{"src": src, "dest": "/etc", "backup": true})
	target := modules.Target{Runner: runner.New(mock, "", zerolog.Nop()), Files: files}

	require.Equal(t, types.Unchanged, m.Reconcile(context.Background(), target))
	require.Empty(t, files.uploads)
	require.Empty(t, files.renames)
}

func TestReconcileBacksUpDifferingFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "motd")
	writeFile(t, src, "welcome\n")

	mock := runner.NewMockExecutor()
	mock.Set("sha256sum /etc/motd", runner.MockResult{Stdout: sum("old\n") + "  /etc/motd\n"})
	files := newFakeFiles()

	m := newModule(t, map[string]any{"src": src, "dest": "/etc", "backup": true})
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	target := modules.Target{Runner: runner.New(mock, "", zerolog.Nop()), Files: files}

	require.Equal(t, types.Changed, m.Reconcile(context.Background(), target))
	require.Equal(t, map[string]string{"/etc/motd": "/etc/motd.1700000000~"}, files.renames)
	require.Contains(t, files.uploads, "/etc/motd")
}

func TestReconcileDirectoryTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(root, "index.html"), "<h1>hi</h1>")
	writeFile(t, filepath.Join(root, "css", "main.css"), "body{}")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	mock := runner.NewMockExecutor()
	mock.Set("sha256sum /var/www/site/index.html", runner.MockResult{Stdout: sum("<h1>hi</h1>") + "  /var/www/site/index.html\n"})
	mock.Set("sha256sum /var/www/site/css/main.css", runner.MockResult{ExitCode: 1})
	files := newFakeFiles()

	m := newModule(t, map[string]any{"src": root, "dest": "/var/www"})
	target := modules.Target{Runner: runner.New(mock, "", zerolog.Nop()), Files: files}

	require.Equal(t, types.Changed, m.Reconcile(context.Background(), target))
	require.ElementsMatch(t, []string{"/var/www/site", "/var/www/site/css", "/var/www/site/empty"}, files.dirs)
	require.Equal(t, map[string]string{
		"/var/www/site/css/main.css": filepath.Join(root, "css", "main.css"),
	}, files.uploads)
}

func TestReconcileFailures(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		m := newModule(t, map[string]any{"src": filepath.Join(t.TempDir(), "nope"), "dest": "/etc"})
		target := modules.Target{Runner: runner.New(runner.NewMockExecutor(), "", zerolog.Nop()), Files: newFakeFiles()}
		require.Equal(t, types.Failed, m.Reconcile(context.Background(), target))
	})

	t.Run("upload error", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "motd")
		writeFile(t, src, "welcome\n")
		mock := runner.NewMockExecutor()
		mock.Set("sha256sum /etc/motd", runner.MockResult{ExitCode: 1})
		files := newFakeFiles()
		files.uploadErr = errors.New("permission denied")

		m := newModule(t, map[string]any{"src": src, "dest": "/etc"})
		target := modules.Target{Runner: runner.New(mock, "", zerolog.Nop()), Files: files}
		require.Equal(t, types.Failed, m.Reconcile(context.Background(), target))
	})

	t.Run("no file channel", func(t *testing.T) {
		m := newModule(t, map[string]any{"src": ".", "dest": "/etc"})
		require.Equal(t, types.Failed, m.Reconcile(context.Background(), modules.Target{}))
	})
}

func TestBackupName(t *testing.T) {
	require.Equal(t, "/etc/hosts.42~", BackupName("/etc/hosts", time.Unix(42, 0)))
}
