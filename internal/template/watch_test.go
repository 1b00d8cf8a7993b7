package template

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Before\nsections:\n  - name: A\n"), 0600))

	reg, err := NewRegistry(FileLoader(path), nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, reg, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("name: After\nsections:\n  - name: B\n"), 0600))

	require.Eventually(t, func() bool {
		return reg.Current().Name() == "After"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	reg, err := NewRegistry(FileLoader(""), nil)
	require.NoError(t, err)

	w, err := NewWatcher(filepath.Join(t.TempDir(), "t.yaml"), reg, nil)
	require.NoError(t, err)
	w.Stop()
}
