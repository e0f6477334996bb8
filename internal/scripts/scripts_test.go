package scripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectMissingModule_AliasesKnownPackages(t *testing.T) {
	mod, ok := detectMissingModule("ModuleNotFoundError: No module named 'PIL'")
	require.True(t, ok)
	require.Equal(t, "pillow", mod)

	mod, ok = detectMissingModule("No module named 'sklearn.utils'")
	require.True(t, ok)
	require.Equal(t, "scikit-learn", mod)

	mod, ok = detectMissingModule("No module named 'some_custom_pkg'")
	require.True(t, ok)
	require.Equal(t, "some_custom_pkg", mod)

	_, ok = detectMissingModule("ZeroDivisionError: division by zero")
	require.False(t, ok)
}

func TestCappedBuffer_TruncatesWithMarker(t *testing.T) {
	var buf cappedBuffer
	big := make([]byte, outputCapBytes+100)
	for i := range big {
		big[i] = 'a'
	}
	_, err := buf.Write(big)
	require.NoError(t, err)
	require.Contains(t, buf.String(), truncateMarker)
	require.LessOrEqual(t, len(buf.String()), outputCapBytes+len(truncateMarker))
}

func TestDedupe_PreservesFirstOccurrenceOrder(t *testing.T) {
	out := dedupe([]string{"a", "b", "a"})
	require.Equal(t, []string{"a", "b"}, out)
}

func TestRunAll_DeduplicatesRepeatedSubmissions(t *testing.T) {
	appRoot := t.TempDir()
	scriptsDir := filepath.Join(appRoot, "scripts")
	require.NoError(t, os.MkdirAll(scriptsDir, 0o755))

	script := filepath.Join(scriptsDir, "sleep.py")
	require.NoError(t, os.WriteFile(script, []byte("import time\ntime.sleep(0.05)\n"), 0o644))

	r := New(appRoot)
	r.timeout = 5 * time.Second

	records := r.RunAll(context.Background(), []string{"scripts/sleep.py", "scripts/sleep.py"})
	require.Len(t, records, 1, "duplicate submissions must be deduplicated at enqueue")
}
