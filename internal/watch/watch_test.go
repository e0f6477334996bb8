package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/events"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

func TestBus_CoalescesRepeatedWritesToOnePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "scripts"), 0o755))
	target := filepath.Join(root, "app", "scripts", "s.py")
	require.NoError(t, os.WriteFile(target, []byte("1"), 0o644))

	pol := policy.New(root, nil)
	bus, err := New(root, pol)
	require.NoError(t, err)
	defer bus.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	ch, unsub := bus.Subscribe()
	defer unsub()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	var received []events.Change
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case c := <-ch:
			received = append(received, c)
		case <-timeout:
			break loop
		}
		if len(received) > 0 {
			// give any further coalesced flush a moment to also arrive (it shouldn't)
			select {
			case c := <-ch:
				received = append(received, c)
			case <-time.After(1200 * time.Millisecond):
				break loop
			}
		}
	}

	require.Len(t, received, 1, "expected exactly one coalesced event")
	require.Equal(t, events.KindScriptChange, received[0].Kind)
}

func TestClassify(t *testing.T) {
	c, ok := classify("app/scripts/train.py")
	require.True(t, ok)
	require.Equal(t, events.KindScriptChange, c.Kind)

	c, ok = classify("input/data.csv")
	require.True(t, ok)
	require.Equal(t, events.KindDataChange, c.Kind)

	c, ok = classify("output/plot.png")
	require.True(t, ok)
	require.Equal(t, events.KindOutputChange, c.Kind)

	_, ok = classify("output/result.bin")
	require.False(t, ok)

	_, ok = classify("app/meta_data/input_metadata.txt")
	require.False(t, ok)
}
