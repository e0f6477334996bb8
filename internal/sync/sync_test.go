package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

type fakeRemote struct {
	scripts      []ScriptEntry
	files        map[string][]byte
	putCalls     []string
	metaCalls    int
	keepaliveLog []string
}

func (f *fakeRemote) ListScripts(ctx context.Context) ([]ScriptEntry, error) {
	return f.scripts, nil
}

func (f *fakeRemote) GetFile(ctx context.Context, relPath string) ([]byte, error) {
	return f.files[relPath], nil
}

func (f *fakeRemote) PutFile(ctx context.Context, relPath string, content []byte) error {
	f.putCalls = append(f.putCalls, relPath)
	return nil
}

func (f *fakeRemote) PutMetadata(ctx context.Context, inputText, outputText string) error {
	f.metaCalls++
	return nil
}

func (f *fakeRemote) AppendKeepalive(ctx context.Context, line string) error {
	f.keepaliveLog = append(f.keepaliveLog, line)
	return nil
}

func newTestSynchronizer(t *testing.T, remote RemoteClient) (*Synchronizer, string) {
	t.Helper()
	projectRoot := t.TempDir()
	appRoot := filepath.Join(projectRoot, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(appRoot, "scripts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(appRoot, "meta_data"), 0o755))
	pol := policy.New(appRoot, nil)
	return New(appRoot, pol, remote, NewVector()), appRoot
}

func TestPull_NewFile_WritesAndUpdatesVector(t *testing.T) {
	fr := &fakeRemote{
		scripts: []ScriptEntry{{Path: "a/b.py", ModifiedUnix: 1700000000}},
		files:   map[string][]byte{"a/b.py": []byte("print(1)")},
	}
	s, appRoot := newTestSynchronizer(t, fr)

	res, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.py"}, res.SyncedPaths)
	assert.Equal(t, int64(1700000000), res.Vector["a/b.py"])
	assert.FileExists(t, filepath.Join(appRoot, "a/b.py"))

	// Second identical pull updates nothing.
	res2, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res2.SyncedPaths)
}

func TestPull_SkipsForbiddenInApp(t *testing.T) {
	fr := &fakeRemote{
		scripts: []ScriptEntry{{Path: "data.csv", ModifiedUnix: 1}},
		files:   map[string][]byte{"data.csv": []byte("x,y")},
	}
	s, appRoot := newTestSynchronizer(t, fr)

	res, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.SyncedPaths)
	assert.NoFileExists(t, filepath.Join(appRoot, "data.csv"))
}

func TestPush_ExcludesProtectedAndForbidden(t *testing.T) {
	fr := &fakeRemote{}
	s, appRoot := newTestSynchronizer(t, fr)

	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "scripts", "x.py"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "scripts", "report.pdf"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "sync_server.py"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "meta_data", "input_metadata.txt"), []byte("1"), 0o644))

	res, err := s.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"scripts/x.py"}, res.PushedPaths)
}

func TestPush_NeverConsultsVector(t *testing.T) {
	fr := &fakeRemote{}
	s, appRoot := newTestSynchronizer(t, fr)
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "scripts", "x.py"), []byte("1"), 0o644))

	s.vector.set("scripts/x.py", 9999999999)
	res, err := s.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"scripts/x.py"}, res.PushedPaths, "push must be unconditional regardless of vector state")
}
