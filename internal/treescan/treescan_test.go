package treescan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/policy"
)

func TestScan_ExcludesForbiddenInAppAndDeletesFromDisk(t *testing.T) {
	root := t.TempDir()
	appScripts := filepath.Join(root, "app", "scripts")
	require.NoError(t, os.MkdirAll(appScripts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appScripts, "secret.csv"), []byte("x,y\n1,2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appScripts, "train.py"), []byte("print(1)"), 0o644))

	pol := policy.New(root, nil)
	scanner := New(root, pol, nil)

	node, _, err := scanner.Scan()
	require.NoError(t, err)

	var names []string
	collectNames(node, &names)

	require.Contains(t, names, "train.py")
	require.NotContains(t, names, "secret.csv")
	require.NoFileExists(t, filepath.Join(appScripts, "secret.csv"))
}

func TestScan_SkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "__pycache__", "x.pyc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "keep.py"), []byte("x"), 0o644))

	pol := policy.New(root, nil)
	scanner := New(root, pol, nil)

	node, _, err := scanner.Scan()
	require.NoError(t, err)

	var names []string
	collectNames(node, &names)
	require.Contains(t, names, "keep.py")
	require.NotContains(t, names, "x.pyc")
	require.NotContains(t, names, "__pycache__")
}

func TestScan_IsIdempotentOnQuiescentTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "a.py"), []byte("x"), 0o644))

	pol := policy.New(root, nil)
	scanner := New(root, pol, nil)

	_, hash1, err := scanner.Scan()
	require.NoError(t, err)
	_, hash2, err := scanner.Scan()
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)
}

func TestScan_DirectoriesSortedBeforeFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "afile.py"), []byte("x"), 0o644))

	pol := policy.New(root, nil)
	scanner := New(root, pol, nil)
	node, _, err := scanner.Scan()
	require.NoError(t, err)
	require.Len(t, node.Children, 2)
	require.True(t, node.Children[0].IsDirectory)
	require.Equal(t, "zdir", node.Children[0].Name)
}

func collectNames(n *Node, out *[]string) {
	if n == nil {
		return
	}
	if n.RelativePath != "." {
		*out = append(*out, n.Name)
	}
	for _, c := range n.Children {
		collectNames(c, out)
	}
}
