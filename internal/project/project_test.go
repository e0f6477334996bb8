package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_ScaffoldsConventionalSubtree(t *testing.T) {
	root := t.TempDir()
	m := NewManager(context.Background())

	info, err := m.Select(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), info.Name)

	for _, d := range []string{"input", "output", "app", filepath.Join("app", "scripts"), filepath.Join("app", "meta_data")} {
		assert.DirExists(t, filepath.Join(root, d))
	}
	assert.FileExists(t, filepath.Join(root, "app", "CLAUDE.md"))
	assert.FileExists(t, filepath.Join(root, "app", "metadatafarmer.py"))

	m.Current().close()
}

func TestSelect_IsIdempotentAndPreservesExistingFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(context.Background())

	_, err := m.Select(root)
	require.NoError(t, err)

	claudePath := filepath.Join(root, "app", "CLAUDE.md")
	require.NoError(t, os.WriteFile(claudePath, []byte("custom content"), 0o644))

	_, err = m.Select(root)
	require.NoError(t, err)

	content, err := os.ReadFile(claudePath)
	require.NoError(t, err)
	assert.Equal(t, "custom content", string(content))

	m.Current().close()
}

func TestBuildMetadata_SummarizesCSVRowsAndColumns(t *testing.T) {
	root := t.TempDir()
	m := NewManager(context.Background())
	_, err := m.Select(root)
	require.NoError(t, err)
	proj := m.Current()
	defer proj.close()

	csvContent := "name,age\nalice,30\nbob,25\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "input", "people.csv"), []byte(csvContent), 0o644))

	require.NoError(t, proj.BuildMetadata())

	summary, err := os.ReadFile(filepath.Join(root, "app", "meta_data", "input_metadata.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "people.csv")
	assert.Contains(t, string(summary), "rows: 2")
	assert.Contains(t, string(summary), "name(string)")
	assert.Contains(t, string(summary), "age(int)")
}

func TestSelect_SecondManagerCannotLockSameRoot(t *testing.T) {
	root := t.TempDir()
	m1 := NewManager(context.Background())
	_, err := m1.Select(root)
	require.NoError(t, err)
	defer m1.Current().close()

	m2 := NewManager(context.Background())
	_, err = m2.Select(root)
	require.ErrorIs(t, err, ErrProjectLocked)
}
