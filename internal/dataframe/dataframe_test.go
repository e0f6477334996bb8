package dataframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead_InfersColumnTypes(t *testing.T) {
	path := writeCSV(t, "name,age,score\nalice,30,9.5\nbob,25,8.1\n")
	p, err := Read(path, nil, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalRows)
	assert.Equal(t, []string{"name", "age", "score"}, p.Columns)
	assert.Equal(t, "int", p.ColumnInfo[1].Type)
	assert.Equal(t, "float", p.ColumnInfo[2].Type)
}

func TestRead_FiltersAndSorts(t *testing.T) {
	path := writeCSV(t, "name,age\nalice,30\nbob,25\ncara,40\n")
	p, err := Read(path, []Filter{{Column: "age", Op: "gte", Value: "30"}}, &Sort{Column: "age", Descending: true}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, p.TotalRows)
	assert.Equal(t, "cara", p.Data[0]["name"])
	assert.Equal(t, "alice", p.Data[1]["name"])
}

func TestRead_PaginatesResults(t *testing.T) {
	path := writeCSV(t, "n\n1\n2\n3\n4\n5\n")
	p, err := Read(path, nil, nil, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalRows)
	assert.Len(t, p.Data, 2)
	assert.Equal(t, 3, p.Data[0]["n"])
}
