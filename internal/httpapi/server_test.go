package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/project"
)

func newTestServer(t *testing.T) (*Server, *project.Manager) {
	t.Helper()
	projects := project.NewManager(context.Background())
	return NewServer(projects, ""), projects
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReportsNoProjectSelected(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, false, out["project_selected"])
}

func TestHandleFilesRead_WithoutProjectSelectedReturnsConflict(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/files/read?path=app/CLAUDE.md", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFolderSelectThenFilesWriteAndRead_RoundTrips(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()
	root := t.TempDir()

	rec := doJSON(t, router, http.MethodPost, "/api/folder/select", map[string]string{"path": root})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/files/write", map[string]string{
		"path":    "app/notes.txt",
		"content": "hello bridge",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/files/read?path=app/notes.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "text", out["type"])
	assert.Equal(t, "hello bridge", out["content"])
}

func TestFilesRead_RejectsPathEscape(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()
	root := t.TempDir()

	rec := doJSON(t, router, http.MethodPost, "/api/folder/select", map[string]string{"path": root})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/files/read?path=../../etc/passwd", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDataframeRows_PreviewsCSV(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()
	root := t.TempDir()

	rec := doJSON(t, router, http.MethodPost, "/api/folder/select", map[string]string{"path": root})
	require.Equal(t, http.StatusOK, rec.Code)

	csvPath := filepath.Join(root, "input", "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,age\nalice,30\nbob,25\n"), 0o644))

	rec = doJSON(t, router, http.MethodGet, "/api/dataframe/rows?filePath=input/data.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 2, out["totalRows"])
}
