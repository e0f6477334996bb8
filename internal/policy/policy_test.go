package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsForbiddenInApp(t *testing.T) {
	assert.True(t, IsForbiddenInApp("secret.csv", 10))
	assert.True(t, IsForbiddenInApp("table.xlsx", 10))
	assert.True(t, IsForbiddenInApp("config.json", 10))
	assert.False(t, IsForbiddenInApp("notes.txt", 100))
	assert.True(t, IsForbiddenInApp("big.txt", 51*1024))
	assert.False(t, IsForbiddenInApp("script.py", 0))
}

func TestIsForbiddenForSync(t *testing.T) {
	assert.True(t, IsForbiddenForSync("report.pdf"))
	assert.True(t, IsForbiddenForSync("data.csv"))
	assert.False(t, IsForbiddenForSync("script.py"))
	assert.False(t, IsForbiddenForSync("notes.txt"))
}

func TestIsProtectedFromPush(t *testing.T) {
	assert.True(t, IsProtectedFromPush("sync_server.py"))
	assert.True(t, IsProtectedFromPush("metadatafarmer.py"))
	assert.True(t, IsProtectedFromPush("CLAUDE.md"))
	assert.True(t, IsProtectedFromPush("meta_data/input_metadata.txt"))
	assert.False(t, IsProtectedFromPush("scripts/train.py"))
}

func TestPolicy_IsIgnoredDir(t *testing.T) {
	p := New("/project", nil)
	assert.True(t, p.IsIgnoredDir("__pycache__"))
	assert.True(t, p.IsIgnoredDir(".git"))
	assert.True(t, p.IsIgnoredDir("node_modules"))
	assert.False(t, p.IsIgnoredDir("scripts"))
}

func TestPolicy_IsIgnoredDir_CustomRules(t *testing.T) {
	p := New("/project", []string{"private/**"})
	assert.True(t, p.IsIgnoredDir("private/x.txt"))
	assert.False(t, p.IsIgnoredDir("public/x.txt"))
}
