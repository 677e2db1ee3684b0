package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", "", "--config", "", "--db-driver", "sqlite", "--db", dsn}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTracectlWorkflow(t *testing.T) {
	t.Setenv("GIN_MODE", "")
	t.Setenv("BLOB_DRIVER", "memory")
	dsn := "file:" + filepath.Join(t.TempDir(), "tracectl.db")

	out, err := run(t, dsn, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")

	out, err = run(t, dsn, "seed", "--farm", "Highland Orchard")
	require.NoError(t, err)
	assert.Contains(t, out, "Highland Orchard")

	out, err = run(t, dsn, "--json", "user", "create", "--username", "lan", "--email", "lan@fruittrace.test", "--role", "admin", "--password", "s3cret!")
	require.NoError(t, err)
	var user struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "lan", user.Username)
	assert.Equal(t, "admin", user.Role)

	_, err = run(t, dsn, "user", "create", "--username", "lan", "--email", "other@fruittrace.test", "--password", "s3cret!")
	assert.Error(t, err)

	out, err = run(t, dsn, "--json", "requests")
	require.NoError(t, err)
	var listing struct {
		Total  int64            `json:"total"`
		Counts map[string]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, int64(0), listing.Total)
	assert.Equal(t, int64(0), listing.Counts["pending"])
}

func TestUserCreateRequiresPassword(t *testing.T) {
	t.Setenv("TRACECTL_PASSWORD", "")
	_, err := run(t, "file:unused.db", "user", "create", "--username", "x", "--email", "x@fruittrace.test")
	assert.ErrorContains(t, err, "password is required")
}
