package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `{
  "students": [
    {"id": "s1", "name": "Alex Morgan", "risk_score": 82, "trend": "up", "predicted_risk": 88},
    {"id": "s2", "name": "Jamie Lee", "risk_score": 65, "trend": "stable"},
    {"id": "s3", "name": "Sam Alvarez", "risk_score": 140, "trend": "sideways"},
    {"id": "", "name": "Nobody", "risk_score": 10}
  ]
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))
	return path
}

func TestClassify_Table(t *testing.T) {
	out, err := execute(t, "", "classify", writeExport(t))
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[0], "SCORE")
	assert.Contains(t, lines[1], "Sam Alvarez")
	assert.Contains(t, lines[1], "100")
	assert.Contains(t, lines[2], "Alex Morgan")
	assert.Contains(t, lines[2], "+6")
	assert.Contains(t, lines[3], "Medium Risk")

	assert.Contains(t, out, "3 students: 2 high, 1 medium, 0 low, 1 rising")
	assert.Contains(t, out, "clamped: student s3: risk_score=140 out of range, clamped to 100")
	assert.Contains(t, out, `rejected: student #3 ""`)
}

func TestClassify_JSONWithFilters(t *testing.T) {
	out, err := execute(t, export, "classify", "-", "--band", "high", "--query", "MORGAN", "--json")
	require.NoError(t, err)

	var res classifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Students, 1)
	assert.Equal(t, "s1", res.Students[0].ID)
	assert.Equal(t, "Increasing Risk", res.Students[0].Trend)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Len(t, res.Rejected, 1)
}

func TestClassify_UnknownBand(t *testing.T) {
	_, err := execute(t, export, "classify", "-", "--band", "extreme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown band filter")
}

func TestClassify_MalformedExport(t *testing.T) {
	_, err := execute(t, "{not json", "classify", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed batch")
}

func TestImport_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("APP_ENV", "development")

	_, err := execute(t, export, "import", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database configured")
}

func TestMigrate_RejectsArguments(t *testing.T) {
	_, err := execute(t, "", "migrate", "status", "extra")
	require.Error(t, err)
}
