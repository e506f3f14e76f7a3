package export

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oura-sync/internal/model"
)

func TestReportToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	rep := model.Report{
		RunID:     "run-1",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		Outcomes: []model.Outcome{
			{Endpoint: "daily_sleep", Success: true, Stored: 3, Duration: time.Second},
			{Endpoint: "workout", Error: "fetch workout: http status 500", Err: stderrors.New("boom")},
		},
	}
	require.NoError(t, ReportToJSON(rep, path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, "run-1", got["run_id"])
	outcomes := got["outcomes"].([]any)
	require.Len(t, outcomes, 2)
	second := outcomes[1].(map[string]any)
	require.Equal(t, false, second["success"])
	require.Equal(t, "fetch workout: http status 500", second["error"])
	require.NotContains(t, second, "Err")
}

func TestStatusToJSON_EmptyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, StatusToJSON("oura.db", nil, path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Status
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, "oura.db", got.Database)
	require.NotNil(t, got.Tables)
	require.Empty(t, got.Tables)
}

func TestReportToJSON_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	require.Error(t, ReportToJSON(model.Report{}, filepath.Join(blocker, "r.json")))
}
