package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oura-sync/internal/auth"
	"oura-sync/internal/store"
)

type env struct {
	dir    string
	config string
	db     string
	token  string
}

func setup(t *testing.T, apiURL string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:    dir,
		config: filepath.Join(dir, "settings.yaml"),
		db:     filepath.Join(dir, "data", "oura.db"),
		token:  filepath.Join(dir, "token.json"),
	}
	yaml := fmt.Sprintf(`paths:
  db_file: %q
  token_file: %q
secrets:
  client_id: cid
  client_secret: csecret
oauth:
  callback_url: http://localhost/cb
  token_url: %s/token
range:
  start_date: "2024-01-01"
  end_date: "2024-01-07"
endpoints:
  daily_sleep: %s/daily_sleep
  workout: %s/workout
log:
  level: silent
`, e.db, e.token, apiURL, apiURL, apiURL)
	require.NoError(t, os.WriteFile(e.config, []byte(yaml), 0o600))
	require.NoError(t, auth.NewFileStore(e.token).Save(&auth.Token{
		AccessToken:  "tok",
		RefreshToken: "r",
		ExpiresAt:    float64(time.Now().Add(time.Hour).Unix()),
	}))
	return e
}

func fakeAPI(t *testing.T, failWorkout bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/daily_sleep":
			fmt.Fprint(w, `{"data":[{"day":"2024-01-01","score":81,"contributors":{"rem_sleep":70}}]}`)
		case "/workout":
			if failWorkout {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"data":[{"day":"2024-01-02","activity":"cycling"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestSync_DefaultCommandWritesDatabase(t *testing.T) {
	e := setup(t, fakeAPI(t, false).URL)
	report := filepath.Join(e.dir, "report.json")

	code, out, errOut := run(t, "--config", e.config, "--report", report)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "daily_sleep")
	require.FileExists(t, report)

	db, err := store.OpenSQLite(e.db)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Rows(context.Background(), "daily_sleep")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "70", rows[0]["contributors_rem_sleep"])
}

func TestSync_FailedEndpointExitsNonZeroButOthersPersist(t *testing.T) {
	e := setup(t, fakeAPI(t, true).URL)

	code, out, errOut := run(t, "sync", "--config", e.config)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "1 of 2 endpoints failed")
	require.Contains(t, out, "failed")

	db, err := store.OpenSQLite(e.db)
	require.NoError(t, err)
	defer db.Close()
	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "daily_sleep", stats[0].Name)
}

func TestSync_DryRunLeavesNoDatabase(t *testing.T) {
	e := setup(t, fakeAPI(t, false).URL)

	code, out, errOut := run(t, "sync", "--config", e.config, "--dry-run", "--only", "workout")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "workout")
	require.NotContains(t, out, "daily_sleep")
	_, err := os.Stat(e.db)
	require.True(t, os.IsNotExist(err))
}

func TestSync_MissingCredentials(t *testing.T) {
	e := setup(t, "http://127.0.0.1:0")
	b, err := os.ReadFile(e.config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.config, bytes.Replace(b, []byte("client_secret: csecret"), []byte(`client_secret: ""`), 1), 0o600))
	t.Setenv("OURA_CLIENT_SECRET", "")

	code, _, errOut := run(t, "sync", "--config", e.config)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "client_secret")
}

func TestStatus_ListsTablesAndToken(t *testing.T) {
	e := setup(t, fakeAPI(t, false).URL)
	code, _, errOut := run(t, "--config", e.config)
	require.Equal(t, 0, code, errOut)

	jsonPath := filepath.Join(e.dir, "status.json")
	code, out, errOut := run(t, "status", "--config", e.config, "--json", jsonPath)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "token: valid")
	require.Contains(t, out, "daily_sleep")
	require.Contains(t, out, "workout")
	require.FileExists(t, jsonPath)
}

func TestAuth_ValidTokenPrintsExpiry(t *testing.T) {
	e := setup(t, fakeAPI(t, false).URL)
	code, out, errOut := run(t, "auth", "--config", e.config)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "token valid -> valid")
}

func TestMissingConfigFile(t *testing.T) {
	code, _, errOut := run(t, "status", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "config file not found")
}
