package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oura-sync/internal/auth"
	"oura-sync/internal/errors"
	"oura-sync/internal/fetch"
	"oura-sync/internal/record"
	"oura-sync/internal/store"
)

type staticTokens struct {
	calls int32
	err   error
}

func (s *staticTokens) GetToken(context.Context) (*auth.Token, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Token{AccessToken: "tok", ExpiresAt: float64(time.Now().Add(time.Hour).Unix())}, nil
}

// failingStore accepts the first n records, then rejects writes.
type failingStore struct {
	n, seen int
}

func (f *failingStore) Upsert(_ context.Context, dataType string, _ *record.Flat) error {
	f.seen++
	if f.seen > f.n {
		return &errors.ErrPersistence{Table: dataType, Operation: "insert", Err: stderrors.New("disk I/O error")}
	}
	return nil
}

type api struct {
	srv  *httptest.Server
	hits int32
}

func newAPI(t *testing.T, bodies map[string]string) *api {
	t.Helper()
	a := &api{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&a.hits, 1)
		if r.Header.Get("Authorization") != "Bearer tok" ||
			r.URL.Query().Get("start_date") != "2024-01-01" || r.URL.Query().Get("end_date") != "2024-01-31" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func newRunner(t *testing.T, a *api, names []string, tokens TokenSource, s Store, conc int) *Runner {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	eps := make(map[string]string, len(names))
	for _, n := range names {
		eps[n] = a.srv.URL + "/" + n
	}
	return New(Options{
		Endpoints:   eps,
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Concurrency: conc,
	}, tokens, cl, s)
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	a := newAPI(t, map[string]string{
		"/daily_activity": `{"data":[{"day":"2024-01-01","steps":100},{"day":"2024-01-02","steps":200}]}`,
		"/workout":        `{"data":[{"day":"2024-01-03","activity":"run"}]}`,
	})
	mem := store.NewMemory()
	r := newRunner(t, a, []string{"daily_activity", "daily_sleep", "workout"}, &staticTokens{}, mem, 1)

	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Outcomes, 3)
	require.Equal(t, 1, rep.Failed())

	ok, _ := rep.Outcome("daily_activity")
	require.True(t, ok.Success)
	require.Equal(t, 2, ok.Stored)
	ok, _ = rep.Outcome("workout")
	require.True(t, ok.Success)

	bad, _ := rep.Outcome("daily_sleep")
	require.False(t, bad.Success)
	var fe *errors.ErrFetch
	require.True(t, stderrors.As(bad.Err, &fe))
	require.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	require.Contains(t, bad.Error, "500")

	rows, err := mem.Rows(context.Background(), "workout")
	require.NoError(t, err)
	require.Equal(t, "run", rows[0]["activity"])
}

func TestRun_RejectedRecordsAreSkipped(t *testing.T) {
	a := newAPI(t, map[string]string{
		"/daily_sleep": `{"data":[{"day":"2024-01-01","score":80},{"score":1},"not-an-object",{"day":"2024-01-02","contributors":{"deep_sleep":90}}]}`,
	})
	mem := store.NewMemory()
	r := newRunner(t, a, []string{"daily_sleep"}, &staticTokens{}, mem, 1)

	rep, err := r.Run(context.Background(), []string{"daily_sleep"})
	require.NoError(t, err)
	o, _ := rep.Outcome("daily_sleep")
	require.True(t, o.Success)
	require.Equal(t, 4, o.Fetched)
	require.Equal(t, 2, o.Stored)
	require.Equal(t, 2, o.Rejected)

	cols, err := mem.Columns(context.Background(), "daily_sleep")
	require.NoError(t, err)
	require.Contains(t, cols, "contributors_deep_sleep")
}

func TestRun_AuthenticationFailureFailsEachEndpoint(t *testing.T) {
	a := newAPI(t, nil)
	tokens := &staticTokens{err: &errors.ErrAuthentication{Reason: "prompt aborted"}}
	r := newRunner(t, a, []string{"a", "b"}, tokens, store.NewMemory(), 2)

	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Failed())
	require.Equal(t, int32(0), atomic.LoadInt32(&a.hits))
	require.Equal(t, int32(2), atomic.LoadInt32(&tokens.calls))
}

func TestRun_TokenFileFaultStopsRun(t *testing.T) {
	a := newAPI(t, nil)
	tokens := &staticTokens{err: &errors.ErrTokenFile{Path: "/tok", Op: "write", Err: stderrors.New("read-only file system")}}
	r := newRunner(t, a, []string{"a", "b", "c"}, tokens, store.NewMemory(), 1)

	rep, err := r.Run(context.Background(), []string{"a", "b", "c"})
	var tf *errors.ErrTokenFile
	require.True(t, stderrors.As(err, &tf), "got %v", err)
	require.Equal(t, 3, rep.Failed())
	require.Equal(t, int32(1), atomic.LoadInt32(&tokens.calls))
	o, _ := rep.Outcome("c")
	require.Contains(t, o.Error, "skipped")
}

func TestRun_PersistenceErrorAbortsEndpoint(t *testing.T) {
	a := newAPI(t, map[string]string{
		"/heartrate": `{"data":[{"day":"2024-01-01"},{"day":"2024-01-02"},{"day":"2024-01-03"}]}`,
		"/session":   `{"data":[]}`,
	})
	fs := &failingStore{n: 1}
	r := newRunner(t, a, []string{"heartrate", "session"}, &staticTokens{}, fs, 1)

	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	hr, _ := rep.Outcome("heartrate")
	require.False(t, hr.Success)
	require.Equal(t, 1, hr.Stored)
	var pe *errors.ErrPersistence
	require.True(t, stderrors.As(hr.Err, &pe))
	require.Equal(t, 2, fs.seen, "remaining records of the endpoint are not attempted")

	s, _ := rep.Outcome("session")
	require.True(t, s.Success)
}

func TestRun_UnknownEndpointMakesNoCalls(t *testing.T) {
	a := newAPI(t, nil)
	tokens := &staticTokens{}
	r := newRunner(t, a, []string{"daily_sleep"}, tokens, store.NewMemory(), 1)

	rep, err := r.Run(context.Background(), []string{"bogus", "bogus"})
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 1)
	require.Contains(t, rep.Outcomes[0].Error, "unknown endpoint")
	require.Equal(t, int32(0), atomic.LoadInt32(&tokens.calls))
	require.Equal(t, int32(0), atomic.LoadInt32(&a.hits))
}

func TestRun_MalformedBodyIsFetchFailure(t *testing.T) {
	a := newAPI(t, map[string]string{"/tag": `{"data":{"oops":1}}`})
	r := newRunner(t, a, []string{"tag"}, &staticTokens{}, store.NewMemory(), 1)
	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	o, _ := rep.Outcome("tag")
	var fe *errors.ErrFetch
	require.True(t, stderrors.As(o.Err, &fe))
}

func TestRun_ConcurrentEndpointsIntoSQLite(t *testing.T) {
	bodies := map[string]string{}
	var names []string
	for i := 0; i < 6; i++ {
		n := fmt.Sprintf("type_%d", i)
		names = append(names, n)
		bodies["/"+n] = `{"data":[{"day":"2024-01-01","v":1},{"day":"2024-01-01","v":2,"w":3}]}`
	}
	a := newAPI(t, bodies)
	db, err := store.OpenSQLite(t.TempDir() + "/oura.db")
	require.NoError(t, err)
	defer db.Close()

	r := newRunner(t, a, names, &staticTokens{}, db, 3)
	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, rep.Failed())

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 6)
	for _, st := range stats {
		require.Equal(t, 1, st.Rows)
		require.Equal(t, 4, st.Columns)
	}
}
