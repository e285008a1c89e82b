package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

func sum(data string) string {
	h := sha1.Sum([]byte(data))
	return hex.EncodeToString(h[:])
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a.jar", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("alpha")) })
	mux.HandleFunc("/b.jar", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("beta")) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testHTTP() *HTTP {
	return NewHTTP(hclog.New(&hclog.LoggerOptions{Level: hclog.Trace, Output: os.Stderr}))
}

func TestHTTPScheduleAndWait(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	h := testHTTP()

	err := h.ScheduleAndWait(context.Background(), "group", []Request{
		{URL: srv.URL + "/a.jar", Dest: filepath.Join(dir, "x", "a.jar"), SHA1: sum("alpha")},
		{URL: srv.URL + "/b.jar", Dest: filepath.Join(dir, "y"), Filename: "b.jar"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "x", "a.jar"))
	require.NoError(t, err)
	require.Equal(t, "alpha", string(data))
	require.FileExists(t, filepath.Join(dir, "y", "b.jar"))
}

func TestHTTPHashMismatchFails(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	h := testHTTP()
	h.Attempts = 1

	err := h.ScheduleAndWait(context.Background(), "bad", []Request{
		{URL: srv.URL + "/a.jar", Dest: filepath.Join(dir, "a.jar"), SHA1: sum("not alpha")},
	})
	require.ErrorIs(t, err, launcherr.ErrDownloadFailed)
	require.NoFileExists(t, filepath.Join(dir, "a.jar"))
}

func TestHTTPNotFound(t *testing.T) {
	srv := newServer(t)
	h := testHTTP()
	h.Attempts = 1

	_, err := h.Fetch(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, launcherr.ErrNetwork)
}

func TestHTTPBackgroundSchedule(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	h := testHTTP()

	require.NoError(t, h.Schedule(context.Background(), "bg", []Request{
		{URL: srv.URL + "/b.jar", Dest: filepath.Join(dir, "b.jar")},
	}))
	require.Empty(t, h.Wait())
	require.FileExists(t, filepath.Join(dir, "b.jar"))
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Schedule(context.Background(), "one", []Request{{URL: "u1"}}))
	require.NoError(t, r.ScheduleAndWait(context.Background(), "two", []Request{{URL: "u2"}, {URL: "u3"}}))

	groups := r.Groups()
	require.Len(t, groups, 2)
	require.False(t, groups[0].Waited)
	require.True(t, groups[1].Waited)
	require.Len(t, r.Requests(), 3)
}
