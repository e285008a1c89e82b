package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Level: hclog.Trace})
}

func TestOfflineUUIDIsStable(t *testing.T) {
	a := OfflineUUID("Steve")
	require.Equal(t, a, OfflineUUID("Steve"))
	require.NotEqual(t, a, OfflineUUID("Alex"))
	require.Equal(t, 5, int(a.Version()))

	acc, err := NewOffline(" Steve ")
	require.NoError(t, err)
	require.Equal(t, "Steve", acc.Name)
	require.Equal(t, a.String(), acc.UUID)
	require.Len(t, acc.CompactUUID(), 32)
	require.Equal(t, "legacy", acc.UserType())

	_, err = NewOffline("  ")
	require.Error(t, err)
}

func TestStoreSelectionAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := OpenStore(path, testLogger())
	require.NoError(t, err)

	_, err = s.Selected("")
	require.ErrorIs(t, err, launcherr.ErrAccountNotFound)

	steve, _ := NewOffline("Steve")
	alex, _ := NewOffline("Alex")
	require.NoError(t, s.Add(steve))
	require.NoError(t, s.Add(alex))

	got, err := s.Selected("")
	require.NoError(t, err)
	require.Equal(t, steve.ID, got.ID, "first account becomes selected")

	got, err = s.Selected(alex.ID)
	require.NoError(t, err)
	require.Equal(t, alex.ID, got.ID)

	require.NoError(t, s.Select(alex.ID))
	reopened, err := OpenStore(path, testLogger())
	require.NoError(t, err)
	require.Len(t, reopened.List(), 2)
	got, err = reopened.Selected("")
	require.NoError(t, err)
	require.Equal(t, "Alex", got.Name)

	require.NoError(t, reopened.Remove(alex.ID))
	_, err = reopened.Selected("")
	require.ErrorIs(t, err, launcherr.ErrAccountNotFound)
	require.ErrorIs(t, reopened.Select("missing"), launcherr.ErrAccountNotFound)

	found, err := reopened.Find("steve")
	require.NoError(t, err)
	require.Equal(t, steve.ID, found.ID)
}

func TestValidateMicrosoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"abc","name":"Steve"}`))
	}))
	defer srv.Close()

	v, err := NewValidator(srv.Client(), testLogger())
	require.NoError(t, err)
	v.ProfileURL = srv.URL

	ok, err := v.Validate(context.Background(), Account{ID: "m", Kind: KindMicrosoft, AccessToken: "good"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.Validate(context.Background(), Account{ID: "m", Kind: KindMicrosoft, AccessToken: "expired"})
	require.NoError(t, err)
	require.False(t, ok, "an expired token is a normal false")
}

func TestValidateThirdPartyAndServerCache(t *testing.T) {
	var metaHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/yggdrasil/authserver/validate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body["accessToken"] == "good" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/api/yggdrasil", func(w http.ResponseWriter, r *http.Request) {
		metaHits.Add(1)
		_, _ = w.Write([]byte(`{"meta":{"serverName":"Test Skins"},"skinDomains":["example.com"]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, err := NewValidator(srv.Client(), testLogger())
	require.NoError(t, err)
	server := srv.URL + "/api/yggdrasil"

	ok, err := v.Validate(context.Background(), Account{ID: "t", Kind: KindThirdParty, AccessToken: "good", AuthServerURL: server})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = v.Validate(context.Background(), Account{ID: "t", Kind: KindThirdParty, AccessToken: "bad", AuthServerURL: server + "/"})
	require.NoError(t, err)
	require.False(t, ok)

	for range 3 {
		s, err := v.AuthServer(context.Background(), server+"/")
		require.NoError(t, err)
		require.Equal(t, "Test Skins", s.Name)
	}
	require.EqualValues(t, 1, metaHits.Load())
}

func TestValidateOfflineAndTransportErrors(t *testing.T) {
	v, err := NewValidator(failingDoer{}, testLogger())
	require.NoError(t, err)

	ok, err := v.Validate(context.Background(), Account{Kind: KindOffline})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = v.Validate(context.Background(), Account{Kind: KindMicrosoft, AccessToken: "x"})
	require.ErrorIs(t, err, launcherr.ErrNetwork)

	_, err = v.AuthServer(context.Background(), "https://auth.invalid/api/yggdrasil")
	require.ErrorIs(t, err, launcherr.ErrNetwork)
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}
