package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

// MinecraftProfileURL answers 2xx for a live Microsoft access token.
const MinecraftProfileURL = "https://api.minecraftservices.com/minecraft/profile"

// authServerCacheSize bounds the auth-server metadata cache.
const authServerCacheSize = 16

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthServer is the metadata a yggdrasil server publishes at its root.
// Raw keeps the exact document for prefetching into the game.
type AuthServer struct {
	URL  string
	Name string
	Raw  []byte
}

// Validator checks stored credentials. An expired credential is reported
// as false; transport failures and malformed answers are errors.
type Validator struct {
	Client     Doer
	ProfileURL string
	Logger     hclog.Logger

	servers *lru.Cache[string, AuthServer]
}

// NewValidator returns a Validator using client, or a 15 second timeout
// client when nil.
func NewValidator(client Doer, logger hclog.Logger) (*Validator, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	servers, err := lru.New[string, AuthServer](authServerCacheSize)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Client:     client,
		ProfileURL: MinecraftProfileURL,
		Logger:     logging.OrNull(logger).Named("account"),
		servers:    servers,
	}, nil
}

// Validate reports whether a's credential is still accepted.
func (v *Validator) Validate(ctx context.Context, a Account) (bool, error) {
	logger := logging.OrNull(v.Logger).With("account", a.ID, "kind", a.Kind)
	var (
		ok  bool
		err error
	)
	switch a.Kind {
	case KindOffline:
		return true, nil
	case KindMicrosoft:
		ok, err = v.validateMicrosoft(ctx, a)
	case KindThirdParty:
		ok, err = v.validateThirdParty(ctx, a)
	default:
		return false, fmt.Errorf("unknown account kind %q", a.Kind)
	}
	if err != nil {
		logger.Error("❌ account validation failed", "error", err)
		return false, err
	}
	logger.Debug("🔑 account validated", "valid", ok)
	return ok, nil
}

func (v *Validator) validateMicrosoft(ctx context.Context, a Account) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.ProfileURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+a.AccessToken)
	return v.status(req)
}

func (v *Validator) validateThirdParty(ctx context.Context, a Account) (bool, error) {
	if a.AuthServerURL == "" {
		return false, fmt.Errorf("third-party account %s has no auth server", a.ID)
	}
	body, err := json.Marshal(map[string]string{"accessToken": a.AccessToken})
	if err != nil {
		return false, err
	}
	url := strings.TrimSuffix(a.AuthServerURL, "/") + "/authserver/validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	return v.status(req)
}

func (v *Validator) status(req *http.Request) (bool, error) {
	resp, err := v.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", launcherr.ErrNetwork, req.URL.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// AuthServer returns the metadata of the yggdrasil server at url,
// fetching it on first use.
func (v *Validator) AuthServer(ctx context.Context, url string) (AuthServer, error) {
	url = strings.TrimSuffix(url, "/")
	if s, ok := v.servers.Get(url); ok {
		return s, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AuthServer{}, err
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return AuthServer{}, fmt.Errorf("%w: auth server %s: %v", launcherr.ErrNetwork, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return AuthServer{}, fmt.Errorf("%w: auth server %s: %s", launcherr.ErrNetwork, url, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return AuthServer{}, fmt.Errorf("%w: auth server %s: %v", launcherr.ErrNetwork, url, err)
	}

	var meta struct {
		Meta struct {
			ServerName string `json:"serverName"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return AuthServer{}, fmt.Errorf("auth server %s: invalid metadata: %w", url, err)
	}
	s := AuthServer{URL: url, Name: meta.Meta.ServerName, Raw: raw}
	v.servers.Add(url, s)
	logging.OrNull(v.Logger).Debug("🌐 auth server metadata loaded", "url", url, "name", s.Name)
	return s, nil
}
