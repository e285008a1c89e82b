package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

const (
	defaultParallelism = 8
	defaultAttempts    = 3
	userAgent          = "launchkit/1.0"
)

// HTTP fetches requests over HTTP with bounded parallelism and verifies
// SHA1 when a request carries one.
type HTTP struct {
	Client      *http.Client
	Parallelism int
	Attempts    int
	Logger      hclog.Logger

	background sync.WaitGroup
	mu         sync.Mutex
	failures   map[string]error
}

var (
	_ Scheduler = (*HTTP)(nil)
	_ Fetcher   = (*HTTP)(nil)
)

// NewHTTP returns an HTTP scheduler with a 60 second per-request timeout.
func NewHTTP(logger hclog.Logger) *HTTP {
	return &HTTP{
		Client:      &http.Client{Timeout: 60 * time.Second},
		Parallelism: defaultParallelism,
		Attempts:    defaultAttempts,
		Logger:      logging.OrNull(logger).Named("download"),
	}
}

func (h *HTTP) Schedule(ctx context.Context, group string, reqs []Request) error {
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		err := h.run(context.WithoutCancel(ctx), group, reqs)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.failures == nil {
			h.failures = make(map[string]error)
		}
		if err != nil {
			h.failures[group] = err
		} else {
			delete(h.failures, group)
		}
	}()
	return nil
}

func (h *HTTP) ScheduleAndWait(ctx context.Context, group string, reqs []Request) error {
	return h.run(ctx, group, reqs)
}

// Wait blocks until all background groups have finished and returns the
// failure of each group that did not complete.
func (h *HTTP) Wait() map[string]error {
	h.background.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]error, len(h.failures))
	for k, v := range h.failures {
		out[k] = v
	}
	return out
}

func (h *HTTP) run(ctx context.Context, group string, reqs []Request) error {
	if len(reqs) == 0 {
		return nil
	}
	h.Logger.Info("📥 downloading group", "group", group, "files", len(reqs))
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.Parallelism, 1))
	for _, req := range reqs {
		g.Go(func() error {
			return h.fetchWithRetry(ctx, req)
		})
	}
	if err := g.Wait(); err != nil {
		h.Logger.Error("❌ download group failed", "group", group, "error", err)
		return fmt.Errorf("%w: %s: %w", launcherr.ErrDownloadFailed, group, err)
	}
	h.Logger.Info("✅ download group complete", "group", group, "duration", time.Since(start))
	return nil
}

func (h *HTTP) fetchWithRetry(ctx context.Context, req Request) error {
	attempts := max(h.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = h.fetchFile(ctx, req); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.Logger.Debug("🔁 retrying download", "url", req.URL, "attempt", i+1, "error", err)
	}
	return err
}

func (h *HTTP) fetchFile(ctx context.Context, req Request) error {
	dest := req.Dest
	if req.Filename != "" {
		dest = filepath.Join(req.Dest, req.Filename)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	body, err := h.open(ctx, req.URL)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hasher := sha1.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %v", launcherr.ErrNetwork, req.URL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if req.SHA1 != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(got, req.SHA1) {
			return fmt.Errorf("sha1 mismatch for %s: expected %s, got %s", req.URL, req.SHA1, got)
		}
	}
	return os.Rename(tmpName, dest)
}

// Fetch returns the body of url.
func (h *HTTP) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := h.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", launcherr.ErrNetwork, url, err)
	}
	return data, nil
}

func (h *HTTP) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", launcherr.ErrNetwork, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", launcherr.ErrNetwork, url, resp.StatusCode)
	}
	return resp.Body, nil
}
