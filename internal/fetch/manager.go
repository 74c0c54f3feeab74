package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
	"github.com/datallboy/gotrack/internal/throttle"
)

// Manager opens media payloads, holding at most MaxConnections bodies open at once.
type Manager struct {
	client    *http.Client
	semaphore chan struct{}
	limiter   *throttle.Limiter
	log       *logger.Logger
}

func NewManager(maxConnections int, headerTimeout time.Duration, limiter *throttle.Limiter, log *logger.Logger) *Manager {
	if maxConnections <= 0 {
		maxConnections = 1
	}

	// No overall client timeout: a real-time paced body can legitimately stay open for minutes.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ResponseHeaderTimeout: headerTimeout,
		MaxIdleConnsPerHost:   maxConnections,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Manager{
		client:    &http.Client{Transport: transport},
		semaphore: make(chan struct{}, maxConnections),
		limiter:   limiter,
		log:       log,
	}
}

// Probe issues a HEAD request and returns the advertised content length.
func (m *Manager) Probe(ctx context.Context, url string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if err := statusError(resp); err != nil {
		return 0, err
	}

	m.log.Debug("Probe %s: %d bytes", url, resp.ContentLength)
	return resp.ContentLength, nil
}

// Open returns the payload body. The connection slot is held until the body is closed.
func (m *Manager) Open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	release := func() { <-m.semaphore }

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		release()
		return nil, 0, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		release()
		return nil, 0, err
	}

	if err := statusError(resp); err != nil {
		resp.Body.Close()
		release()
		return nil, 0, err
	}

	return &releaseReader{
		Reader:  m.limiter.Reader(ctx, resp.Body),
		body:    resp.Body,
		onClose: release,
	}, resp.ContentLength, nil
}

// TotalCapacity returns the maximum number of concurrent payload bodies.
func (m *Manager) TotalCapacity() int {
	return cap(m.semaphore)
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s returned %d", domain.ErrSourceNotFound, resp.Request.URL.Host, resp.StatusCode)
	default:
		return fmt.Errorf("media host returned status: %d", resp.StatusCode)
	}
}

type releaseReader struct {
	io.Reader
	body    io.Closer
	onClose func()
}

func (r *releaseReader) Close() error {
	defer func() {
		if r.onClose != nil {
			r.onClose()
			r.onClose = nil
		}
	}()
	return r.body.Close()
}
