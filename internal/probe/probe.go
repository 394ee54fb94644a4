// Package probe runs the periodic liveness self-check.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	rcron "github.com/robfig/cron/v3"

	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

const (
	// DefaultInterval is used when no positive interval is configured.
	DefaultInterval = time.Minute
	requestTimeout  = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

// Renderer produces the text checked on every run.
type Renderer func() (string, error)

// Result is the outcome of the latest run.
type Result struct {
	At         time.Time `json:"at"`
	OK         bool      `json:"ok"`
	Preview    string    `json:"preview,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Config configures a Service.
type Config struct {
	Interval time.Duration
	// URL, when set, is fetched with GET on every run.
	URL string
}

// Service schedules the self-check with cron. It never retries a failed
// run; the next tick simply runs again.
type Service struct {
	cfg     Config
	render  Renderer
	httpcli *http.Client
	logger  logSDK.Logger
	now     func() time.Time

	mu   sync.RWMutex
	last Result
}

// NewService constructs a probe Service.
func NewService(cfg Config, render Renderer, logger logSDK.Logger) (*Service, error) {
	if render == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if logger == nil {
		logger = log.Logger.Named("probe")
	}

	httpcli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(requestTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "new probe http client")
	}

	return &Service{
		cfg:     cfg,
		render:  render,
		httpcli: httpcli,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run schedules the probe and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	c := rcron.New(rcron.WithSeconds())
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { s.Check(ctx) }); err != nil {
		return errors.Wrapf(err, "schedule probe %q", spec)
	}

	c.Start()
	s.logger.Info("probe started", zap.Duration("interval", s.cfg.Interval), zap.String("url", s.cfg.URL))

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("probe stop timeout waiting for running check")
	}
	s.logger.Info("probe stopped")

	return nil
}

// Check performs one self-check and stores its outcome.
func (s *Service) Check(ctx context.Context) Result {
	res := Result{At: s.now().UTC(), OK: true}

	preview, err := s.render()
	if err != nil {
		res.OK = false
		res.Error = errors.Wrap(err, "render").Error()
	} else {
		res.Preview = preview
	}

	if res.OK && s.cfg.URL != "" {
		status, err := s.get(ctx)
		res.HTTPStatus = status
		if err != nil {
			res.OK = false
			res.Error = err.Error()
		}
	}

	if res.OK {
		s.logger.Debug("probe ok", zap.Int("http_status", res.HTTPStatus))
	} else {
		s.logger.Warn("probe failed", zap.String("error", res.Error))
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res
}

// Status returns the latest result; the zero Result means no run has happened yet.
func (s *Service) Status() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Service) get(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "new probe request")
	}

	resp, err := s.httpcli.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "get %s", s.cfg.URL)
	}
	defer resp.Body.Close() // nolint: errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, errors.Errorf("get %s: status %d", s.cfg.URL, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
