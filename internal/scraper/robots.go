package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/FranksOps/farescout/internal/transport"
	"github.com/temoto/robotstxt"
)

type getFunc func(ctx context.Context, rawURL string) (*transport.Page, error)

// RobotsTxtAuditor manages robots.txt fetching and enforcement.
type RobotsTxtAuditor struct {
	get    getFunc
	agent  string
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates an auditor that fetches robots.txt through get
// and evaluates rules for agent.
func NewRobotsTxtAuditor(get getFunc, agent string, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	if agent == "" {
		agent = "*"
	}
	return &RobotsTxtAuditor{
		get:    get,
		agent:  agent,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether targetURL may be fetched. An unreachable or
// unparsable robots.txt allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data := r.rules(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(r.agent).Test(path), nil
}

func (r *RobotsTxtAuditor) rules(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[host]; ok {
		return data
	}

	data, err := r.fetch(ctx, host+"/robots.txt")
	if err != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "host", host, "err", err)
	}
	r.cache[host] = data
	return data
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	page, err := r.get(ctx, robotsURL)
	if page == nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}
	if page.StatusCode >= 400 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}

	parsed, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return parsed, nil
}
