package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate 校验取值范围与后端选择，一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" {
			add("storage.mongo.uri is required for the mongo backend")
		}
	default:
		add("storage.backend must be one of memory, sqlite, mongo (got %q)", c.Storage.Backend)
	}
	switch c.Storage.Profiles {
	case ProfileBackend, BackendMemory, ProfileBadger:
	case ProfileRedis:
		if c.Storage.Redis.Addr == "" {
			add("storage.redis.addr is required for redis profiles")
		}
	default:
		add("storage.profiles must be one of backend, memory, redis, badger (got %q)", c.Storage.Profiles)
	}
	if c.Storage.ProfileTTL < 0 {
		add("storage.profile_ttl must be >= 0")
	}

	if u, err := url.Parse(c.Embedding.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		add("embedding.endpoint must be an absolute URL (got %q)", c.Embedding.Endpoint)
	}
	if c.Embedding.ShortTimeout <= 0 || c.Embedding.LongTimeout < c.Embedding.ShortTimeout {
		add("embedding timeouts must satisfy 0 < short_timeout <= long_timeout")
	}
	if f := c.Embedding.Breaker.FailureRatio; f <= 0 || f > 1 {
		add("embedding.breaker.failure_ratio must be in (0, 1] (got %v)", f)
	}

	w := c.Weighting
	for name, v := range map[string]float64{
		"like": w.Like, "save": w.Save, "search": w.Search,
		"read_count": w.ReadCount, "read_duration": w.ReadDuration, "read_progress": w.ReadProgress,
		"recent_multiplier": w.RecentMultiplier, "stale_multiplier": w.StaleMultiplier,
	} {
		if v < 0 {
			add("weighting.%s must not be negative (got %v)", name, v)
		}
	}
	if w.RecencyWindow <= 0 || w.StaleAge < w.RecencyWindow {
		add("weighting requires 0 < recency_window <= stale_age")
	}

	if c.Aggregation.Dimension < 0 || c.Aggregation.MaxSearches < 0 {
		add("aggregation.dimension and aggregation.max_searches must not be negative")
	}

	r := c.Ranking
	if r.MaxLimit < 1 || r.DefaultLimit < 1 || r.DefaultLimit > r.MaxLimit {
		add("ranking requires 1 <= default_limit <= max_limit (got %d, %d)", r.DefaultLimit, r.MaxLimit)
	}
	if r.CandidatePool < 1 || r.TimeBasedLimit < 1 {
		add("ranking.candidate_pool and ranking.time_based_limit must be positive")
	}
	if r.PrimaryWindow <= 0 || r.FallbackWindow < r.PrimaryWindow {
		add("ranking requires 0 < primary_window <= fallback_window")
	}

	s := c.Search
	if s.TopK < 1 || s.Limit < 1 || s.UserLimit < 1 {
		add("search.top_k, search.limit and search.user_limit must be positive")
	}
	if s.RelevanceFloor < -1 || s.RelevanceFloor > 1 {
		add("search.relevance_floor must be in [-1, 1] (got %v)", s.RelevanceFloor)
	}
	if s.EmbedTimeout <= 0 {
		add("search.embed_timeout must be positive")
	}

	if c.Ingest.Concurrency < 1 || c.Scheduler.Concurrency < 1 {
		add("ingest.concurrency and scheduler.concurrency must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		add("scheduler.interval must be positive when the scheduler is enabled")
	}
	if c.Server.Addr == "" {
		add("server.addr is required")
	}

	for _, nodes := range [][]string{nodeTypes(c.Ranking.PostNodes), nodeTypes(c.Search.PostNodes)} {
		for _, t := range nodes {
			if !knownNodeType(t) {
				add("unknown post node type %q (supported: %v)", t, SupportedNodeTypes())
			}
		}
	}
	return errors.Join(errs...)
}
