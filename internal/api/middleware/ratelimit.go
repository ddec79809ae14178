package middleware

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/chatdeck/internal/metrics"
)

const (
	violationLimit  = 10
	violationWindow = time.Hour
	autoBlockFor    = 24 * time.Hour
	sweepEvery      = 1000
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Pattern  string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool
}

// DefaultLimits covers the gateway routes and the proxied API. Patterns are
// "METHOD /path-prefix"; the longest matching pattern wins.
var DefaultLimits = []RateLimit{
	{"GET /api/csrf", 30, time.Minute, ipKey},
	{"POST /api/chats", 20, time.Minute, ipKey},
	{"POST /api/chats/", 60, time.Minute, ipKey},
	{"PATCH /api/chats/", 60, time.Minute, ipKey},
	{"DELETE /api/chats/", 30, time.Minute, ipKey},
	{"PUT /api/favorites", 30, time.Minute, ipKey},
	{"GET /api/", 300, time.Minute, ipKey},
	{"POST /api/", 120, time.Minute, ipKey},
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// decision is the outcome of one rate limit check.
type decision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

// ipSet matches single addresses and CIDR ranges.
type ipSet struct {
	addrs map[string]bool
	nets  []*net.IPNet
}

func parseIPSet(entries []string, logger zerolog.Logger) ipSet {
	set := ipSet{addrs: make(map[string]bool)}
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			_, n, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			set.nets = append(set.nets, n)
			continue
		}
		if ip := normalizeIP(entry); ip != "" {
			set.addrs[ip] = true
		}
	}
	return set
}

func (s ipSet) contains(addr string) bool {
	if s.addrs[addr] {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s ipSet) size() int { return len(s.addrs) + len(s.nets) }

// RateLimiter enforces per-client request budgets. With a Redis client it
// keeps a sliding window log shared by every instance; without one it falls
// back to in-process token buckets.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	blocker   *IPBlocker
	logger    zerolog.Logger
	whitelist ipSet
	autoBlock bool

	mu      sync.Mutex
	buckets map[string]*bucket
	nowFn   func() time.Time
	checks  int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter using DefaultLimits. client may be nil.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		blocker:   NewIPBlocker(client),
		logger:    logger,
		whitelist: parseIPSet(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled && client != nil,
		buckets:   make(map[string]*bucket),
		nowFn:     time.Now,
	}
	rl.SetLimits(DefaultLimits)

	if n := rl.whitelist.size(); n > 0 {
		logger.Info().Int("entries", n).Msg("rate limit whitelist configured")
	}
	if cfg.AutoBlockEnabled && client == nil {
		logger.Warn().Msg("auto-block needs redis, disabled")
	}
	return rl
}

// SetLimits replaces the limit table.
func (rl *RateLimiter) SetLimits(limits []RateLimit) {
	sorted := append([]RateLimit(nil), limits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Pattern) > len(sorted[j].Pattern)
	})
	rl.limits = sorted
}

// findLimit returns the longest pattern matching the request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	target := r.Method + " " + r.URL.Path
	for i := range rl.limits {
		if strings.HasPrefix(target, rl.limits[i].Pattern) {
			l := rl.limits[i]
			return &l
		}
	}
	return nil
}

// CheckAndIncrement records one request against key and reports whether it
// fits in limit requests per window, how many remain and when the window resets.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	var d decision
	if rl.client != nil {
		d = rl.slidingWindow(ctx, key, limit, window)
	} else {
		d = rl.tokenBucket(key, limit, window)
	}
	return d.allowed, d.remaining, d.reset
}

func (rl *RateLimiter) slidingWindow(ctx context.Context, key string, limit int, window time.Duration) decision {
	now := rl.nowFn()
	reset := now.Add(window)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 36),
	})
	pipe.PExpire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open when Redis is unavailable
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
		return decision{allowed: true, remaining: limit, reset: reset}
	}

	seen := int(count.Val())
	return decision{
		allowed:   seen < limit,
		remaining: max(limit-seen-1, 0),
		reset:     reset,
	}
}

// tokenBucket refills limit tokens per window, bursting up to limit.
func (rl *RateLimiter) tokenBucket(key string, limit int, window time.Duration) decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFn()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	if rl.checks++; rl.checks >= sweepEvery {
		rl.checks = 0
		for k, idle := range rl.buckets {
			if now.Sub(idle.lastSeen) > window {
				delete(rl.buckets, k)
			}
		}
	}

	allowed := b.limiter.AllowN(now, 1)
	return decision{
		allowed:   allowed,
		remaining: max(int(b.limiter.TokensAt(now)), 0),
		reset:     now.Add(window),
	}
}

func (rl *RateLimiter) securityEvent(level zerolog.Level, event, ip string, r *http.Request) *zerolog.Event {
	return rl.logger.WithLevel(level).
		Str("type", "security").
		Str("event", event).
		Str("ip", ip).
		Str("endpoint", r.URL.Path)
}

// Middleware rejects blocked clients with 403 and clients over budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.whitelist.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.securityEvent(zerolog.WarnLevel, "blocked_request", ip, r).Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, reset := rl.CheckAndIncrement(r.Context(), limit.KeyFunc(r), limit.Requests, limit.Window)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			h.Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()
			rl.securityEvent(zerolog.WarnLevel, "rate_limit_exceeded", ip, r).
				Str("limit", limit.Pattern).
				Msg("rate limit exceeded")
			rl.recordViolation(r.Context(), ip, r)
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recordViolation counts 429s per IP and blocks an IP that keeps hitting
// the limit.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string, r *http.Request) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to record rate limit violation")
		return
	}

	if n := count.Val(); n >= violationLimit {
		rl.blocker.Block(ctx, ip, autoBlockFor, "repeated rate limit violations")
		rl.securityEvent(zerolog.WarnLevel, "ip_auto_blocked", ip, r).
			Int64("violations", n).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker keeps temporary IP blocks in Redis. Every method is a no-op
// without a client.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates an IP blocker. client may be nil.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string { return "blocked:ip:" + ip }

// IsBlocked reports whether ip has an active block.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	if b.client == nil {
		return false
	}
	n, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return n > 0
}

// Block blocks ip for duration, storing the reason as the value.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	if b.client == nil {
		return
	}
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock lifts a block early.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	if b.client == nil {
		return
	}
	b.client.Del(ctx, blockKey(ip))
}
