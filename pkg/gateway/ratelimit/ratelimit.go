package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int

	// MaxConcurrentChannels caps open interaction channels per client. 0 disables.
	MaxConcurrentChannels int

	// Operational bounds for the in-memory table (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter tracks a token bucket and a channel semaphore per client key.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	clients *expirable.LRU[string, *clientLimiter]
}

type clientLimiter struct {
	tokens   *rate.Limiter
	channels chan struct{}
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		clients: expirable.NewLRU[string, *clientLimiter](cfg.MaxEntries, nil, cfg.EntryTTL),
	}
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireRequest spends one token from the client's bucket.
func (l *Limiter) AcquireRequest(client string, now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	cl := l.getOrCreate(client)
	if cl.tokens == nil {
		return Decision{Allowed: true}
	}
	r := cl.tokens.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: 1}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: retryAfterSeconds(delay)}
	}
	return Decision{Allowed: true}
}

// AcquireChannel reserves one concurrent channel slot. The permit must be
// released when the channel closes.
func (l *Limiter) AcquireChannel(client string) Decision {
	if l == nil || l.cfg.MaxConcurrentChannels <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	cl := l.getOrCreate(client)
	select {
	case cl.channels <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-cl.channels }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(client string) *clientLimiter {
	if client == "" {
		client = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.clients.Get(client); ok {
		return cl
	}
	cl := &clientLimiter{
		channels: make(chan struct{}, max(1, l.cfg.MaxConcurrentChannels)),
	}
	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		cl.tokens = rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)
	}
	l.clients.Add(client, cl)
	return cl
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
