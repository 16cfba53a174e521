// Package limiter implements per-session admission control for inbound frames.
//
// Each session gets a Gate made of two token buckets. The primary bucket
// charges every frame its topic's cost. When it refuses a frame the notice
// bucket decides whether the client is told about it, so refusal notices can
// not flood the connection either.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default notice bucket: 50 notices per 15 seconds.
const (
	DefaultNoticeMax    = 50
	DefaultNoticeWindow = 15 * time.Second
)

// Config defines the buckets of a gate and the per-topic costs.
type Config struct {
	// Enabled determines if rate limiting is active
	Enabled bool
	// Max is the primary bucket capacity
	Max int
	// Window is the time it takes to refill an empty primary bucket
	Window time.Duration
	// NoticeMax and NoticeWindow size the notice bucket
	NoticeMax    int
	NoticeWindow time.Duration
	// Costs maps a topic to the tokens it consumes; unlisted topics cost 1
	Costs map[string]int
	// Quiet topics are dropped without a notice when refused
	Quiet []string
}

// DefaultConfig returns 100 frames per 10 seconds with the default notice bucket.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Max:          100,
		Window:       10 * time.Second,
		NoticeMax:    DefaultNoticeMax,
		NoticeWindow: DefaultNoticeWindow,
		Costs:        map[string]int{},
		Quiet:        []string{"p", "heartbeat"},
	}
}

// Disabled returns a configuration that admits everything.
func Disabled() Config {
	return Config{Enabled: false}
}

// Cost returns the tokens a frame of topic consumes.
func (c Config) Cost(topic string) int {
	if n, ok := c.Costs[topic]; ok && n >= 0 {
		return n
	}
	return 1
}

// IsQuiet reports whether refusals of topic are dropped silently.
func (c Config) IsQuiet(topic string) bool {
	for _, q := range c.Quiet {
		if q == topic {
			return true
		}
	}
	return false
}

// Verdict is the outcome of an admission attempt.
type Verdict int

const (
	// Admitted frames are dispatched.
	Admitted Verdict = iota
	// Dropped frames were refused and belong to a quiet topic.
	Dropped
	// Notify frames were refused and the client should receive a notice.
	Notify
	// Suppressed frames were refused and the notice bucket is empty too.
	Suppressed
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Dropped:
		return "dropped"
	case Notify:
		return "notify"
	case Suppressed:
		return "suppressed"
	}
	return "unknown"
}

// Gate is the admission state of one session.
type Gate struct {
	cfg     Config
	primary *Bucket
	notice  *Bucket
}

// New creates a gate. A disabled config yields a gate that admits everything.
func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg}
	if !cfg.Enabled {
		return g
	}
	noticeMax, noticeWindow := cfg.NoticeMax, cfg.NoticeWindow
	if noticeMax <= 0 || noticeWindow <= 0 {
		noticeMax, noticeWindow = DefaultNoticeMax, DefaultNoticeWindow
	}
	g.primary = NewBucket(cfg.Max, cfg.Window)
	g.notice = NewBucket(noticeMax, noticeWindow)
	return g
}

// Admit charges a frame of topic.
func (g *Gate) Admit(topic string) Verdict {
	return g.AdmitAt(topic, time.Now())
}

// AdmitAt is Admit at a given instant.
func (g *Gate) AdmitAt(topic string, now time.Time) Verdict {
	if g.primary == nil {
		return Admitted
	}
	if g.primary.TakeAt(g.cfg.Cost(topic), now) {
		return Admitted
	}
	if g.cfg.IsQuiet(topic) {
		return Dropped
	}
	if g.notice.TakeAt(1, now) {
		return Notify
	}
	return Suppressed
}

// Bucket is a token bucket that refills max tokens evenly over window. On
// top of the drip, at most max tokens are handed out per window, counted
// from the first take after the previous window expired.
type Bucket struct {
	limiter *rate.Limiter
	max     int
	window  time.Duration

	mu    sync.Mutex
	start time.Time
	used  int
}

// NewBucket creates a full bucket. A non-positive max yields a bucket that
// refuses everything.
func NewBucket(max int, window time.Duration) *Bucket {
	if max <= 0 || window <= 0 {
		return &Bucket{limiter: rate.NewLimiter(0, 0)}
	}
	return &Bucket{
		limiter: rate.NewLimiter(rate.Limit(float64(max)/window.Seconds()), max),
		max:     max,
		window:  window,
	}
}

// TakeAt removes n tokens at now if they are available.
func (b *Bucket) TakeAt(n int, now time.Time) bool {
	if n == 0 {
		return true
	}
	if b.max <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.start.IsZero() || now.Sub(b.start) >= b.window {
		b.start = now
		b.used = 0
	}
	if b.used+n > b.max {
		return false
	}
	if !b.limiter.AllowN(now, n) {
		return false
	}
	b.used += n
	return true
}

// Take removes n tokens if they are available.
func (b *Bucket) Take(n int) bool {
	return b.TakeAt(n, time.Now())
}

// TokensAt returns the tokens available at now.
func (b *Bucket) TokensAt(now time.Time) float64 {
	return b.limiter.TokensAt(now)
}
