package agent

import (
	"sync"
	"time"

	"github.com/arc-self/board-hub/pkg/resilience"
)

// tokenBudget is a fixed-window per-user token ceiling: Charge fails once
// the window's spend reaches the limit, and the window resets on the first
// charge after it elapses. A fixed window is a looser bound than a sliding
// one, but matches the "resets on restart, in-memory only" tolerance the
// rate limits are specified with.
type tokenBudget struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	spent      int
	windowOpen time.Time
	now        func() time.Time
}

func newTokenBudget(limit int, window time.Duration) *tokenBudget {
	return &tokenBudget{limit: limit, window: window, now: time.Now}
}

// Charge reports whether n more tokens fit in the current window, and
// records them if so.
func (b *tokenBudget) Charge(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.windowOpen.IsZero() || now.Sub(b.windowOpen) >= b.window {
		b.windowOpen = now
		b.spent = 0
	}
	if b.spent+n > b.limit {
		return false
	}
	b.spent += n
	return true
}

// limiters holds the process-wide, in-memory AI rate-limit state: one
// token-bucket limiter per user for ai:prompt requests, one shared global
// limiter, and one token budget per user. The global limiter is charged
// once per ai:prompt request (in AllowPrompt), not once per provider call,
// so a multi-round prompt counts as one against it.
type limiters struct {
	cfg Config

	mu         sync.Mutex
	perUser    map[string]*resilience.Limiter
	tokenBudgets map[string]*tokenBudget
	global     *resilience.Limiter
}

func newLimiters(cfg Config) *limiters {
	return &limiters{
		cfg:          cfg,
		perUser:      make(map[string]*resilience.Limiter),
		tokenBudgets: make(map[string]*tokenBudget),
		global:       resilience.NewLimiter(resilience.LimiterOpts{Rate: float64(cfg.GlobalPerMinute) / 60, Burst: cfg.GlobalPerMinute}),
	}
}

func (l *limiters) userLimiter(userID string) *resilience.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perUser[userID]
	if !ok {
		lim = resilience.NewLimiter(resilience.LimiterOpts{Rate: float64(l.cfg.PerUserPerMinute) / 60, Burst: l.cfg.PerUserPerMinute})
		l.perUser[userID] = lim
	}
	return lim
}

func (l *limiters) userTokenBudget(userID string) *tokenBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.tokenBudgets[userID]
	if !ok {
		b = newTokenBudget(l.cfg.UserTokensPerHour, time.Hour)
		l.tokenBudgets[userID] = b
	}
	return b
}

// AllowPrompt checks the per-user and global ai:prompt limits. It does not
// consume the token budget — that happens per-round, once usage is known.
func (l *limiters) AllowPrompt(userID string) bool {
	return l.userLimiter(userID).Allow() && l.global.Allow()
}
