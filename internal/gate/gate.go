package gate

import (
	"strings"
	"sync"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/rank"
)

// Suppression reasons reported in decisions.
const (
	ReasonLocked      = "locked"
	ReasonNoEndpoint  = "no_endpoint"
	ReasonAlreadyBest = "already_best"
	ReasonRedirect    = "redirect"
)

// Decision is the gate's answer for one navigation event: either a
// redirect command or a suppression with the reason for it.
type Decision struct {
	Redirect  bool   `json:"redirect"`
	TargetURL string `json:"target_url,omitempty"`
	Reason    string `json:"reason"`
}

// Key derives the lock key for a (navigation-context, hostname) pair.
func Key(navContext, hostname string) string {
	return navContext + "|" + hostname
}

// Pinned reports whether the navigation already names an explicit
// endpoint choice. Anything that is not plain HTTP on the default port
// is left alone: the user has already picked an endpoint.
func Pinned(scheme, port string) bool {
	if scheme != "http" {
		return true
	}
	return port != "" && port != "80"
}

// Gate suppresses repeated redirects for the same lock key within a
// cooldown window. Expired entries are swept lazily on access; there is
// no background timer.
type Gate struct {
	mu       sync.Mutex
	locks    map[string]time.Time
	cooldown time.Duration
}

func New(cooldown time.Duration) *Gate {
	return &Gate{
		locks:    make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// SetCooldown changes the cooldown for future locks. Existing entries
// keep their current expiry.
func (g *Gate) SetCooldown(cooldown time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown = cooldown
}

// Locked reports whether the key is in cooldown. A hit reschedules the
// key's expiry to fire one full cooldown from now.
func (g *Gate) Locked(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.sweep(now)

	if _, ok := g.locks[key]; !ok {
		return false
	}
	g.locks[key] = now.Add(g.cooldown)
	return true
}

// Decide applies the redirect policy for one navigation. currentURL is
// matched against the best candidate's URL by case-sensitive prefix:
// if the navigation is already at (or under) the best target, nothing
// is issued.
func (g *Gate) Decide(navContext, hostname, currentURL string, best *rank.Scored) Decision {
	key := Key(navContext, hostname)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.sweep(now)

	// Check and lock under one critical section so two concurrent
	// navigations for the same key cannot both redirect.
	if _, ok := g.locks[key]; ok {
		g.locks[key] = now.Add(g.cooldown)
		return Decision{Reason: ReasonLocked}
	}
	if best == nil {
		return Decision{Reason: ReasonNoEndpoint}
	}
	if strings.HasPrefix(currentURL, best.URL) {
		return Decision{Reason: ReasonAlreadyBest}
	}

	g.locks[key] = now.Add(g.cooldown)
	return Decision{
		Redirect:  true,
		TargetURL: best.URL,
		Reason:    ReasonRedirect,
	}
}

// sweep drops expired entries. Caller holds g.mu.
func (g *Gate) sweep(now time.Time) {
	for key, expiry := range g.locks {
		if now.After(expiry) {
			delete(g.locks, key)
		}
	}
}
