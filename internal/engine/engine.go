package engine

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/config"
	"github.com/ASKEROS1449/router-auto-connect/internal/gate"
	"github.com/ASKEROS1449/router-auto-connect/internal/iprange"
	"github.com/ASKEROS1449/router-auto-connect/internal/journal"
	"github.com/ASKEROS1449/router-auto-connect/internal/metrics"
	"github.com/ASKEROS1449/router-auto-connect/internal/probe"
	"github.com/ASKEROS1449/router-auto-connect/internal/rank"
	log "github.com/sirupsen/logrus"
)

// Suppression reasons produced before the gate is consulted.
const (
	ReasonNotMainFrame = "not_main_frame"
	ReasonBadURL       = "bad_url"
	ReasonPinned       = "pinned"
	ReasonNotTarget    = "not_target"
	ReasonError        = "error"
)

// Engine runs the full decision pipeline for one navigation event:
// entry gate, address classification, candidate scan, ranking and the
// redirect gate.
type Engine struct {
	mu         sync.RWMutex
	classifier *iprange.Classifier
	prober     *probe.Prober
	ranker     *rank.Ranker
	candidates []probe.Candidate

	gate    *gate.Gate
	metrics *metrics.Collector
	journal *journal.Manager
}

func New(cfg *config.Config, metricsCollector *metrics.Collector, journalMgr *journal.Manager) (*Engine, error) {
	e := &Engine{
		gate:    gate.New(time.Duration(cfg.Engine.CooldownMs) * time.Millisecond),
		metrics: metricsCollector,
		journal: journalMgr,
	}
	if err := e.apply(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reconfigure re-derives the pipeline from a freshly loaded config.
// In-flight navigations finish against the components they started
// with; lock state survives the reload.
func (e *Engine) Reconfigure(cfg *config.Config) error {
	if err := e.apply(cfg); err != nil {
		return err
	}
	e.gate.SetCooldown(time.Duration(cfg.Engine.CooldownMs) * time.Millisecond)
	return nil
}

func (e *Engine) apply(cfg *config.Config) error {
	ranges, err := cfg.ParsedRanges()
	if err != nil {
		return err
	}

	candidates := make([]probe.Candidate, 0, len(cfg.Engine.Candidates))
	for _, spec := range cfg.Engine.Candidates {
		candidates = append(candidates, probe.Candidate{Port: spec.Port, Scheme: spec.Scheme})
	}

	weights := rank.Weights{Ports: make(map[int]int, len(cfg.Engine.PortPriority))}
	for portStr, prio := range cfg.Engine.PortPriority {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		weights.Ports[port] = prio
	}

	e.mu.Lock()
	e.classifier = iprange.NewClassifier(ranges)
	e.prober = probe.NewProber(cfg.Engine.ProbeTimeoutMs, e.metrics)
	e.ranker = rank.NewRanker(weights)
	e.candidates = candidates
	e.mu.Unlock()
	return nil
}

// HandleNavigation processes one top-level navigation attempt and
// returns either a redirect command or a suppression. It never returns
// an error and never panics out: any failure fails safe to SUPPRESS so
// the navigation proceeds to its original target.
func (e *Engine) HandleNavigation(ctx context.Context, navContext, rawURL string, mainFrame bool) (decision gate.Decision) {
	hostname := ""
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"nav_context": navContext,
				"url":         rawURL,
				"panic":       r,
			}).Error("Navigation handling failed")
			decision = gate.Decision{Reason: ReasonError}
		}
		e.record(navContext, hostname, rawURL, decision)
	}()

	if !mainFrame {
		return gate.Decision{Reason: ReasonNotMainFrame}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" || u.Scheme == "" {
		log.WithFields(log.Fields{
			"nav_context": navContext,
			"url":         rawURL,
		}).Debug("Ignoring malformed navigation URL")
		return gate.Decision{Reason: ReasonBadURL}
	}
	hostname = u.Hostname()

	// The user already picked an explicit endpoint; leave it alone.
	if gate.Pinned(u.Scheme, u.Port()) {
		return gate.Decision{Reason: ReasonPinned}
	}

	e.mu.RLock()
	classifier := e.classifier
	prober := e.prober
	ranker := e.ranker
	candidates := e.candidates
	e.mu.RUnlock()

	if !classifier.IsTarget(hostname) {
		return gate.Decision{Reason: ReasonNotTarget}
	}

	// Checking the lock before scanning keeps a fresh redirect from
	// re-triggering a full scan while the navigation settles.
	if e.gate.Locked(gate.Key(navContext, hostname)) {
		return gate.Decision{Reason: gate.ReasonLocked}
	}

	outcomes := prober.Scan(ctx, hostname, candidates)
	ranked := ranker.Rank(outcomes)

	var best *rank.Scored
	if len(ranked) > 0 {
		best = &ranked[0]
	}

	decision = e.gate.Decide(navContext, hostname, rawURL, best)

	if decision.Redirect {
		log.WithFields(log.Fields{
			"nav_context": navContext,
			"hostname":    hostname,
			"from":        rawURL,
			"to":          decision.TargetURL,
			"score":       best.Score,
		}).Info("Redirecting navigation")
	}
	return decision
}

func (e *Engine) record(navContext, hostname, rawURL string, decision gate.Decision) {
	action := "suppress"
	if decision.Redirect {
		action = "redirect"
	}

	if e.metrics != nil {
		e.metrics.RecordNavigationEvent(decision.Reason)
		if decision.Redirect {
			e.metrics.RecordRedirect()
		} else {
			e.metrics.RecordSuppressed(decision.Reason)
		}
	}

	if e.journal != nil {
		e.journal.Record(journal.Entry{
			NavContext: navContext,
			Hostname:   hostname,
			URL:        rawURL,
			Action:     action,
			TargetURL:  decision.TargetURL,
			Reason:     decision.Reason,
			DecidedAt:  time.Now(),
		})
	}
}
