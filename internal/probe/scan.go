package probe

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Scan probes all candidates against one hostname concurrently and
// waits for every probe to settle. There is no short-circuit on first
// success: a later-declared better endpoint must not be skipped just
// because a worse one answered first.
//
// Outcomes are returned in candidate-list order so the ranker's stable
// tie-break sees a deterministic input regardless of completion order.
func (p *Prober) Scan(ctx context.Context, hostname string, candidates []Candidate) []Outcome {
	startTime := time.Now()
	outcomes := make([]Outcome, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			defer func() {
				// A single endpoint failure must never abort the scan.
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"hostname": hostname,
						"port":     cand.Port,
						"scheme":   cand.Scheme,
						"panic":    r,
					}).Error("Probe panicked, classifying as closed")
					outcomes[i] = Outcome{
						URL:    cand.URL(hostname),
						Scheme: cand.Scheme,
						Port:   cand.Port,
						Status: StatusClosed,
					}
				}
			}()
			outcomes[i] = p.Probe(ctx, hostname, cand)
		}(i, cand)
	}
	wg.Wait()

	duration := time.Since(startTime)
	if p.metrics != nil {
		p.metrics.RecordScan(duration.Seconds())
	}
	log.WithFields(log.Fields{
		"hostname":   hostname,
		"candidates": len(candidates),
		"duration":   duration.Milliseconds(),
	}).Debug("Scan complete")

	return outcomes
}
