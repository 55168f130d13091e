package memory

import (
	"time"

	"github.com/nidhogg/nuka-cs/internal/metrics"
	"go.uber.org/zap"
)

// DecayReport summarizes a decay sweep.
type DecayReport struct {
	UsersSwept     int `json:"users_swept"`
	FactsRemoved   int `json:"facts_removed"`
	LedgersDropped int `json:"ledgers_dropped"`
}

// Decay removes long-term facts older than maxAgeHours relative to now.
// A user whose ledger becomes empty loses the ledger entirely.
// maxAgeHours <= 0 uses the configured decay window. The store never
// calls this itself; an external scheduler does.
func (s *Store) Decay(now time.Time, maxAgeHours float64) DecayReport {
	if maxAgeHours <= 0 {
		maxAgeHours = s.cfg.DecayHours
	}
	maxAge := time.Duration(maxAgeHours * float64(time.Hour))

	var report DecayReport
	for _, id := range s.userIDs() {
		u := s.user(id, false)
		if u == nil {
			continue
		}
		u.mu.Lock()
		if !u.hasLedger {
			u.mu.Unlock()
			continue
		}
		report.UsersSwept++

		kept := u.facts[:0]
		for _, f := range u.facts {
			if now.Sub(f.Timestamp) > maxAge {
				delete(u.hashes, f.ContentHash)
				report.FactsRemoved++
				continue
			}
			kept = append(kept, f)
		}
		u.facts = kept
		if len(u.facts) == 0 {
			u.facts = nil
			u.hashes = make(map[string]struct{})
			u.hasLedger = false
			report.LedgersDropped++
		}
		u.mu.Unlock()
	}

	metrics.MemoryFactsDecayed.Add(float64(report.FactsRemoved))
	s.logger.Info("memory decay sweep complete",
		zap.Int("users", report.UsersSwept),
		zap.Int("removed", report.FactsRemoved),
		zap.Int("ledgers_dropped", report.LedgersDropped),
		zap.Float64("max_age_hours", maxAgeHours))

	return report
}
