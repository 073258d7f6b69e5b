package syncer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Stats aggregates counters for one sync pass. Counters are reset after the
// pass is logged. The mutex matters because watcher-triggered single-file
// syncs may run interleaved with a scheduled pass.
type Stats struct {
	mu        sync.Mutex
	processed int
	uploaded  int
	skipped   int
	errors    int
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed int `json:"processed"`
	Uploaded  int `json:"uploaded"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (s *Stats) AddProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *Stats) AddUploaded() {
	s.mu.Lock()
	s.uploaded++
	s.mu.Unlock()
}

func (s *Stats) AddSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *Stats) AddError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Processed: s.processed,
		Uploaded:  s.uploaded,
		Skipped:   s.skipped,
		Errors:    s.errors,
	}
}

// LogAndReset logs the counters for a completed pass and zeroes them for the
// next one. It returns the snapshot that was logged.
func (s *Stats) LogAndReset(logger zerolog.Logger, passID string, elapsed time.Duration) Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Processed: s.processed,
		Uploaded:  s.uploaded,
		Skipped:   s.skipped,
		Errors:    s.errors,
	}
	s.processed = 0
	s.uploaded = 0
	s.skipped = 0
	s.errors = 0
	s.mu.Unlock()

	logger.Info().
		Str("passId", passID).
		Int("processed", snap.Processed).
		Int("uploaded", snap.Uploaded).
		Int("skipped", snap.Skipped).
		Int("errors", snap.Errors).
		Dur("elapsed", elapsed).
		Msg("Sync pass completed")

	return snap
}
