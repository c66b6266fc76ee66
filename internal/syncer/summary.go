package syncer

import (
	"fmt"
	"time"
)

// Summary describes what one run did.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool

	Relogin bool
	NoData  bool
	Fetched int
	Seeded  int
	Archive string

	Inserted    int
	Updated     int
	RowsSkipped int
	RowsFailed  int

	Resolved      int
	Failed        int
	OrdersSkipped int
}

// Counters returns the run metrics keyed by metric name.
func (s *Summary) Counters() map[string]int {
	return map[string]int{
		"OrdersInserted": s.Inserted,
		"OrdersUpdated":  s.Updated,
		"OrdersResolved": s.Resolved,
		"OrdersFailed":   s.Failed + s.RowsFailed,
		"OrdersSkipped":  s.OrdersSkipped + s.RowsSkipped,
	}
}

func (s *Summary) String() string {
	outcome := "ok"
	if !s.Success {
		outcome = "failed"
	}
	return fmt.Sprintf("run %s %s: fetched=%d inserted=%d updated=%d resolved=%d unresolved_failed=%d skipped=%d",
		s.RunID, outcome, s.Fetched, s.Inserted, s.Updated, s.Resolved, s.Failed, s.OrdersSkipped+s.RowsSkipped)
}
