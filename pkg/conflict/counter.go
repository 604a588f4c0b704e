package conflict

import (
	"sync"
	"time"

	"github.com/cuemby/portguard/pkg/clock"
)

// recentConflictWindow is how far back RollingCounter.Count looks.
const recentConflictWindow = 5 * time.Minute

// RollingCounter tracks how many conflicts were detected in the trailing
// window, replacing the source's fabricated "10% of cache size" estimate
// (spec §9 Open Question 1) with an actual count of observed events.
type RollingCounter struct {
	mu    sync.Mutex
	clock clock.Clock
	times []time.Time
}

// NewRollingCounter creates a counter that evaluates staleness against clk.
func NewRollingCounter(clk clock.Clock) *RollingCounter {
	return &RollingCounter{clock: clk}
}

// Record marks a conflict as having just occurred.
func (c *RollingCounter) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times = append(c.times, c.clock.Now())
}

// Count returns how many Record calls fall within the trailing window,
// pruning anything older as a side effect.
func (c *RollingCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return len(c.times)
}

func (c *RollingCounter) prune() {
	cutoff := c.clock.Now().Add(-recentConflictWindow)
	i := 0
	for ; i < len(c.times); i++ {
		if c.times[i].After(cutoff) {
			break
		}
	}
	c.times = c.times[i:]
}
