package api

import (
	"sync"
	"time"

	"freightsched/internal/sched"
)

// RunReport is the outcome of one scheduling run. Runs are not persisted;
// reports live in this in-process cache for the lifetime of the server.
type RunReport struct {
	RunID      string          `json:"runId"`
	TenantID   string          `json:"tenantId"`
	ScheduleID string          `json:"scheduleId"`
	BatchID    string          `json:"batchId"`
	StartedAt  time.Time       `json:"startedAt"`
	Stats      sched.Stats     `json:"stats"`
	Outcomes   []sched.Outcome `json:"outcomes"`
}

// RunCache holds completed run reports keyed by run id.
type RunCache struct {
	mu   sync.Mutex
	runs map[string]RunReport
}

func NewRunCache() *RunCache {
	return &RunCache{runs: map[string]RunReport{}}
}

func (c *RunCache) Put(r RunReport) {
	c.mu.Lock()
	c.runs[r.RunID] = r
	c.mu.Unlock()
}

func (c *RunCache) Get(tenantID, runID string) (RunReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok || r.TenantID != tenantID {
		return RunReport{}, false
	}
	return r, true
}

func (c *RunCache) List(tenantID string) []RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RunReport, 0)
	for _, r := range c.runs {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out
}
