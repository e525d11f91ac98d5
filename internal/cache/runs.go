package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/settle/internal/domain"
)

// RunTTL is how long a completed run stays cached after it is read or saved.
const RunTTL = 10 * time.Minute

func runKey(runID string) string {
	return "run:" + runID
}

// GetRun returns a cached run, or nil when it is not cached.
func GetRun(ctx context.Context, c domain.Cache, tenantID, runID string) (*domain.Run, error) {
	data, err := c.Get(ctx, tenantID, runKey(runID))
	if err != nil || data == nil {
		return nil, err
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode cached run %s: %w", runID, err)
	}
	return &run, nil
}

// SetRun caches a run under its id.
func SetRun(ctx context.Context, c domain.Cache, run *domain.Run, ttl time.Duration) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	return c.Set(ctx, run.TenantID, runKey(run.ID), data, ttl)
}
