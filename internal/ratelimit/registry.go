// Package ratelimit keeps one token bucket per client so expensive operations can be throttled individually
package ratelimit

import (
	"github.com/skybi/grade-proxy/internal/task"
	"golang.org/x/time/rate"
	"sync"
	"time"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry hands out a token bucket limiter per key.
// Limiters not used for the configured idle lifetime are removed by Cleanup; they would be full again anyway.
type Registry struct {
	limit        rate.Limit
	burst        int
	idleLifetime time.Duration

	mtx         sync.Mutex
	limiters    map[string]*entry
	cleanupTask *task.RepeatingTask
}

// New creates a new registry allowing perMinute events per key with the given burst
func New(perMinute, burst int, idleLifetime time.Duration) *Registry {
	return &Registry{
		limit:        rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:        burst,
		idleLifetime: idleLifetime,
		limiters:     make(map[string]*entry),
	}
}

// Allow reports whether an event for the given key may happen now and consumes a token if so
func (registry *Registry) Allow(key string) bool {
	registry.mtx.Lock()
	defer registry.mtx.Unlock()

	now := time.Now()
	found, ok := registry.limiters[key]
	if !ok {
		found = &entry{
			limiter: rate.NewLimiter(registry.limit, registry.burst),
		}
		registry.limiters[key] = found
	}
	found.lastSeen = now
	return found.limiter.AllowN(now, 1)
}

// Size returns the amount of tracked keys
func (registry *Registry) Size() int {
	registry.mtx.Lock()
	defer registry.mtx.Unlock()
	return len(registry.limiters)
}

// Cleanup removes every limiter that was not used for the idle lifetime and returns the amount of removed limiters
func (registry *Registry) Cleanup() int {
	registry.mtx.Lock()
	defer registry.mtx.Unlock()

	removed := 0
	for key, val := range registry.limiters {
		if time.Since(val.lastSeen) > registry.idleLifetime {
			delete(registry.limiters, key)
			removed++
		}
	}
	return removed
}

// ScheduleCleanupTask schedules the task that removes idle limiters in a specific interval.
// StopCleanupTask has to be called as soon as the registry is no longer needed.
func (registry *Registry) ScheduleCleanupTask(tick time.Duration) {
	registry.mtx.Lock()
	defer registry.mtx.Unlock()
	if registry.cleanupTask != nil {
		return
	}
	registry.cleanupTask = task.NewRepeating(func() {
		registry.Cleanup()
	}, tick)
	registry.cleanupTask.Start()
}

// StopCleanupTask stops the cleanup task
func (registry *Registry) StopCleanupTask() {
	registry.mtx.Lock()
	cleanupTask := registry.cleanupTask
	registry.cleanupTask = nil
	registry.mtx.Unlock()

	if cleanupTask != nil {
		cleanupTask.Stop(true)
	}
}
