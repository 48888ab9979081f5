package task_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/skybi/grade-proxy/internal/task"
)

func TestRepeatingTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	repeating := task.NewRepeating(func() {
		runs.Add(1)
	}, 5*time.Millisecond)

	repeating.Start()
	repeating.Start()
	assert.True(t, repeating.Running())
	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, time.Second, time.Millisecond)

	repeating.Stop(false)
	assert.False(t, repeating.Running())
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	repeating.Stop(true)
	assert.Equal(t, stopped, runs.Load())
}

func TestRepeatingTaskForceExec(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	repeating := task.NewRepeating(func() {
		runs.Add(1)
	}, time.Hour)

	repeating.Start()
	repeating.Stop(true)
	assert.Equal(t, int32(1), runs.Load())

	// Restarting after a stop schedules the task again
	repeating.Start()
	assert.True(t, repeating.Running())
	repeating.Stop(false)
}
