package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_UsesEngineQueue(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TaskQueues.StockEngine, cfg.TaskQueue)

	opts := workerOptions(cfg)
	assert.Equal(t, 50, opts.MaxConcurrentActivityExecutionSize)
	assert.Equal(t, 2, opts.MaxConcurrentActivityTaskPollers)
	assert.Equal(t, 2, opts.MaxConcurrentWorkflowTaskPollers)
	assert.Equal(t, "stock-engine", opts.Identity)
}
