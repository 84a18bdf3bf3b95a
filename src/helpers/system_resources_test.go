package helpers

import (
	"io"
	"testing"

	"volume-observer/src/logger"

	"github.com/stretchr/testify/assert"
)

func TestBudgetFor(t *testing.T) {
	tests := []struct {
		name    string
		totalMB int
		want    int
	}{
		{"large host", 16384, 12288},
		{"floored", 300, 256},
		{"tiny host", 128, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, budgetFor(tt.totalMB))
		})
	}
}

func TestMemoryBudgetPositive(t *testing.T) {
	log := logger.NewLogger(nil, "resources")
	log.SetOutput(io.Discard)
	assert.Greater(t, MemoryBudgetMB(log), 0)
}
