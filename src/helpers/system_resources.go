package helpers

import (
	"volume-observer/src/logger"
)

const (
	minMemoryBudgetMB = 256
	budgetShare       = 0.75
)

// MemoryBudgetMB returns the soft memory limit for the process: 75% of the
// memory available to it, floored at 256MB. Filtering keeps every day of
// every symbol resident, so the limit mostly bounds concurrent fits.
func MemoryBudgetMB(log *logger.Logger) int {
	totalMB := availableMemoryMB()
	if totalMB == 0 {
		log.Warning("Could not determine system memory. Defaulting to %dMB.", minMemoryBudgetMB)
		return minMemoryBudgetMB
	}
	return budgetFor(totalMB)
}

func budgetFor(totalMB int) int {
	limit := int(float64(totalMB) * budgetShare)
	if limit < minMemoryBudgetMB {
		if totalMB < minMemoryBudgetMB {
			return totalMB
		}
		return minMemoryBudgetMB
	}
	return limit
}
