//go:build !linux

package helpers

// availableMemoryMB is unknown off linux; MemoryBudgetMB falls back to its floor.
func availableMemoryMB() int {
	return 0
}
