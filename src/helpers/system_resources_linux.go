//go:build linux

package helpers

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

const cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// availableMemoryMB prefers the cgroup v2 limit so containers are sized by
// their quota rather than the host.
func availableMemoryMB() int {
	hostMB := meminfoTotalMB("/proc/meminfo")
	if limitMB := cgroupLimitMB(cgroupMemoryMax); limitMB > 0 && (hostMB == 0 || limitMB < hostMB) {
		return limitMB
	}
	return hostMB
}

// cgroupLimitMB returns 0 when the file is missing or reads "max".
func cgroupLimitMB(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	value := strings.TrimSpace(string(raw))
	if value == "max" {
		return 0
	}
	bytes, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return int(bytes / 1024 / 1024)
}

func meminfoTotalMB(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.Atoi(fields[1])
				if err == nil {
					return kb / 1024
				}
			}
		}
	}
	return 0
}
