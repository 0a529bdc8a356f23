// Package fsops probes the host filesystem backing a share directory:
// whether the drive should report itself write-protected, and how much
// room is behind the share.
package fsops

import "fmt"

// HumanBytes formats a byte count for log output.
func HumanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for u := n / unit; u >= unit; u /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
