package files

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count in base-1024 units with one decimal,
// e.g. 2048 -> "2.0KB". Zero renders as "0B".
func FormatSize(size int64) string {
	if size == 0 {
		return "0B"
	}

	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f%s", value, sizeUnits[unit])
}
