package media

import "strconv"

var sizeUnits = [...]string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with binary multiples and one decimal,
// e.g. "1.5 MB". A nil size renders as "Unknown".
func FormatSize(n *int64) string {
	if n == nil {
		return "Unknown"
	}
	size := float64(*n)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return strconv.FormatFloat(size, 'f', 1, 64) + " " + sizeUnits[unit]
}
