package countdown

import "fmt"

// Format renders a second count as MM:SS. Negative values clamp to 00:00.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
