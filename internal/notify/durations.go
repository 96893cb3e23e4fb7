package notify

import (
	"fmt"
	"time"
)

// HumanDuration formats a duration in Russian using the declension buckets
// notification readers expect: секунды below a minute, then минута/минуты/минут,
// час/часа/часов and день/дня/дней.
func HumanDuration(d time.Duration) string {
	seconds := int64(d.Seconds())
	if seconds < 0 {
		seconds = 0
	}

	switch {
	case seconds < 60:
		return fmt.Sprintf("%d сек", seconds)
	case seconds < 3600:
		minutes := seconds / 60
		switch {
		case minutes == 1:
			return "1 минута"
		case minutes < 5:
			return fmt.Sprintf("%d минуты", minutes)
		default:
			return fmt.Sprintf("%d минут", minutes)
		}
	case seconds < 86400:
		hours := seconds / 3600
		switch {
		case hours == 1:
			return "1 час"
		case hours < 5:
			return fmt.Sprintf("%d часа", hours)
		default:
			return fmt.Sprintf("%d часов", hours)
		}
	default:
		days := seconds / 86400
		switch {
		case days == 1:
			return "1 день"
		case days < 5:
			return fmt.Sprintf("%d дня", days)
		default:
			return fmt.Sprintf("%d дней", days)
		}
	}
}
