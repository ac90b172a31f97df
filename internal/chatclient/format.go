package chatclient

import "time"

// FormatTime renders a Unix millisecond timestamp as local HH:MM.
func FormatTime(ts int64) string {
	return time.UnixMilli(ts).Format("15:04")
}
