package logger

// Shorten truncates s to 6 bytes followed by "..." so request and session IDs stay
// readable in log prefixes. Shorter strings are returned unchanged.
func Shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
