package gdpr

// cloneDetails copies an event's Details map so callers can add
// pseudonymization markers without mutating a map another goroutine may
// still be reading.
func cloneDetails(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src)+2)
	for k, v := range src {
		out[k] = v
	}
	return out
}
