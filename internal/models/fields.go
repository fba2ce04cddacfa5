package models

import "time"

// Decode helpers tolerant of the value shapes the store backends produce:
// Firestore hands back []interface{} for arrays, Mongo normalizes its own
// types before documents reach this package.

func getString(fields map[string]interface{}, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func getBool(fields map[string]interface{}, key string) bool {
	if b, ok := fields[key].(bool); ok {
		return b
	}
	return false
}

func getTime(fields map[string]interface{}, key string) *time.Time {
	if t, ok := fields[key].(time.Time); ok {
		return &t
	}
	return nil
}

func getStringSlice(fields map[string]interface{}, key string) []string {
	switch members := fields[key].(type) {
	case []string:
		return members
	case []interface{}:
		out := make([]string, 0, len(members))
		for _, member := range members {
			if s, ok := member.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
