// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

const namespace = "learnhub"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
