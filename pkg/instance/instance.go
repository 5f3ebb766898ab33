package instance

import "os"

// GetID identifies this process in logs and lock ownership. Platform dyno
// names win over an explicit WORKER_ID.
func GetID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "local"
}
