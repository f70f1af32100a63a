// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// VectorizeTask represents an asynchronous vectorize job for one stored file.
type VectorizeTask struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name,omitempty"`
	ForceReload bool      `json:"force_reload"`
	RequestedAt time.Time `json:"requested_at"`
}
