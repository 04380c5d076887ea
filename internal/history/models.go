package history

import "time"

// PublishRecord represents a single archive or bundle step in the database
type PublishRecord struct {
	ID              int64      `json:"id"`
	Project         string     `json:"project"`
	Platform        string     `json:"platform"`
	Target          string     `json:"target"`
	Kind            string     `json:"kind"`   // archive, bundle
	Status          string     `json:"status"` // success, failed
	StartedAt       time.Time  `json:"started_at"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"` // nullable
	Version         *string    `json:"version,omitempty"`          // nullable
	Archive         *string    `json:"archive,omitempty"`          // nullable
	ErrorMessage    *string    `json:"error,omitempty"`            // nullable
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
}

// ProjectStatus represents the latest publish results of a project
type ProjectStatus struct {
	Project       string          `json:"project"`
	LatestPublish *PublishRecord  `json:"latest_publish,omitempty"`
	RecentHistory []PublishRecord `json:"recent_history"`
}
