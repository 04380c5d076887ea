package history

import (
	"context"

	"relpack/internal/publish"
)

// Record stores a pipeline step result, so *History can serve as a
// publish.Recorder.
func (h *History) Record(ctx context.Context, r publish.Result) error {
	_, err := h.RecordPublish(ctx, NewPublishRecord(r))
	return err
}

// NewPublishRecord converts a pipeline step result into a database record.
func NewPublishRecord(r publish.Result) *PublishRecord {
	record := &PublishRecord{
		Project:   r.Project,
		Platform:  r.Platform,
		Target:    r.Target,
		Kind:      r.Kind,
		Status:    r.Status,
		StartedAt: r.StartedAt,
	}

	if r.Duration > 0 {
		seconds := r.Duration.Seconds()
		record.DurationSeconds = &seconds
	}
	if r.Version != "" {
		version := r.Version
		record.Version = &version
	}
	if r.Archive != "" {
		archive := r.Archive
		record.Archive = &archive
	}
	if r.Err != nil {
		msg := r.Err.Error()
		record.ErrorMessage = &msg
	}

	return record
}
