package telemetry

import "time"

// Span is a unit of tracing attached to a listener, connection, or worker.
// An unsampled span is still a valid value: its ID propagates for
// parent/child linkage, but Event and Stop are no-ops for it.
type Span struct {
	ID             string
	ParentID       string
	Name           string
	Sampled        bool
	StartTime      time.Time
	StartMetadata  map[string]any
	Measurements   map[string]any
}

// mergedMetadata returns a shallow copy of metadata merged over the span's
// start metadata, used by Hub.StopSpan to merge caller-supplied fields.
func (s *Span) mergedMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(s.StartMetadata)+len(metadata))
	for k, v := range s.StartMetadata {
		out[k] = v
	}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
