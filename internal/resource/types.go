package resource

import "time"

// Resource is something a reader gates access to: a machine, a room, a
// piece of shared equipment.
type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageSession is one period during which a resource was in use.
// EndedAt is nil while the session is still running.
type UsageSession struct {
	ID         string     `json:"id"`
	ResourceID string     `json:"resource_id"`
	ReaderID   string     `json:"reader_id"`
	CardUID    string     `json:"card_uid"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session is still running.
func (s *UsageSession) Active() bool {
	return s.EndedAt == nil
}

// Duration returns the session length, or the elapsed time so far for an
// active session.
func (s *UsageSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}
