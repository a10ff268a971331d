package usagelog

import (
	"context"
	"time"

	"codeberg.org/pdgen/server/internal/logger"
	"github.com/google/uuid"
)

// who a generation was billed to
type SubjectKind string

const (
	SubjectAnonymous SubjectKind = "anonymous"
	SubjectUser      SubjectKind = "user"
	SubjectAPIKey    SubjectKind = "api_key"
)

// one completed generation request
type Entry struct {
	ID          string
	Route       string
	SubjectKind SubjectKind
	SubjectID   string
	Provider    string
	Items       int
	Failed      int
	Duration    time.Duration
	CreatedAt   time.Time
}

// assigns the id and timestamp when the caller left them unset
func (e *Entry) stamp() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// persists generation entries
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, subjectID string, limit int) ([]Entry, error)
}

// records entry with its own short deadline and logs failures. a nil
// recorder is skipped.
func Save(ctx context.Context, rec Recorder, entry *Entry) {
	if rec == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := rec.Record(ctx, entry); err != nil {
		logger.ErrorErr(err, "failed to record generation", "route", entry.Route)
	}
}
