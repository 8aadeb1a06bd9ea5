package domain

import "time"

type EntryStatus string

const (
	StatusPending  EntryStatus = "pending"
	StatusExecuted EntryStatus = "executed"
	StatusFailed   EntryStatus = "failed"
	StatusCanceled EntryStatus = "canceled"
)

// RepostRequest identifies a post to repost. RequestedAt is informational;
// scheduling works off admission time only.
type RepostRequest struct {
	PostID      string
	RequestedAt time.Time
}

// ScheduleEntry is one admitted repost. Seq is the admission counter and
// breaks ties between entries sharing a ScheduledAt.
type ScheduleEntry struct {
	ID          string
	Seq         int64
	Request     RepostRequest
	ScheduledAt time.Time
	Status      EntryStatus
	ExecutedAt  *time.Time
	Error       string
	CreatedAt   time.Time
}

// Post is a cached post fetched from the social network.
type Post struct {
	ID        string
	AccountID string
	Author    string
	Text      string
	PostedAt  time.Time
	FetchedAt time.Time
}
