package spacer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"repostflow/internal/domain"
	"repostflow/internal/metrics"
)

var ErrInvalidRequest = errors.New("post id is required")

const DefaultMinGap = 30 * time.Minute

// Action performs the actual repost against the social network. Any non-nil
// error marks the entry failed; the spacer never retries on its own.
type Action func(ctx context.Context, postID string) error

// Journal persists entry admissions and transitions. Satisfied by
// store.Repository.
type Journal interface {
	SaveEntry(ctx context.Context, e domain.ScheduleEntry) error
	UpdateEntryStatus(ctx context.Context, id string, status domain.EntryStatus, executedAt time.Time, errMsg string) error
	MarkCanceled(ctx context.Context, id string) error
}

// Spacer admits repost requests and executes them no closer together than the
// configured minimum gap, preserving submission order. Scheduling happens at
// admission time: Submit assigns each entry the earliest slot consistent with
// the gap against every entry still tracked, and Tick only drains slots that
// have come due.
type Spacer struct {
	gap     time.Duration
	action  Action
	journal Journal
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	entries  []*domain.ScheduleEntry
	inflight map[string]struct{} // claimed entries whose action is running
	last     time.Time           // scheduled time of the newest tracked entry
	hasLast  bool
	floor    time.Time // restored pre-restart schedule tail
	hasFloor bool
	seq      int64
	ticking  bool

	stop chan struct{}
}

func New(gap time.Duration, action Action, journal Journal, m *metrics.Metrics) *Spacer {
	if gap <= 0 {
		gap = DefaultMinGap
	}
	return &Spacer{
		gap:      gap,
		action:   action,
		journal:  journal,
		metrics:  m,
		now:      time.Now,
		inflight: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// Restore preloads pending entries from a previous run and pins the schedule
// floor so the gap spans restarts. tail is the scheduled time of the newest
// already-executed entry on record (ok false when there is none); maxSeq is
// the highest seq ever assigned, so restored and new entries never share one.
// Restored pending entries keep their own slots and remain cancelable; the
// floor only reflects executions that already happened.
func (s *Spacer) Restore(pending []domain.ScheduleEntry, tail time.Time, maxSeq int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.floor, s.hasFloor = tail, true
		s.last, s.hasLast = tail, true
	}
	for i := range pending {
		e := pending[i]
		s.entries = append(s.entries, &e)
		if !s.hasLast || e.ScheduledAt.After(s.last) {
			s.last, s.hasLast = e.ScheduledAt, true
		}
		if s.metrics != nil {
			s.metrics.IncPending()
		}
	}
	if maxSeq > s.seq {
		s.seq = maxSeq
	}
}

// Submit admits a repost request. The returned entry's ScheduledAt is the
// earliest time >= now that keeps the minimum gap against the newest tracked
// entry; back-to-back submissions therefore stack gap apart.
func (s *Spacer) Submit(req domain.RepostRequest) (domain.ScheduleEntry, error) {
	if req.PostID == "" {
		return domain.ScheduleEntry{}, ErrInvalidRequest
	}

	s.mu.Lock()
	now := s.now()
	scheduledAt := now
	if s.hasLast {
		if earliest := s.last.Add(s.gap); earliest.After(scheduledAt) {
			scheduledAt = earliest
		}
	}
	s.seq++
	e := &domain.ScheduleEntry{
		ID:          "rp_" + uuid.NewString(),
		Seq:         s.seq,
		Request:     req,
		ScheduledAt: scheduledAt,
		Status:      domain.StatusPending,
		CreatedAt:   now,
	}
	s.entries = append(s.entries, e)
	s.last, s.hasLast = scheduledAt, true
	out := *e
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncSubmitted()
		s.metrics.IncPending()
	}
	if s.journal != nil {
		if err := s.journal.SaveEntry(context.Background(), out); err != nil {
			log.Error().Err(err).Str("entry_id", out.ID).Msg("persist entry")
		}
	}
	log.Info().Str("entry_id", out.ID).Str("post_id", req.PostID).
		Time("scheduled_at", scheduledAt).Msg("repost scheduled")
	return out, nil
}

// Tick executes every pending entry due at or before now, in ascending
// ScheduledAt order with submission order breaking ties, and returns the
// transitioned entries in processed order. One entry's failure does not stop
// the rest. Overlapping Tick calls are rejected.
func (s *Spacer) Tick(ctx context.Context, now time.Time) []domain.ScheduleEntry {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		return nil
	}
	s.ticking = true
	var due []*domain.ScheduleEntry
	for _, e := range s.entries {
		if e.Status == domain.StatusPending && !e.ScheduledAt.After(now) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].Seq < due[j].Seq
	})
	s.mu.Unlock()

	out := make([]domain.ScheduleEntry, 0, len(due))
	for _, e := range due {
		// claim the entry before running its action: a Cancel racing this
		// loop must either win outright (entry skipped here) or lose
		// outright (claimed entries are past canceling)
		s.mu.Lock()
		if e.Status != domain.StatusPending {
			s.mu.Unlock()
			continue
		}
		s.inflight[e.ID] = struct{}{}
		s.mu.Unlock()

		// action runs outside the lock; only the transition itself is guarded
		err := s.action(ctx, e.Request.PostID)

		s.mu.Lock()
		delete(s.inflight, e.ID)
		done := s.now()
		e.ExecutedAt = &done
		if err != nil {
			e.Status = domain.StatusFailed
			e.Error = err.Error()
		} else {
			e.Status = domain.StatusExecuted
		}
		snapshot := *e
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.DecPending()
			if err != nil {
				s.metrics.IncFailed()
			} else {
				s.metrics.IncExecuted()
			}
		}
		if s.journal != nil {
			if jerr := s.journal.UpdateEntryStatus(ctx, snapshot.ID, snapshot.Status, done, snapshot.Error); jerr != nil {
				log.Error().Err(jerr).Str("entry_id", snapshot.ID).Msg("persist transition")
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("entry_id", snapshot.ID).
				Str("post_id", snapshot.Request.PostID).Msg("repost failed")
		} else {
			log.Info().Str("entry_id", snapshot.ID).
				Str("post_id", snapshot.Request.PostID).Msg("repost executed")
		}
		out = append(out, snapshot)
	}

	s.mu.Lock()
	s.ticking = false
	s.mu.Unlock()
	return out
}

// Cancel removes a pending entry before it executes. Executed and failed
// entries are not cancelable. Entries admitted after the canceled one keep
// their already-assigned slots; only the tail a future Submit spaces against
// is recomputed, so canceling the newest entry frees its slot.
func (s *Spacer) Cancel(entryID string) bool {
	s.mu.Lock()
	idx := -1
	for i, e := range s.entries {
		if e.ID != entryID {
			continue
		}
		if e.Status != domain.StatusPending {
			break
		}
		if _, busy := s.inflight[entryID]; busy {
			// action already running; the entry will reach executed or
			// failed, not canceled
			break
		}
		idx = i
		break
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.entries[idx].Status = domain.StatusCanceled
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)

	s.hasLast = s.hasFloor
	s.last = s.floor
	for _, e := range s.entries {
		if !s.hasLast || e.ScheduledAt.After(s.last) {
			s.last, s.hasLast = e.ScheduledAt, true
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DecPending()
		s.metrics.IncCanceled()
	}
	if s.journal != nil {
		if err := s.journal.MarkCanceled(context.Background(), entryID); err != nil {
			log.Error().Err(err).Str("entry_id", entryID).Msg("persist cancel")
		}
	}
	log.Info().Str("entry_id", entryID).Msg("repost canceled")
	return true
}

// Entry reports a tracked entry by ID.
func (s *Spacer) Entry(entryID string) (domain.ScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == entryID {
			return *e, true
		}
	}
	return domain.ScheduleEntry{}, false
}

// Run drives Tick on a fixed interval until the context is canceled or Stop
// is called.
func (s *Spacer) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	log.Info().Dur("interval", every).Dur("min_gap", s.gap).Msg("repost spacer started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-t.C:
			s.Tick(ctx, now)
		}
	}
}

func (s *Spacer) Stop() {
	close(s.stop)
}
