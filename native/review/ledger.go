package review

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"novalink/native/escrow"
)

// storage abstracts the subset of state manager functionality required by the
// review ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// sessions exposes the completed-session lookup the ledger needs to gate
// submissions. The escrow engine satisfies this interface.
type sessions interface {
	GetSession(id escrow.SessionID) (*escrow.SessionRecord, error)
}

var (
	reviewPrefix     = []byte("review/session/")
	tutorIndexPrefix = []byte("review/tutor/")
)

func reviewKey(id escrow.SessionID) []byte {
	return []byte(fmt.Sprintf("%s%x", reviewPrefix, id[:]))
}

func tutorIndexKey(tutor string) []byte {
	return []byte(fmt.Sprintf("%s%s", tutorIndexPrefix, strings.TrimSpace(tutor)))
}

type tutorIndex struct {
	Sessions []escrow.SessionID `json:"sessions"`
}

// Ledger is the append-only review store. A session can carry at most one
// review, and only once it has completed. Reviews are immutable and never
// deleted.
type Ledger struct {
	mu       sync.Mutex
	store    storage
	sessions sessions
	nowFn    func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend and
// session source.
func NewLedger(store storage, sessions sessions) *Ledger {
	return &Ledger{
		store:    store,
		sessions: sessions,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock used for review timestamps. Primarily
// leveraged in tests to provide deterministic timestamps.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Submit records a review for a completed session. Exactly one review is
// admitted per session; later submissions fail with ErrDuplicateReview and
// leave the store unchanged.
func (l *Ledger) Submit(sessionID escrow.SessionID, author string, rating uint8, text string, now int64) (*Review, error) {
	if l == nil || l.store == nil || l.sessions == nil {
		return nil, errors.New("review: ledger not initialised")
	}
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	record, err := l.sessions.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if record.Status != escrow.SessionCompleted {
		return nil, ErrSessionNotCompleted
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var existing Review
	found, err := l.store.KVGet(reviewKey(sessionID), &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrDuplicateReview
	}
	if now <= 0 {
		now = l.now()
	}
	entry := &Review{
		SessionID: sessionID,
		Tutor:     record.Tutor,
		Author:    strings.TrimSpace(author),
		Rating:    rating,
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := l.store.KVPut(reviewKey(sessionID), entry); err != nil {
		return nil, err
	}
	var index tutorIndex
	if _, err := l.store.KVGet(tutorIndexKey(entry.Tutor), &index); err != nil {
		return nil, err
	}
	index.Sessions = append(index.Sessions, sessionID)
	if err := l.store.KVPut(tutorIndexKey(entry.Tutor), &index); err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// Get returns the review attached to a session, if any.
func (l *Ledger) Get(sessionID escrow.SessionID) (*Review, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errors.New("review: ledger not initialised")
	}
	var entry Review
	found, err := l.store.KVGet(reviewKey(sessionID), &entry)
	if err != nil || !found {
		return nil, false, err
	}
	return &entry, true, nil
}

func (l *Ledger) reviewsForTutor(tutor string) ([]*Review, error) {
	var index tutorIndex
	if _, err := l.store.KVGet(tutorIndexKey(tutor), &index); err != nil {
		return nil, err
	}
	out := make([]*Review, 0, len(index.Sessions))
	for _, id := range index.Sessions {
		var entry Review
		found, err := l.store.KVGet(reviewKey(id), &entry)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, entry.Clone())
	}
	// Insertion order already tracks submission time; the sort keeps the
	// ascending-createdAt contract even if clocks ever step backwards.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// ForTutor returns the tutor's reviews as a finite, restartable sequence in
// ascending createdAt order. Iteration loads from a stable snapshot taken at
// the first yield, so a concurrent submission does not tear the sequence.
func (l *Ledger) ForTutor(tutor string) iter.Seq[*Review] {
	return func(yield func(*Review) bool) {
		if l == nil || l.store == nil {
			return
		}
		reviews, err := l.reviewsForTutor(tutor)
		if err != nil {
			return
		}
		for _, entry := range reviews {
			if !yield(entry) {
				return
			}
		}
	}
}

// AverageRating computes the mean rating across a tutor's reviews. The second
// return value is false when the tutor has no reviews; callers must not treat
// the absence of data as a zero rating.
func (l *Ledger) AverageRating(tutor string) (float64, bool, error) {
	if l == nil || l.store == nil {
		return 0, false, errors.New("review: ledger not initialised")
	}
	reviews, err := l.reviewsForTutor(tutor)
	if err != nil {
		return 0, false, err
	}
	if len(reviews) == 0 {
		return 0, false, nil
	}
	var sum int
	for _, entry := range reviews {
		sum += int(entry.Rating)
	}
	return float64(sum) / float64(len(reviews)), true, nil
}
