package history

import (
	"sync"
	"time"

	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

const DefaultCapacity = 100

type contentKey struct {
	sender string
	text   string
}

// Store is a bounded, insertion-ordered message log. A message is kept at
// most once: ids are unique and so are (sender, text) pairs.
type Store struct {
	mu       sync.Mutex
	messages []models.Message // oldest first
	ids      map[string]struct{}
	contents map[contentKey]struct{}
	capacity int
	now      func() time.Time
}

// NewStore returns an empty store holding at most capacity messages.
// A non-positive capacity means DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		messages: make([]models.Message, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
		contents: make(map[contentKey]struct{}, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Ingest appends the candidates that are not already known, in order, and
// evicts the oldest entries beyond capacity. It returns the appended messages
// that are still retained.
func (s *Store) Ingest(candidates []models.Candidate) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	observedAt := s.now()
	appended := 0
	duplicates := 0

	for _, c := range candidates {
		key := contentKey{sender: c.Sender, text: c.Text}
		if _, ok := s.contents[key]; ok {
			duplicates++
			continue
		}
		if _, ok := s.ids[c.ID]; ok && c.ID != "" {
			duplicates++
			continue
		}

		s.messages = append(s.messages, c.ToMessage(observedAt))
		if c.ID != "" {
			s.ids[c.ID] = struct{}{}
		}
		s.contents[key] = struct{}{}
		appended++
	}

	s.evictLocked()

	retained := appended
	if retained > len(s.messages) {
		retained = len(s.messages)
	}
	added := make([]models.Message, retained)
	copy(added, s.messages[len(s.messages)-retained:])

	metrics.RecordIngest(appended, duplicates, len(s.messages))
	return added
}

func (s *Store) evictLocked() {
	over := len(s.messages) - s.capacity
	if over <= 0 {
		return
	}
	for _, m := range s.messages[:over] {
		delete(s.ids, m.ID)
		delete(s.contents, contentKey{sender: m.Sender, text: m.Text})
	}
	kept := make([]models.Message, s.capacity)
	copy(kept, s.messages[over:])
	s.messages = kept
}

// Clear empties the store and returns how many messages were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.messages)
	s.messages = make([]models.Message, 0, s.capacity)
	s.ids = make(map[string]struct{}, s.capacity)
	s.contents = make(map[contentKey]struct{}, s.capacity)
	metrics.SetHistorySize(0)
	return removed
}

// Snapshot returns up to limit messages, newest first. A limit <= 0 returns all.
func (s *Store) Snapshot(limit int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]models.Message, 0, n)
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.messages[i])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Store) Capacity() int {
	return s.capacity
}
