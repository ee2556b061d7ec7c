package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbik/avito-monitor-app/pkg/models"
)

func candidate(id, sender, text string) models.Candidate {
	return models.Candidate{ID: id, Sender: sender, Text: text}
}

func TestIngest_AppendsNewInOrder(t *testing.T) {
	s := NewStore(10)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	added := s.Ingest([]models.Candidate{
		candidate("1", "A", "hi"),
		candidate("2", "B", "yo"),
	})

	require.Len(t, added, 2)
	assert.Equal(t, "1", added[0].ID)
	assert.Equal(t, fixed, added[0].ObservedAt)
	assert.Equal(t, 2, s.Len())
}

func TestIngest_DualDedupRule(t *testing.T) {
	s := NewStore(10)
	s.Ingest([]models.Candidate{candidate("1", "A", "hi")})

	tests := []struct {
		name string
		c    models.Candidate
	}{
		{"same id, different content", candidate("1", "Z", "other")},
		{"same sender and text, different id", candidate("99", "A", "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, s.Ingest([]models.Candidate{tt.c}))
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestIngest_DuplicatesAcrossCycles(t *testing.T) {
	s := NewStore(10)
	s.Ingest([]models.Candidate{candidate("a", "A", "hi")})
	s.Ingest([]models.Candidate{candidate("a", "A", "hi")})

	assert.Equal(t, 1, s.Len())
}

func TestIngest_CollapsesWithinBatch(t *testing.T) {
	s := NewStore(10)
	added := s.Ingest([]models.Candidate{
		candidate("1", "A", "hi"),
		candidate("2", "A", "hi"),
		candidate("1", "B", "different"),
	})

	require.Len(t, added, 1)
	assert.Equal(t, 1, s.Len())
}

func TestIngest_BoundedFIFO(t *testing.T) {
	s := NewStore(100)
	for i := 0; i < 150; i++ {
		s.Ingest([]models.Candidate{candidate(fmt.Sprint(i), "A", fmt.Sprintf("msg %d", i))})
	}

	require.Equal(t, 100, s.Len())
	all := s.Snapshot(0)
	assert.Equal(t, "149", all[0].ID)
	assert.Equal(t, "50", all[99].ID)

	// evicted content may be ingested again
	added := s.Ingest([]models.Candidate{candidate("0", "A", "msg 0")})
	assert.Len(t, added, 1)
}

func TestIngest_BatchLargerThanCapacity(t *testing.T) {
	s := NewStore(3)
	batch := make([]models.Candidate, 0, 5)
	for i := 0; i < 5; i++ {
		batch = append(batch, candidate(fmt.Sprint(i), "A", fmt.Sprint(i)))
	}

	added := s.Ingest(batch)
	require.Len(t, added, 3)
	assert.Equal(t, []string{"2", "3", "4"}, []string{added[0].ID, added[1].ID, added[2].ID})
}

func TestSnapshot_NewestFirstWithLimit(t *testing.T) {
	s := NewStore(10)
	s.Ingest([]models.Candidate{candidate("1", "A", "one"), candidate("2", "A", "two"), candidate("3", "A", "three")})

	got := s.Snapshot(2)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	assert.Len(t, s.Snapshot(50), 3)
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Ingest([]models.Candidate{candidate("1", "A", "one"), candidate("2", "A", "two")})

	assert.Equal(t, 2, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Snapshot(0))

	// cleared content is new again
	assert.Len(t, s.Ingest([]models.Candidate{candidate("1", "A", "one")}), 1)
}

func TestClearRacingIngest(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewStore(100)
		batch := make([]models.Candidate, 0, 20)
		for i := 0; i < 20; i++ {
			batch = append(batch, candidate(fmt.Sprint(i), "A", fmt.Sprint(i)))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.Ingest(batch) }()
		go func() { defer wg.Done(); s.Clear() }()
		wg.Wait()

		n := s.Len()
		assert.True(t, n == 0 || n == 20, "store must be empty or hold the full batch, got %d", n)
	}
}

func TestNewStore_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewStore(0).Capacity())
}
