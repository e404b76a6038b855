package drafts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	"github.com/google/uuid"
)

// DefaultKey is where the draft collection lives. It is kept apart from the
// live-update marker keys.
const DefaultKey = "dpo_issue_drafts"

// KV is the persistent medium behind the store. Get returns (nil, nil) for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store keeps in-progress upload drafts as one JSON array under a single key.
// It is a convenience cache: storage failures and corrupt data read as "no
// drafts" and writes that fail are dropped.
type Store struct {
	kv      KV
	key     string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	// mu serializes read-modify-write cycles in this process.
	mu sync.Mutex
}

func NewStore(kv KV, logger *slog.Logger, m *metrics.Metrics) *Store {
	return &Store{
		kv:      kv,
		key:     DefaultKey,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// List returns every draft, most recently touched first.
func (s *Store) List(ctx context.Context) []domain.Draft {
	drafts, _ := s.read(ctx)
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].SortTime().After(drafts[j].SortTime())
	})
	return drafts
}

// Get returns the draft with id, or nil if there is none.
func (s *Store) Get(ctx context.Context, id string) *domain.Draft {
	drafts, _ := s.read(ctx)
	for _, d := range drafts {
		if d.ID == id {
			return &d
		}
	}
	return nil
}

// Save inserts or replaces a draft and returns the stored form. An existing
// draft keeps its createdAt; updatedAt is always set to now. When the stored
// collection cannot be loaded nothing is written, so the drafts already there
// survive.
func (s *Store) Save(ctx context.Context, draft domain.Draft) domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, loaded := s.read(ctx)
	now := s.now().UTC()

	if draft.ID == "" {
		draft.ID = s.newID()
	}

	idx := -1
	for i, d := range drafts {
		if d.ID == draft.ID {
			idx = i
			break
		}
	}

	switch {
	case idx >= 0 && !drafts[idx].CreatedAt.IsZero():
		draft.CreatedAt = drafts[idx].CreatedAt
	case draft.CreatedAt.IsZero():
		draft.CreatedAt = now
	}
	if draft.CreatedAt.After(now) {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now

	if !loaded {
		s.metrics.DraftStorageFailed("write")
		s.logger.Warn("skipping drafts write after failed read", "key", s.key, "id", draft.ID)
		return draft
	}

	if idx >= 0 {
		drafts[idx] = draft
	} else {
		drafts = append(drafts, draft)
	}

	s.write(ctx, drafts)
	s.metrics.DraftOp("save")
	return draft
}

// Remove deletes the draft with id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, loaded := s.read(ctx)
	if !loaded {
		return
	}
	kept := drafts[:0]
	for _, d := range drafts {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(drafts) {
		return
	}

	s.write(ctx, kept)
	s.metrics.DraftOp("remove")
}

// read loads the collection. loaded is false only when the medium itself
// failed; corrupt data reads as empty and may be overwritten. Elements that
// fail to decode are skipped individually.
func (s *Store) read(ctx context.Context) (drafts []domain.Draft, loaded bool) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.metrics.DraftStorageFailed("read")
		s.logger.Warn("reading drafts failed", "key", s.key, "error", err)
		return []domain.Draft{}, false
	}
	if len(raw) == 0 {
		return []domain.Draft{}, true
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		s.metrics.DraftStorageFailed("read")
		s.logger.Warn("stored drafts are corrupt, ignoring", "key", s.key, "error", err)
		return []domain.Draft{}, true
	}

	drafts = make([]domain.Draft, 0, len(elems))
	for i, elem := range elems {
		var d domain.Draft
		if err := json.Unmarshal(elem, &d); err != nil {
			s.metrics.DraftStorageFailed("read")
			s.logger.Warn("skipping corrupt draft", "key", s.key, "index", i, "error", err)
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, true
}

func (s *Store) write(ctx context.Context, drafts []domain.Draft) {
	data, err := json.Marshal(drafts)
	if err != nil {
		s.metrics.DraftStorageFailed("write")
		s.logger.Error("encoding drafts failed", "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.metrics.DraftStorageFailed("write")
		s.logger.Warn("writing drafts failed", "key", s.key, "error", err)
	}
}
