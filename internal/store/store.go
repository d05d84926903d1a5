// Package store is the authoritative collection of work items. Every mutation
// goes through a typed command on Store; commands are serialized by a single
// mutex so pipeline ticks, review reconciliation, rework, and authoring edits
// never interleave on an item.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/events"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/validate"
)

// Repository persists items. The store writes through on every committed
// mutation and rehydrates from LoadAll on startup.
type Repository interface {
	LoadAll(ctx context.Context) ([]item.WorkItem, error)
	Save(ctx context.Context, w item.WorkItem) error
	Delete(ctx context.Context, id string) error
}

// InterruptedReason is recorded on items whose job was running when the
// process stopped.
const InterruptedReason = "서버 재시작으로 생성 작업이 중단되었습니다."

// UnsavedResultReason is recorded when a finished job's outcome could not be
// written to the repository.
const UnsavedResultReason = "생성 결과를 저장하지 못했습니다."

// Options configures a Store.
type Options struct {
	Catalog catalog.Provider
	Rules   validate.Rules
	Repo    Repository // optional
	Bus     *events.Bus
	Logger  *logrus.Logger
	Now     func() time.Time
	NewID   func() string
}

// Store owns the items keyed by id plus their insertion order.
type Store struct {
	mu        sync.Mutex
	items     map[string]*item.WorkItem
	order     []string
	cat       catalog.Lookup
	validator validate.Validator
	repo      Repository
	bus       *events.Bus
	log       *logrus.Entry
	now       func() time.Time
	newID     func() string
}

// New creates an empty store.
func New(opts Options) *Store {
	cat := catalog.NewLookup(opts.Catalog)
	s := &Store{
		items:     make(map[string]*item.WorkItem),
		cat:       cat,
		validator: validate.New(cat, opts.Rules),
		repo:      opts.Repo,
		bus:       opts.Bus,
		log:       logging.Component(opts.Logger, "store"),
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = GenerateID
	}
	return s
}

// GenerateID creates an item id in ci-xxxxxxxxxx format.
func GenerateID() string {
	return "ci-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Validator returns the validator bound to the store's catalog and rules.
func (s *Store) Validator() validate.Validator { return s.validator }

// Catalog returns the store's catalog lookup.
func (s *Store) Catalog() catalog.Lookup { return s.cat }

// Load replaces the in-memory collection with the repository contents. Items
// whose job was running when the process stopped are marked failed.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	loaded, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("store: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*item.WorkItem, len(loaded))
	s.order = s.order[:0]
	for _, w := range loaded {
		w := w.Clone()
		if w.Pipeline.State == item.PipelineRunning || w.Status == item.StatusGenerating {
			s.failLocked(&w, InterruptedReason)
			if err := s.repo.Save(ctx, w); err != nil {
				return fmt.Errorf("store: recover %s: %w", w.ID, err)
			}
			s.log.WithField("item_id", w.ID).Warn("interrupted generation job marked failed")
		}
		s.items[w.ID] = &w
		s.order = append(s.order, w.ID)
	}
	s.log.WithField("count", len(loaded)).Info("items loaded")
	return nil
}

// Get returns a copy of the item.
func (s *Store) Get(id string) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[id]
	if !ok {
		return item.WorkItem{}, notFound(id)
	}
	return w.Clone(), nil
}

// Running returns the id of the item holding the generation slot, if any.
func (s *Store) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked("")
}

func (s *Store) runningLocked(except string) (string, bool) {
	for _, id := range s.order {
		if id == except {
			continue
		}
		if s.items[id].Pipeline.State == item.PipelineRunning {
			return id, true
		}
	}
	return "", false
}

func (s *Store) getLocked(id string) (*item.WorkItem, error) {
	w, ok := s.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return w, nil
}

// commitLocked persists next and swaps it into the collection. The in-memory
// copy is only replaced once the repository accepted the write.
func (s *Store) commitLocked(ctx context.Context, next item.WorkItem, evt events.Type) (item.WorkItem, error) {
	if s.repo != nil {
		if err := s.repo.Save(ctx, next); err != nil {
			return item.WorkItem{}, fmt.Errorf("store: save %s: %w", next.ID, err)
		}
	}
	return s.settleLocked(next, evt), nil
}

// settleLocked swaps next into memory and publishes it without writing
// through to the repository.
func (s *Store) settleLocked(next item.WorkItem, evt events.Type) item.WorkItem {
	stored := next.Clone()
	if _, exists := s.items[next.ID]; !exists {
		s.order = append(s.order, next.ID)
	}
	s.items[next.ID] = &stored
	out := stored.Clone()
	s.publish(evt, out)
	return out
}

func (s *Store) publish(evt events.Type, w item.WorkItem) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: evt, ItemID: w.ID, Item: &w, Timestamp: s.now()})
}

func (s *Store) itemLog(w item.WorkItem) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{"item_id": w.ID, "version": w.Version})
}
