// Package memory provides in-process implementations of the store
// interfaces. State is lost on restart; use it for simulation runs and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// PositionStore implements domain.PositionStore with a map guarded by a
// single mutex, so the cap check and insert in Open happen atomically.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position // keyed by ID
	active    map[string]string           // asset ID -> position ID
	order     []string                    // IDs in insertion order
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]*domain.Position),
		active:    make(map[string]string),
	}
}

// Open inserts pos as an active position.
func (s *PositionStore) Open(_ context.Context, pos domain.Position, maxActive int) error {
	if pos.ID == "" {
		return fmt.Errorf("memory: open position: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: open position %s: duplicate id", pos.ID)
	}
	if _, ok := s.active[pos.AssetID]; ok {
		return domain.ErrAlreadyActive
	}
	if maxActive > 0 && len(s.active) >= maxActive {
		return domain.ErrCapReached
	}

	p := pos
	p.Status = domain.PositionStatusActive
	p.ExitValue = nil
	p.ClosedAt = nil
	p.CloseReason = domain.CloseReasonNone
	s.positions[p.ID] = &p
	s.active[p.AssetID] = p.ID
	s.order = append(s.order, p.ID)
	return nil
}

// Close marks the position with id closed.
func (s *PositionStore) Close(_ context.Context, id string, exitValue decimal.Decimal, reason domain.CloseReason, closedAt time.Time) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusActive {
		return domain.Position{}, domain.ErrNotActive
	}

	exit := exitValue
	at := closedAt
	p.Status = domain.PositionStatusClosed
	p.ExitValue = &exit
	p.ClosedAt = &at
	p.CloseReason = reason
	delete(s.active, p.AssetID)

	return clonePosition(p), nil
}

func (s *PositionStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active), nil
}

// ListActive returns active positions oldest first.
func (s *PositionStore) ListActive(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.active))
	for _, id := range s.order {
		p := s.positions[id]
		if p.Active() {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return clonePosition(p), nil
}

// ListHistory returns positions newest first, filtered by opts. Since and
// Until bound OpenedAt.
func (s *PositionStore) ListHistory(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, id := range s.order {
		p := s.positions[id]
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		if opts.Since != nil && p.OpenedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !p.OpenedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, clonePosition(p))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})

	return paginate(out, opts), nil
}

// ClosedBetween returns positions closed in [since, until), oldest first.
func (s *PositionStore) ClosedBetween(_ context.Context, since, until time.Time) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Position{}
	for _, id := range s.order {
		p := s.positions[id]
		if p.ClosedAt == nil || p.ClosedAt.Before(since) || !p.ClosedAt.Before(until) {
			continue
		}
		out = append(out, clonePosition(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt.Before(*out[j].ClosedAt)
	})
	return out, nil
}

func clonePosition(p *domain.Position) domain.Position {
	c := *p
	if p.ExitValue != nil {
		v := *p.ExitValue
		c.ExitValue = &v
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	if items == nil {
		return []T{}
	}
	return items
}
