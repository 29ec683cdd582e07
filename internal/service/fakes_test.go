package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/notify"
)

// In-memory doubles shared by the service tests.

type fakePositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	failApply error
}

func newFakePositionStore(positions ...domain.Position) *fakePositionStore {
	s := &fakePositionStore{positions: make(map[string]domain.Position)}
	for _, p := range positions {
		s.positions[p.ID] = p
	}
	return s
}

func (s *fakePositionStore) get(id string) domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[id]
}

func (s *fakePositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = p
	return nil
}

func (s *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakePositionStore) ListOpenAuto(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen && p.Mode == domain.ModeAuto {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListHistory(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListClosedBetween(_ context.Context, since, until time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusClosed && p.ClosedAt != nil &&
			!p.ClosedAt.Before(since) && p.ClosedAt.Before(until) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ApplyExit(_ context.Context, u domain.ExitUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply != nil {
		return s.failApply
	}
	p, ok := s.positions[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PositionStatusOpen || p.TPHitLevel != u.ExpectTPHitLevel || p.SLHit {
		return domain.ErrConflict
	}
	p.TPHitLevel = u.TPHitLevel
	p.SLHit = u.SLHit
	p.ClosedUnits = u.ClosedUnits
	p.RealizedPnL = u.RealizedPnL
	p.Status = u.Status
	p.ExitPrice = u.ExitPrice
	p.ClosedAt = u.ClosedAt
	s.positions[u.ID] = p
	return nil
}

func (s *fakePositionStore) RaiseHighestPrice(_ context.Context, id string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PositionStatusOpen {
		return nil
	}
	if p.HighestPrice == nil || *p.HighestPrice < price {
		p.HighestPrice = &price
		s.positions[id] = p
	}
	return nil
}

type fakePlanStore struct {
	mu    sync.Mutex
	plans map[string]domain.TradePlan
}

func newFakePlanStore(plans ...domain.TradePlan) *fakePlanStore {
	s := &fakePlanStore{plans: make(map[string]domain.TradePlan)}
	for _, plan := range plans {
		s.plans[plan.PositionID] = plan
	}
	return s
}

func (s *fakePlanStore) Put(_ context.Context, plan domain.TradePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.PositionID] = plan
	return nil
}

func (s *fakePlanStore) GetByPosition(_ context.Context, positionID string) (domain.TradePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[positionID]
	if !ok {
		return domain.TradePlan{}, domain.ErrPlanMissing
	}
	return plan, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.ExitEvent
}

func (s *fakeEventStore) Append(_ context.Context, e domain.ExitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeEventStore) ListByPosition(_ context.Context, positionID string) ([]domain.ExitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExitEvent
	for _, e := range s.events {
		if e.PositionID == positionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEventStore) ListBetween(_ context.Context, since, until time.Time) ([]domain.ExitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExitEvent
	for _, e := range s.events {
		if !e.CreatedAt.Before(since) && e.CreatedAt.Before(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]float64
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{quotes: make(map[string]float64)}
}

func (c *fakeQuoteCache) Get(_ context.Context, key string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.quotes[key]
	return price, ok, nil
}

func (c *fakeQuoteCache) Set(_ context.Context, key string, price float64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = price
	return nil
}

type fakeLockManager struct {
	held bool
}

func (l *fakeLockManager) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

// fakeMarket serves scripted quotes and chains and counts provider calls.
type fakeMarket struct {
	mu       sync.Mutex
	shares   map[string]float64
	options  map[string]float64
	chain    []domain.ContractCandidate
	calls    int
	quoteErr error
}

func (m *fakeMarket) SharePrice(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.quoteErr != nil {
		return 0, m.quoteErr
	}
	price, ok := m.shares[symbol]
	if !ok {
		return 0, domain.ErrNoQuote
	}
	return price, nil
}

func (m *fakeMarket) OptionQuote(_ context.Context, contract string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.quoteErr != nil {
		return 0, m.quoteErr
	}
	price, ok := m.options[contract]
	if !ok {
		return 0, domain.ErrNoQuote
	}
	return price, nil
}

func (m *fakeMarket) OptionChain(context.Context, domain.ChainFilter) ([]domain.ContractCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain, nil
}

func (m *fakeMarket) NearestContract(_ context.Context, _, _ string, _ domain.OptionSide, target float64) (string, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.chain) == 0 {
		return "", 0, domain.ErrNoContract
	}
	best := m.chain[0]
	for _, c := range m.chain[1:] {
		if abs(c.Strike-target) < abs(best.Strike-target) {
			best = c
		}
	}
	return best.Contract, best.Strike, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

type fakeBroker struct {
	healthy   bool
	positions []domain.BrokerPosition
}

func (b *fakeBroker) Positions(context.Context) ([]domain.BrokerPosition, error) {
	return b.positions, nil
}

func (b *fakeBroker) Healthy(context.Context) bool { return b.healthy }

type fakeBus struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{payloads: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads[stream] = append(b.payloads[stream], payload)
	return nil
}

// fakeSender records delivered messages and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	sent []notify.Message
	fail bool
}

func (s *fakeSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("delivery refused")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
