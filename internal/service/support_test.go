package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"freight-settlement-service/internal/model"
	"freight-settlement-service/internal/repository"
)

// Fakes en memoria con la misma semántica CAS que los repositorios Mongo.

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.CargoItem(nil), o.Items...)
	cp.Pricing.AdditionalFees = append([]model.Fee(nil), o.Pricing.AdditionalFees...)
	cp.TrackingEvents = append([]model.TrackingEvent(nil), o.TrackingEvents...)
	cp.Ratings = append([]model.RatingEntry(nil), o.Ratings...)
	if o.AIClosure != nil {
		cl := *o.AIClosure
		cp.AIClosure = &cl
	}
	if o.DeliveryDateActual != nil {
		t := *o.DeliveryDateActual
		cp.DeliveryDateActual = &t
	}
	return &cp
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order

	// fuerza ErrVersionConflict en las próximas n escrituras
	conflicts int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*model.Order{}}
}

func (r *fakeOrderRepo) Insert(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) ReplaceVersioned(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.orders[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		return repository.ErrVersionConflict
	}
	if cur.Version != o.Version {
		return repository.ErrVersionConflict
	}
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *fakeOrderRepo) FindByParty(_ context.Context, userID, role string, status model.Status) ([]*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Order
	for _, o := range r.orders {
		match := false
		switch role {
		case "buyer":
			match = o.BuyerID == userID
		case "seller":
			match = o.SellerID == userID
		case "carrier":
			match = o.CarrierID == userID
		default:
			match = o.IsParty(userID)
		}
		if match && (status == "" || o.Status == status) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

type fakeEscrowRepo struct {
	mu      sync.Mutex
	records map[string]*model.EscrowRecord
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{records: map[string]*model.EscrowRecord{}}
}

func cloneEscrow(r *model.EscrowRecord) *model.EscrowRecord {
	cp := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

func (r *fakeEscrowRepo) EnsureHeld(_ context.Context, rec *model.EscrowRecord) (*model.EscrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[rec.OrderID]; ok {
		return cloneEscrow(existing), nil
	}
	r.records[rec.OrderID] = cloneEscrow(rec)
	return cloneEscrow(rec), nil
}

func (r *fakeEscrowRepo) FindByOrderID(_ context.Context, orderID string) (*model.EscrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneEscrow(rec), nil
}

func (r *fakeEscrowRepo) TransitionState(_ context.Context, orderID string, from []model.EscrowState, to model.EscrowState, reason string) (*model.EscrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[orderID]
	if !ok {
		return nil, repository.ErrEscrowStateGate
	}
	allowed := false
	for _, st := range from {
		if rec.State == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, repository.ErrEscrowStateGate
	}

	rec.State = to
	if to.IsTerminal() {
		t := time.Now().UTC()
		rec.ResolvedAt = &t
	}
	if reason != "" {
		rec.DisputeReason = reason
	}
	return cloneEscrow(rec), nil
}

func (r *fakeEscrowRepo) FindByUser(_ context.Context, userID string) ([]*model.EscrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EscrowRecord
	for _, rec := range r.records {
		if rec.PayerID == userID || rec.PayeeID == userID {
			out = append(out, cloneEscrow(rec))
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) byType(t string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestServices() (*OrderService, *EscrowService, *fakeOrderRepo, *fakeEscrowRepo, *fakePublisher) {
	orderRepo := newFakeOrderRepo()
	escrowRepo := newFakeEscrowRepo()
	pub := &fakePublisher{}
	escrow := NewEscrowService(escrowRepo, zap.NewNop())
	orders := NewOrderService(orderRepo, escrow, pub, zap.NewNop())
	return orders, escrow, orderRepo, escrowRepo, pub
}
