package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordersmemory "github.com/payetonkawa/order-api/internal/domains/orders/adapters/memory"
	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/events"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

type publishedEvent struct {
	RoutingKey string
	Payload    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func newTestService(t *testing.T) (*Service, *ordersmemory.Repository, *recordingPublisher) {
	t.Helper()
	repo := ordersmemory.NewRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
	return svc, repo, pub
}

func submit(t *testing.T, svc *Service, customerID int64) *domain.Order {
	t.Helper()
	order, err := svc.SubmitOrder(context.Background(), customerID, []domain.ItemSpec{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})
	require.NoError(t, err)
	return order
}

func TestSubmitOrder_PublishesValidationAndPricing(t *testing.T) {
	svc, _, pub := newTestService(t)

	order := submit(t, svc, 42)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, 1, order.Version)

	require.Equal(t, []string{events.CustomerValidateRequest, events.OrderRequestPrice}, pub.keys())

	validate, ok := pub.events[0].Payload.(events.ValidateRequestPayload)
	require.True(t, ok)
	assert.Equal(t, order.ID, validate.OrderID)
	assert.Equal(t, int64(42), validate.CustomerID)

	pricing, ok := pub.events[1].Payload.(events.RequestPricePayload)
	require.True(t, ok)
	require.Len(t, pricing.Items, 2)
	assert.Equal(t, int64(1), pricing.Items[0].ProductID)
	assert.Equal(t, int32(2), pricing.Items[0].Quantity)
}

func TestSubmitOrder_InvalidInput(t *testing.T) {
	svc, _, pub := newTestService(t)

	_, err := svc.SubmitOrder(context.Background(), 0, []domain.ItemSpec{{ProductID: 1, Quantity: 1}})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrInvalidCustomerID)

	_, err = svc.SubmitOrder(context.Background(), 42, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, pub.keys())
}

func TestSubmitOrder_SurvivesPublishFailure(t *testing.T) {
	svc, _, pub := newTestService(t)
	pub.err = errors.New("broker down")

	order := submit(t, svc, 42)

	// The mutation is committed even though the events were lost.
	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestApplyPriceQuote_PricesOrderAndPublishesCreated(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	pub.reset()

	err := svc.ApplyPriceQuote(context.Background(), order.ID, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromFloat(9.99)},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromFloat(4.50)},
	}, decimal.NewFromFloat(24.48))
	require.NoError(t, err)

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "24.48", stored.Total.StringFixed(2))
	assert.Equal(t, 2, stored.Version)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "19.98", stored.Items[0].LineTotal.StringFixed(2))

	require.Equal(t, []string{events.OrderCreated}, pub.keys())
	created, ok := pub.events[0].Payload.(events.CreatedPayload)
	require.True(t, ok)
	assert.Equal(t, order.ID, created.ID)
	assert.Equal(t, int64(42), created.CustomerID)
	assert.Equal(t, string(domain.StatusPending), created.Status)
	require.Len(t, created.Items, 2)
	assert.InDelta(t, 9.99, created.Items[0].UnitPrice, 0.001)
}

func TestApplyPriceQuote_UnknownOrderDropped(t *testing.T) {
	svc, _, pub := newTestService(t)

	err := svc.ApplyPriceQuote(context.Background(), 999, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Empty(t, pub.keys())
}

func TestTransitionStatus_NoOpSuppressesEvent(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	pub.reset()

	same, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusPending, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, same.Status)
	assert.Equal(t, order.Version, same.Version)
	assert.Empty(t, pub.keys())
}

func TestTransitionStatus_CancelPublishesCancelled(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	pub.reset()

	updated, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusCancelled, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)
	assert.Equal(t, order.Version+1, updated.Version)

	require.Equal(t, []string{events.OrderCancelled}, pub.keys())
	payload, ok := pub.events[0].Payload.(events.StatusPayload)
	require.True(t, ok)
	assert.Equal(t, order.ID, payload.ID)
	assert.Len(t, payload.Items, 2)
}

func TestTransitionStatus_PublishFlagFalseSuppressesEvent(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	pub.reset()

	_, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusConfirmed, false)
	require.NoError(t, err)
	assert.Empty(t, pub.keys())
}

func TestTransitionStatus_ConfirmedPublishesUpdated(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	pub.reset()

	_, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusConfirmed, true)
	require.NoError(t, err)
	require.Equal(t, []string{events.OrderUpdated}, pub.keys())
}

func TestTransitionStatus_InvalidTransition(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	_, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusCancelled, false)
	require.NoError(t, err)
	pub.reset()

	_, err = svc.TransitionStatus(context.Background(), order.ID, domain.StatusConfirmed, true)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, pub.keys())
}

func TestReplaceItems_PublishesSnapshotAndDelta(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	require.NoError(t, svc.ApplyPriceQuote(context.Background(), order.ID, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}, decimal.NewFromInt(25)))
	pub.reset()

	updated, err := svc.ReplaceItems(context.Background(), order.ID, []domain.ItemChange{
		{ProductID: 1, Quantity: 5},
		{ProductID: 2, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "55.00", updated.Total.StringFixed(2))

	require.Equal(t, []string{events.OrderUpdated, events.OrderItemsDelta}, pub.keys())
	delta, ok := pub.events[1].Payload.(events.ItemsDeltaPayload)
	require.True(t, ok)
	require.Len(t, delta.Deltas, 1)
	assert.Equal(t, int64(1), delta.Deltas[0].ProductID)
	assert.Equal(t, int32(3), delta.Deltas[0].Delta)
}

func TestReplaceItems_NoDeltaPublishesOnlySnapshot(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	require.NoError(t, svc.ApplyPriceQuote(context.Background(), order.ID, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}, decimal.NewFromInt(25)))
	pub.reset()

	_, err := svc.ReplaceItems(context.Background(), order.ID, []domain.ItemChange{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, []string{events.OrderUpdated}, pub.keys())
}

func TestReplaceItems_MissingPriceLeavesOrderUntouched(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	require.NoError(t, svc.ApplyPriceQuote(context.Background(), order.ID, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
	}, decimal.NewFromInt(20)))
	pub.reset()

	_, err := svc.ReplaceItems(context.Background(), order.ID, []domain.ItemChange{
		{ProductID: 99, Quantity: 1},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrMissingPrice)
	assert.Empty(t, pub.keys())

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(1), stored.Items[0].ProductID)
}

func TestCancelForCustomer_CancelsAllAndPublishesEach(t *testing.T) {
	svc, _, pub := newTestService(t)
	first := submit(t, svc, 42)
	second := submit(t, svc, 42)
	submit(t, svc, 7) // other customer, untouched
	pub.reset()

	cancelled, err := svc.CancelForCustomer(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	require.Equal(t, []string{events.OrderCancelled, events.OrderCancelled}, pub.keys())

	for _, id := range []int64{first.ID, second.ID} {
		stored, err := svc.GetOrder(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, stored.Status)
	}
}

func TestCancelForCustomer_SkipsAlreadyCancelled(t *testing.T) {
	svc, _, pub := newTestService(t)
	first := submit(t, svc, 42)
	submit(t, svc, 42)
	_, err := svc.TransitionStatus(context.Background(), first.ID, domain.StatusCancelled, false)
	require.NoError(t, err)
	pub.reset()

	cancelled, err := svc.CancelForCustomer(context.Background(), 42)
	require.NoError(t, err)
	// The already-cancelled order hits the no-op path and stays counted,
	// but no second cancellation event goes out for it.
	assert.Equal(t, 2, cancelled)
	require.Equal(t, []string{events.OrderCancelled}, pub.keys())
}

// vanishingRepo reports one order as gone, simulating a concurrent delete
// winning the race between the cascade's listing and its per-order load.
type vanishingRepo struct {
	ports.Repository
	goneID int64
}

func (r *vanishingRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if id == r.goneID {
		return nil, ports.ErrNotFound
	}
	return r.Repository.GetByID(ctx, id)
}

func TestCancelForCustomer_ContinuesPastRemovedOrder(t *testing.T) {
	repo := &vanishingRepo{Repository: ordersmemory.NewRepository()}
	pub := &recordingPublisher{}
	svc := NewService(repo, pub)

	first, err := svc.SubmitOrder(context.Background(), 42, []domain.ItemSpec{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)
	second, err := svc.SubmitOrder(context.Background(), 42, []domain.ItemSpec{{ProductID: 2, Quantity: 1}})
	require.NoError(t, err)
	repo.goneID = first.ID
	pub.reset()

	cancelled, err := svc.CancelForCustomer(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)
	require.Equal(t, []string{events.OrderCancelled}, pub.keys())

	stored, err := svc.GetOrder(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestRemoveOrder_PublishesSnapshotOfDeletedItems(t *testing.T) {
	svc, _, pub := newTestService(t)
	order := submit(t, svc, 42)
	require.NoError(t, svc.ApplyPriceQuote(context.Background(), order.ID, 42, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
	}, decimal.NewFromInt(20)))
	pub.reset()

	require.NoError(t, svc.RemoveOrder(context.Background(), order.ID))

	_, err := svc.GetOrder(context.Background(), order.ID)
	require.Error(t, err)

	require.Equal(t, []string{events.OrderDeleted}, pub.keys())
	payload, ok := pub.events[0].Payload.(events.DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, order.ID, payload.ID)
	assert.Equal(t, int64(42), payload.CustomerID)
	require.Len(t, payload.Items, 1)
	assert.InDelta(t, 10.0, payload.Items[0].UnitPrice, 0.001)
	assert.False(t, payload.DeletedAt.IsZero())
}

func TestRemoveOrder_NotFound(t *testing.T) {
	svc, _, pub := newTestService(t)

	err := svc.RemoveOrder(context.Background(), 404)
	require.Error(t, err)
	assert.Empty(t, pub.keys())
}
