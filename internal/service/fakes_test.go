package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
)

// memStore is an in-memory stand-in for the Postgres store
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	products  map[int64]*models.Product
	sessions  map[int64]*models.InventorySession
	items     map[int64]map[int64]*models.CountItem
	movements []models.StockMovement
	upserts   []models.CountItem
	processed map[string]bool

	failUpserts int // next N upserts fail
	attempts    int

	clients []models.Client
	brands  []models.Brand
	dmodels []models.DeviceModel
	orders  []models.ServiceOrder
}

func newMemStore(products ...models.Product) *memStore {
	s := &memStore{
		products:  make(map[int64]*models.Product),
		sessions:  make(map[int64]*models.InventorySession),
		items:     make(map[int64]map[int64]*models.CountItem),
		processed: make(map[string]bool),
	}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Quantity
}

func (s *memStore) failNextUpserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpserts = n
}

func (s *memStore) upsertAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *memStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func (s *memStore) item(sessionID, productID int64) (models.CountItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[sessionID][productID]
	if !ok {
		return models.CountItem{}, false
	}
	return *it, true
}

func (s *memStore) ListProducts(_ context.Context, _ models.ProductFilter, offset, limit int) ([]models.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return []models.Product{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (s *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) GetProductStocks(_ context.Context) ([]store.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []store.ProductStock{}
	for _, p := range s.products {
		out = append(out, store.ProductStock{ProductID: p.ID, Quantity: p.Quantity})
	}
	return out, nil
}

func (s *memStore) CreateSession(_ context.Context, session *models.InventorySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = s.id()
	session.CreatedAt = time.Now().Add(time.Duration(session.ID) * time.Millisecond)
	session.UpdatedAt = session.CreatedAt
	cp := *session
	s.sessions[session.ID] = &cp
	s.items[session.ID] = make(map[int64]*models.CountItem)
	return nil
}

func (s *memStore) GetSession(_ context.Context, id int64) (*models.InventorySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrSessionNotFound, id)
	}
	cp := *session
	return &cp, nil
}

func (s *memStore) FindDraftSession(_ context.Context, actor string) (*models.InventorySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.InventorySession
	for _, session := range s.sessions {
		if session.Status == models.SessionStatusDraft && session.CreatedBy == actor {
			if found == nil || session.ID > found.ID {
				found = session
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (s *memStore) ListSessionsByStatus(_ context.Context, status string) ([]models.InventorySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.InventorySession{}
	for _, session := range s.sessions {
		if session.Status == status {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) EnsureCountItems(_ context.Context, sessionID int64, products []models.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; !ok || session.Status != models.SessionStatusDraft {
		return 0, fmt.Errorf("%w: %d", models.ErrNotDraft, sessionID)
	}
	var created int64
	for _, p := range products {
		if _, ok := s.items[sessionID][p.ID]; ok {
			continue
		}
		s.items[sessionID][p.ID] = &models.CountItem{
			ID: s.id(), SessionID: sessionID, ProductID: p.ID, ProductName: p.Name,
			SystemQty: p.Quantity, CountedQty: p.Quantity,
		}
		created++
	}
	return created, nil
}

func (s *memStore) UpsertCountItem(_ context.Context, item models.CountItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failUpserts > 0 {
		s.failUpserts--
		return errors.New("connection reset by peer")
	}
	session, ok := s.sessions[item.SessionID]
	if !ok || session.Status != models.SessionStatusDraft {
		return fmt.Errorf("%w: %d", models.ErrNotDraft, item.SessionID)
	}
	s.upserts = append(s.upserts, item)
	if cur, ok := s.items[item.SessionID][item.ProductID]; ok {
		cur.CountedQty = item.CountedQty
		return nil
	}
	item.ID = s.id()
	s.items[item.SessionID][item.ProductID] = &item
	return nil
}

func (s *memStore) sortedItems(sessionID int64) []models.CountItem {
	out := []models.CountItem{}
	for _, it := range s.items[sessionID] {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *memStore) GetCountItems(_ context.Context, sessionID int64) ([]models.CountItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedItems(sessionID), nil
}

func (s *memStore) GetCountItemsByProducts(_ context.Context, sessionID int64, productIDs []int64) ([]models.CountItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.CountItem{}
	for _, id := range productIDs {
		if it, ok := s.items[sessionID][id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) transition(id int64, from string) (*models.InventorySession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrSessionNotFound, id)
	}
	if session.Status != from {
		return nil, fmt.Errorf("%w: session %d is %s", models.ErrInvalidTransition, id, session.Status)
	}
	return session, nil
}

func (s *memStore) SubmitSession(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.transition(id, models.SessionStatusDraft)
	if err != nil {
		return 0, err
	}
	total := len(s.items[id])
	if total == 0 {
		return 0, models.ErrEmptySession
	}
	session.Status = models.SessionStatusPending
	session.TotalItems = total
	return total, nil
}

func (s *memStore) ApplyApproval(_ context.Context, sessionID int64, actor string, adjustments []models.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.transition(sessionID, models.SessionStatusPending)
	if err != nil {
		return err
	}
	for _, adj := range adjustments {
		if _, ok := s.products[adj.ProductID]; !ok {
			return fmt.Errorf("%w: %d", models.ErrProductNotFound, adj.ProductID)
		}
	}
	for _, adj := range adjustments {
		s.products[adj.ProductID].Quantity = adj.After
		s.movements = append(s.movements, models.StockMovement{
			ID: s.id(), ProductID: adj.ProductID, SessionID: sessionID, Type: models.MovementTypeInventory,
			QtyBefore: adj.Before, QtyAfter: adj.After, Delta: adj.Delta, CreatedBy: actor,
		})
	}
	now := time.Now()
	session.Status = models.SessionStatusApproved
	session.ApprovedBy, session.ApprovedAt = &actor, &now
	return nil
}

func (s *memStore) RejectSession(_ context.Context, sessionID int64, actor, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.transition(sessionID, models.SessionStatusPending)
	if err != nil {
		return err
	}
	now := time.Now()
	session.Status = models.SessionStatusRejected
	session.RejectedBy, session.RejectedAt = &actor, &now
	session.Reason = &reason
	return nil
}

func (s *memStore) GetMovementsBySession(_ context.Context, sessionID int64) ([]models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StockMovement{}
	for _, m := range s.movements {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CreateServiceOrder(_ context.Context, client *models.Client, brand *models.Brand, model *models.DeviceModel, order *models.ServiceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client.ID = s.id()
	s.clients = append(s.clients, *client)
	brand.ID = s.id()
	s.brands = append(s.brands, *brand)
	model.BrandID = brand.ID
	model.ID = s.id()
	s.dmodels = append(s.dmodels, *model)

	order.ID = s.id()
	order.ClientID, order.BrandID, order.ModelID = client.ID, brand.ID, model.ID
	s.orders = append(s.orders, *order)
	return nil
}

func (s *memStore) GetServiceOrderByID(_ context.Context, id int64) (*models.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", store.ErrServiceOrderNotFound, id)
}

func (s *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[eventID], nil
}

func (s *memStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}

// memEvents records published events
type memEvents struct {
	mu        sync.Mutex
	submitted []*models.InventorySubmittedEvent
	approved  []*models.InventoryApprovedEvent
	rejected  []*models.InventoryRejectedEvent
	imported  []*models.ServiceOrderImportedEvent
}

func (e *memEvents) PublishInventorySubmitted(_ context.Context, ev *models.InventorySubmittedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, ev)
	return nil
}

func (e *memEvents) PublishInventoryApproved(_ context.Context, ev *models.InventoryApprovedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.approved = append(e.approved, ev)
	return nil
}

func (e *memEvents) PublishInventoryRejected(_ context.Context, ev *models.InventoryRejectedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected = append(e.rejected, ev)
	return nil
}

func (e *memEvents) PublishServiceOrderImported(_ context.Context, ev *models.ServiceOrderImportedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.imported = append(e.imported, ev)
	return nil
}

// memLocker is a single-process lock table
type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	count int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.count++
	token := fmt.Sprintf("token-%d", l.count)
	l.held[key] = token
	return token, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

// memKeys is an in-memory idempotency store
type memKeys struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemKeys() *memKeys {
	return &memKeys{vals: make(map[string]string)}
}

func (k *memKeys) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.vals[key]; ok {
		return false, nil
	}
	k.vals[key] = ""
	return true, nil
}

func (k *memKeys) CompleteIdempotencyKey(_ context.Context, key, result string, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.vals[key] = result
	return nil
}

func (k *memKeys) GetIdempotencyResult(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.vals[key]
	return v, ok && v != "", nil
}

func (k *memKeys) ReleaseIdempotencyKey(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.vals, key)
	return nil
}

// memCache is an in-memory stock cache
type memCache struct {
	mu   sync.Mutex
	vals map[int64]int
	err  error
}

func newMemCache() *memCache {
	return &memCache{vals: make(map[int64]int)}
}

func (c *memCache) GetStock(_ context.Context, id int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	v, ok := c.vals[id]
	return v, ok, nil
}

func (c *memCache) SetStocks(_ context.Context, stocks map[int64]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, q := range stocks {
		c.vals[id] = q
	}
	return nil
}
