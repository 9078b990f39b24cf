package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"backoffice-service/internal/autosave"
	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrNegativeQuantity = errors.New("counted quantity cannot be negative")
	ErrLocked           = errors.New("inventory session is being processed by another request")
	ErrUnsavedEdits     = errors.New("inventory session has counts that could not be saved")
)

// InventoryStore is the persistence used by the count workflow
type InventoryStore interface {
	ListProducts(ctx context.Context, f models.ProductFilter, offset, limit int) ([]models.Product, int, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateSession(ctx context.Context, session *models.InventorySession) error
	GetSession(ctx context.Context, id int64) (*models.InventorySession, error)
	FindDraftSession(ctx context.Context, actor string) (*models.InventorySession, error)
	ListSessionsByStatus(ctx context.Context, status string) ([]models.InventorySession, error)
	EnsureCountItems(ctx context.Context, sessionID int64, products []models.Product) (int64, error)
	UpsertCountItem(ctx context.Context, item models.CountItem) error
	GetCountItems(ctx context.Context, sessionID int64) ([]models.CountItem, error)
	GetCountItemsByProducts(ctx context.Context, sessionID int64, productIDs []int64) ([]models.CountItem, error)
	SubmitSession(ctx context.Context, id int64) (int, error)
	ApplyApproval(ctx context.Context, sessionID int64, actor string, adjustments []models.StockAdjustment) error
	RejectSession(ctx context.Context, sessionID int64, actor, reason string) error
	GetMovementsBySession(ctx context.Context, sessionID int64) ([]models.StockMovement, error)
}

// InventoryEvents publishes session transitions
type InventoryEvents interface {
	PublishInventorySubmitted(ctx context.Context, event *models.InventorySubmittedEvent) error
	PublishInventoryApproved(ctx context.Context, event *models.InventoryApprovedEvent) error
	PublishInventoryRejected(ctx context.Context, event *models.InventoryRejectedEvent) error
}

// Locker is a distributed mutex
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// InventoryOptions tunes the count workflow
type InventoryOptions struct {
	Debounce        time.Duration
	DefaultPageSize int
	MaxPageSize     int
	LockTTL         time.Duration
}

// draft is the in-memory state of a session being counted. It owns the
// session's autosave queue.
type draft struct {
	sessionID int64

	mu    sync.Mutex
	known map[int64]models.CountItem // persisted snapshot per product
	edits map[int64]models.CountItem // edits not yet written

	queue *autosave.Queue[int64, models.CountItem]
}

func (d *draft) remember(items []models.CountItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, it := range items {
		if _, ok := d.known[it.ProductID]; !ok {
			d.known[it.ProductID] = it
		}
	}
}

func (d *draft) lookup(productID int64) (models.CountItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.edits[productID]; ok {
		return it, true
	}
	it, ok := d.known[productID]
	return it, ok
}

func (d *draft) written(item models.CountItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[item.ProductID] = item
	if cur, ok := d.edits[item.ProductID]; ok && cur == item {
		delete(d.edits, item.ProductID)
	}
}

// InventoryService drives count sessions through draft, pending and review
type InventoryService struct {
	store    InventoryStore
	events   InventoryEvents
	locker   Locker
	opts     InventoryOptions
	validate *validator.Validate
	logger   *zap.Logger

	mu     sync.Mutex
	drafts map[int64]*draft
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryStore, events InventoryEvents, locker Locker, opts InventoryOptions) *InventoryService {
	if opts.Debounce <= 0 {
		opts.Debounce = 450 * time.Millisecond
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}

	return &InventoryService{
		store:    store,
		events:   events,
		locker:   locker,
		opts:     opts,
		validate: validator.New(),
		logger:   util.GetLogger(),
		drafts:   make(map[int64]*draft),
	}
}

// draftFor returns the in-memory state of a draft session, creating it on first use
func (s *InventoryService) draftFor(sessionID int64) *draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.drafts[sessionID]; ok {
		return d
	}

	d := &draft{
		sessionID: sessionID,
		known:     make(map[int64]models.CountItem),
		edits:     make(map[int64]models.CountItem),
	}
	d.queue = autosave.New[int64, models.CountItem](s.opts.Debounce,
		func(ctx context.Context, _ int64, item models.CountItem) error {
			if err := s.store.UpsertCountItem(ctx, item); err != nil {
				return err
			}
			d.written(item)
			return nil
		},
		func(productID int64, err error) {
			s.logger.Error("Failed to autosave count item",
				zap.Int64("inventario_id", sessionID),
				zap.Int64("produto_id", productID),
				zap.Error(err))
		})
	s.drafts[sessionID] = d
	return d
}

func (s *InventoryService) dropDraft(sessionID int64) *draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.drafts[sessionID]
	delete(s.drafts, sessionID)
	return d
}

// StartSession creates a new draft session for actor
func (s *InventoryService) StartSession(ctx context.Context, actor string, filter models.ProductFilter) (*models.InventorySession, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.StartSession")
	defer span.End()

	session := &models.InventorySession{
		Status:    models.SessionStatusDraft,
		Filters:   datatypes.NewJSONType(filter),
		CreatedBy: actor,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to create inventory session: %w", err))
	}

	util.InventorySessionsCreatedTotal.Inc()
	s.draftFor(session.ID)
	util.FromContext(ctx).Info("Inventory session started",
		zap.Int64("inventario_id", session.ID),
		zap.String("actor", actor))
	return session, nil
}

// resolveDraft returns the given draft session, or the actor's latest draft,
// or a new one.
func (s *InventoryService) resolveDraft(ctx context.Context, actor string, sessionID int64, filter models.ProductFilter) (*models.InventorySession, error) {
	if sessionID > 0 {
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status != models.SessionStatusDraft {
			return nil, fmt.Errorf("%w: %d", models.ErrNotDraft, sessionID)
		}
		return session, nil
	}

	session, err := s.store.FindDraftSession(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to find draft session: %w", err)
	}
	if session != nil {
		return session, nil
	}
	return s.StartSession(ctx, actor, filter)
}

// PageRequest selects one page of products to count
type PageRequest struct {
	SessionID int64  `form:"inventario_id" validate:"omitempty,min=1"`
	Search    string `form:"search" validate:"max=100"`
	Group     string `form:"grupo" validate:"max=100"`
	Location  string `form:"localizacao" validate:"max=100"`
	Page      int    `form:"page" validate:"omitempty,min=1,max=100000"`
	Size      int    `form:"size" validate:"omitempty,min=1"`
}

func (r PageRequest) filter() models.ProductFilter {
	return models.ProductFilter{Search: r.Search, Group: r.Group, Location: r.Location}
}

// PageRow is a product with its count in the session
type PageRow struct {
	models.Product
	SystemQty  int  `json:"qtd_sistema"`
	CountedQty int  `json:"qtd_contada"`
	Unsaved    bool `json:"nao_salvo"`
}

// Page is one page of the count sheet
type Page struct {
	Session *models.InventorySession `json:"inventario"`
	Items   []PageRow                `json:"itens"`
	Page    int                      `json:"page"`
	Size    int                      `json:"size"`
	Total   int                      `json:"total"`
}

// LoadPage lists a page of products, seeding a count item per product, and
// overlays edits that are not persisted yet.
func (s *InventoryService) LoadPage(ctx context.Context, actor string, req PageRequest) (*Page, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.LoadPage")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, &RequestError{Err: err}
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Size == 0 {
		req.Size = s.opts.DefaultPageSize
	}
	if req.Size > s.opts.MaxPageSize {
		req.Size = s.opts.MaxPageSize
	}

	session, err := s.resolveDraft(ctx, actor, req.SessionID, req.filter())
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	span.SetAttributes(attribute.Int64("inventario_id", session.ID))

	products, total, err := s.store.ListProducts(ctx, req.filter(), (req.Page-1)*req.Size, req.Size)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	created, err := s.store.EnsureCountItems(ctx, session.ID, products)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to seed count items: %w", err))
	}
	util.InventoryItemsSeededTotal.Add(float64(created))

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	items, err := s.store.GetCountItemsByProducts(ctx, session.ID, ids)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to load count items: %w", err))
	}

	d := s.draftFor(session.ID)
	d.remember(items)

	d.mu.Lock()
	rows := make([]PageRow, 0, len(products))
	for _, p := range products {
		row := PageRow{Product: p, SystemQty: p.Quantity, CountedQty: p.Quantity}
		if it, ok := d.known[p.ID]; ok {
			row.SystemQty = it.SystemQty
			row.CountedQty = it.CountedQty
		}
		if it, ok := d.edits[p.ID]; ok {
			row.CountedQty = it.CountedQty
			row.Unsaved = true
		}
		rows = append(rows, row)
	}
	d.mu.Unlock()

	return &Page{Session: session, Items: rows, Page: req.Page, Size: req.Size, Total: total}, nil
}

// EditCount records a counted quantity in memory and schedules its write.
// A zero sessionID resolves the actor's draft, creating one on first edit.
func (s *InventoryService) EditCount(ctx context.Context, actor string, sessionID, productID int64, counted int) (*models.CountItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.EditCount",
		attribute.Int64("produto_id", productID))
	defer span.End()

	if counted < 0 {
		return nil, ErrNegativeQuantity
	}

	s.mu.Lock()
	_, active := s.drafts[sessionID]
	s.mu.Unlock()
	if !active || sessionID == 0 {
		session, err := s.resolveDraft(ctx, actor, sessionID, models.ProductFilter{})
		if err != nil {
			return nil, util.SpanError(span, err)
		}
		sessionID = session.ID
	}

	d := s.draftFor(sessionID)
	item, ok := d.lookup(productID)
	if !ok {
		loaded, err := s.loadSnapshot(ctx, sessionID, productID)
		if err != nil {
			return nil, util.SpanError(span, err)
		}
		d.remember([]models.CountItem{*loaded})
		item = *loaded
	}

	item.CountedQty = counted
	d.mu.Lock()
	d.edits[productID] = item
	d.mu.Unlock()

	if err := d.queue.Schedule(productID, item); err != nil {
		return nil, util.SpanError(span, err)
	}
	return &item, nil
}

// loadSnapshot reads the persisted item, or builds one from the product
func (s *InventoryService) loadSnapshot(ctx context.Context, sessionID, productID int64) (*models.CountItem, error) {
	items, err := s.store.GetCountItemsByProducts(ctx, sessionID, []int64{productID})
	if err != nil {
		return nil, fmt.Errorf("failed to load count item: %w", err)
	}
	if len(items) > 0 {
		return &items[0], nil
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &models.CountItem{
		SessionID:   sessionID,
		ProductID:   product.ID,
		ProductName: product.Name,
		SystemQty:   product.Quantity,
		CountedQty:  product.Quantity,
	}, nil
}

// FlushDraft writes every pending edit of a session now
func (s *InventoryService) FlushDraft(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	d, ok := s.drafts[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.persist(ctx, d)
}

// persist flushes the autosave queue, then writes again every edit that is
// still unsaved, which covers debounced writes that failed earlier.
func (s *InventoryService) persist(ctx context.Context, d *draft) error {
	if err := d.queue.Flush(ctx); err != nil {
		s.logger.Warn("Autosave flush failed, retrying unsaved counts",
			zap.Int64("inventario_id", d.sessionID), zap.Error(err))
	}

	d.mu.Lock()
	unsaved := make([]models.CountItem, 0, len(d.edits))
	for _, it := range d.edits {
		unsaved = append(unsaved, it)
	}
	d.mu.Unlock()
	sort.Slice(unsaved, func(i, j int) bool { return unsaved[i].ProductID < unsaved[j].ProductID })

	for _, it := range unsaved {
		if err := s.store.UpsertCountItem(ctx, it); err != nil {
			return fmt.Errorf("%w: produto %d: %w", ErrUnsavedEdits, it.ProductID, err)
		}
		d.written(it)
	}
	return nil
}

// CloseDraft saves pending edits and releases the session's in-memory state.
// The state is kept when a count cannot be saved.
func (s *InventoryService) CloseDraft(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	d, ok := s.drafts[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.persist(ctx, d); err != nil {
		return fmt.Errorf("failed to save draft %d: %w", sessionID, err)
	}
	if d := s.dropDraft(sessionID); d != nil {
		d.queue.Close()
	}
	return nil
}

// Shutdown closes every open draft
func (s *InventoryService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.drafts))
	for id := range s.drafts {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.CloseDraft(ctx, id); err != nil {
			s.logger.Error("Failed to close draft on shutdown", zap.Int64("inventario_id", id), zap.Error(err))
		}
	}
}

// Submit moves a draft to pending after persisting every pending edit
func (s *InventoryService) Submit(ctx context.Context, actor string, sessionID int64) (*models.InventorySession, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Submit",
		attribute.Int64("inventario_id", sessionID))
	defer span.End()

	if err := s.FlushDraft(ctx, sessionID); err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to save pending counts: %w", err))
	}

	total, err := s.store.SubmitSession(ctx, sessionID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	if d := s.dropDraft(sessionID); d != nil {
		d.queue.Close()
	}
	util.InventorySessionsTransitionsTotal.WithLabelValues(models.SessionStatusPending).Inc()

	event := &models.InventorySubmittedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeInventorySubmitted),
		SessionID:   sessionID,
		TotalItems:  total,
		SubmittedBy: actor,
	}
	if err := s.events.PublishInventorySubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventorySubmitted event", zap.Int64("inventario_id", sessionID), zap.Error(err))
	}

	util.FromContext(ctx).Info("Inventory session submitted",
		zap.Int64("inventario_id", sessionID),
		zap.Int("total_itens", total))
	return s.store.GetSession(ctx, sessionID)
}

// ListPending returns sessions waiting for review, newest first
func (s *InventoryService) ListPending(ctx context.Context) ([]models.InventorySession, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListPending")
	defer span.End()

	sessions, err := s.store.ListSessionsByStatus(ctx, models.SessionStatusPending)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to list pending sessions: %w", err))
	}
	return sessions, nil
}

// LoadItems returns every item of a session with its delta and product identity
func (s *InventoryService) LoadItems(ctx context.Context, sessionID int64) ([]models.ReviewItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.LoadItems",
		attribute.Int64("inventario_id", sessionID))
	defer span.End()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, util.SpanError(span, err)
	}

	items, err := s.store.GetCountItems(ctx, sessionID)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to load count items: %w", err))
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to load products: %w", err))
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	review := make([]models.ReviewItem, 0, len(items))
	for _, it := range items {
		p := byID[it.ProductID]
		review = append(review, models.ReviewItem{
			CountItem: it,
			Code:      p.Code,
			Reference: p.Reference,
			Barcode:   p.Barcode,
			Delta:     it.Delta(),
		})
	}
	return review, nil
}

// LoadMovements returns the stock movements an approval wrote for the session
func (s *InventoryService) LoadMovements(ctx context.Context, sessionID int64) ([]models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.LoadMovements",
		attribute.Int64("inventario_id", sessionID))
	defer span.End()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, util.SpanError(span, err)
	}

	movements, err := s.store.GetMovementsBySession(ctx, sessionID)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to load movements: %w", err))
	}
	return movements, nil
}

// PlanApproval yields one stock adjustment per item whose count differs
func PlanApproval(items []models.CountItem) []models.StockAdjustment {
	adjustments := []models.StockAdjustment{}
	for _, it := range items {
		if it.CountedQty == it.SystemQty {
			continue
		}
		adjustments = append(adjustments, models.StockAdjustment{
			ProductID: it.ProductID,
			Before:    it.SystemQty,
			After:     it.CountedQty,
			Delta:     it.Delta(),
		})
	}
	return adjustments
}

func approvalLockKey(sessionID int64) string {
	return "inventario:" + strconv.FormatInt(sessionID, 10)
}

// Approve applies the counted quantities of a pending session to stock
func (s *InventoryService) Approve(ctx context.Context, actor string, sessionID int64) ([]models.StockAdjustment, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Approve",
		attribute.Int64("inventario_id", sessionID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryApprovalLatency.Observe(time.Since(start).Seconds())
	}()

	if s.locker != nil {
		key := approvalLockKey(sessionID)
		token, err := s.locker.AcquireLock(ctx, key, s.opts.LockTTL)
		if err != nil {
			return nil, util.SpanError(span, err)
		}
		if token == "" {
			return nil, ErrLocked
		}
		defer func() {
			if _, err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
				s.logger.Warn("Failed to release approval lock", zap.Int64("inventario_id", sessionID), zap.Error(err))
			}
		}()
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	if !models.CanTransition(session.Status, models.SessionStatusApproved) {
		return nil, fmt.Errorf("%w: session %d is %s", models.ErrInvalidTransition, sessionID, session.Status)
	}

	items, err := s.store.GetCountItems(ctx, sessionID)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to load count items: %w", err))
	}
	adjustments := PlanApproval(items)

	if err := s.store.ApplyApproval(ctx, sessionID, actor, adjustments); err != nil {
		return nil, util.SpanError(span, err)
	}

	util.StockAdjustmentsTotal.Add(float64(len(adjustments)))
	util.InventorySessionsTransitionsTotal.WithLabelValues(models.SessionStatusApproved).Inc()

	event := &models.InventoryApprovedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeInventoryApproved),
		SessionID:   sessionID,
		ApprovedBy:  actor,
		Adjustments: adjustments,
	}
	if err := s.events.PublishInventoryApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventoryApproved event", zap.Int64("inventario_id", sessionID), zap.Error(err))
	}

	util.FromContext(ctx).Info("Inventory session approved",
		zap.Int64("inventario_id", sessionID),
		zap.Int("items", len(items)),
		zap.Int("adjustments", len(adjustments)))
	return adjustments, nil
}

// Reject closes a pending session without touching stock
func (s *InventoryService) Reject(ctx context.Context, actor string, sessionID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reject",
		attribute.Int64("inventario_id", sessionID))
	defer span.End()

	if err := s.store.RejectSession(ctx, sessionID, actor, reason); err != nil {
		return util.SpanError(span, err)
	}
	util.InventorySessionsTransitionsTotal.WithLabelValues(models.SessionStatusRejected).Inc()

	event := &models.InventoryRejectedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeInventoryRejected),
		SessionID:  sessionID,
		RejectedBy: actor,
		Reason:     reason,
	}
	if err := s.events.PublishInventoryRejected(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventoryRejected event", zap.Int64("inventario_id", sessionID), zap.Error(err))
	}

	util.FromContext(ctx).Info("Inventory session rejected",
		zap.Int64("inventario_id", sessionID),
		zap.String("reason", reason))
	return nil
}
