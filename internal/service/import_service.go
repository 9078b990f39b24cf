package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"backoffice-service/internal/models"
	"backoffice-service/internal/osimport"
	"backoffice-service/internal/util"

	"github.com/ttacon/libphonenumber"
	"go.uber.org/zap"
)

const (
	PlaceholderBrand = "NÃO INFORMADA"
	PlaceholderModel = "NÃO INFORMADO"

	phoneRegion = "BR"
)

var ErrImportInProgress = errors.New("an import with this idempotency key is in progress")

// ServiceOrderStore persists imported service orders
type ServiceOrderStore interface {
	CreateServiceOrder(ctx context.Context, client *models.Client, brand *models.Brand, model *models.DeviceModel, order *models.ServiceOrder) error
	GetServiceOrderByID(ctx context.Context, id int64) (*models.ServiceOrder, error)
}

// ServiceOrderEvents publishes import notifications
type ServiceOrderEvents interface {
	PublishServiceOrderImported(ctx context.Context, event *models.ServiceOrderImportedEvent) error
}

// IdempotencyStore remembers the outcome of keyed requests
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, key, result string, ttl time.Duration) error
	GetIdempotencyResult(ctx context.Context, key string) (string, bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// ImportService turns pasted service-order text into persisted orders
type ImportService struct {
	store  ServiceOrderStore
	events ServiceOrderEvents
	keys   IdempotencyStore
	loc    *time.Location
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewImportService creates a new import service
func NewImportService(store ServiceOrderStore, events ServiceOrderEvents, keys IdempotencyStore, loc *time.Location, ttl time.Duration) *ImportService {
	if loc == nil {
		loc = time.Local
	}
	return &ImportService{
		store:  store,
		events: events,
		keys:   keys,
		loc:    loc,
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Preview is the outcome of parsing without persisting
type Preview struct {
	Record     *osimport.ExtractedOrder `json:"registro"`
	Validation osimport.Validation      `json:"validacao"`
}

// Preview parses and validates text. Nothing is written.
func (s *ImportService) Preview(ctx context.Context, text string) (*Preview, error) {
	_, span := util.StartSpan(ctx, "ImportService.Preview")
	defer span.End()

	rec, err := osimport.Parse(text)
	if err != nil {
		util.ServiceOrderParsesTotal.WithLabelValues("empty").Inc()
		return nil, err
	}

	v := osimport.Validate(rec)
	verdict := "ok"
	if !v.OK() {
		verdict = "blocked"
	}
	util.ServiceOrderParsesTotal.WithLabelValues(verdict).Inc()
	for _, i := range v.Errors {
		util.ServiceOrderIssuesTotal.WithLabelValues("error", i.Field).Inc()
	}
	for _, i := range v.Warnings {
		util.ServiceOrderIssuesTotal.WithLabelValues("warning", i.Field).Inc()
	}

	return &Preview{Record: rec, Validation: v}, nil
}

// ImportResult identifies the persisted order
type ImportResult struct {
	ServiceOrderID int64            `json:"ordem_servico_id"`
	Number         string           `json:"numero,omitempty"`
	Duplicate      bool             `json:"duplicado"`
	Warnings       []osimport.Issue `json:"warnings"`
}

// Import validates text and persists it as a service order. With a
// non-empty key a repeated request returns the order created first.
func (s *ImportService) Import(ctx context.Context, actor, text, key string) (*ImportResult, error) {
	ctx, span := util.StartSpan(ctx, "ImportService.Import")
	defer span.End()

	preview, err := s.Preview(ctx, text)
	if err != nil {
		return nil, err
	}
	if !preview.Validation.OK() {
		util.ServiceOrderImportsFailed.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Validation: preview.Validation}
	}

	if key != "" {
		claimed, err := s.keys.ClaimIdempotencyKey(ctx, key, s.ttl)
		if err != nil {
			return nil, util.SpanError(span, fmt.Errorf("failed to check idempotency: %w", err))
		}
		if !claimed {
			return s.previousResult(ctx, key)
		}
	}

	client, brand, model, order := s.build(preview.Record, actor)
	if err := s.store.CreateServiceOrder(ctx, client, brand, model, order); err != nil {
		util.ServiceOrderImportsFailed.WithLabelValues("db_error").Inc()
		if key != "" {
			if rerr := s.keys.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}
		return nil, util.SpanError(span, fmt.Errorf("failed to create service order: %w", err))
	}

	if key != "" {
		if err := s.keys.CompleteIdempotencyKey(ctx, key, strconv.FormatInt(order.ID, 10), s.ttl); err != nil {
			s.logger.Warn("Failed to store idempotency result", zap.String("key", key), zap.Error(err))
		}
	}

	util.ServiceOrdersImportedTotal.Inc()
	util.FromContext(ctx).Info("Service order imported",
		zap.Int64("ordem_servico_id", order.ID),
		zap.String("numero", order.Number),
		zap.Int64("cliente_id", client.ID))

	event := &models.ServiceOrderImportedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeServiceOrderImported),
		ServiceOrderID: order.ID,
		Number:         order.Number,
		ClientID:       client.ID,
		ImportedBy:     actor,
	}
	if err := s.events.PublishServiceOrderImported(ctx, event); err != nil {
		s.logger.Error("Failed to publish ServiceOrderImported event", zap.Int64("ordem_servico_id", order.ID), zap.Error(err))
	}

	return &ImportResult{
		ServiceOrderID: order.ID,
		Number:         order.Number,
		Warnings:       preview.Validation.Warnings,
	}, nil
}

// Get returns a persisted service order
func (s *ImportService) Get(ctx context.Context, id int64) (*models.ServiceOrder, error) {
	ctx, span := util.StartSpan(ctx, "ImportService.Get")
	defer span.End()

	order, err := s.store.GetServiceOrderByID(ctx, id)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	return order, nil
}

func (s *ImportService) previousResult(ctx context.Context, key string) (*ImportResult, error) {
	result, done, err := s.keys.GetIdempotencyResult(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency result: %w", err)
	}
	if !done {
		return nil, ErrImportInProgress
	}

	id, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid idempotency result %q: %w", result, err)
	}

	s.logger.Info("Duplicate import request detected", zap.String("key", key), zap.Int64("ordem_servico_id", id))
	return &ImportResult{ServiceOrderID: id, Duplicate: true, Warnings: []osimport.Issue{}}, nil
}

// build maps an extracted record to the rows it creates, applying placeholders
func (s *ImportService) build(rec *osimport.ExtractedOrder, actor string) (*models.Client, *models.Brand, *models.DeviceModel, *models.ServiceOrder) {
	client := &models.Client{
		Name:         strings.TrimSpace(rec.CustomerName),
		TaxID:        rec.TaxID,
		Phone:        NormalizePhone(rec.Phone),
		AltPhone:     NormalizePhone(rec.AltPhone),
		Street:       rec.Street,
		Number:       rec.StreetNumber,
		Complement:   rec.Complement,
		Neighborhood: rec.Neighborhood,
		City:         rec.City,
		State:        rec.State,
		PostalCode:   rec.PostalCode,
	}

	brand := &models.Brand{Name: orDefault(rec.Brand, PlaceholderBrand)}
	model := &models.DeviceModel{Name: orDefault(rec.Model, PlaceholderModel)}

	entry, ok := osimport.ParseDateTime(rec.EntryDate, rec.EntryTime, s.loc)
	if !ok {
		entry = s.now().In(s.loc)
	}
	var forecast sql.NullTime
	if t, ok := osimport.ParseDateTime(rec.ForecastDate, rec.ForecastTime, s.loc); ok {
		forecast = sql.NullTime{Time: t, Valid: true}
	}

	order := &models.ServiceOrder{
		Number:           rec.Number,
		Status:           models.ServiceOrderStatusOpen,
		DeviceType:       rec.DeviceType,
		IMEI:             rec.IMEI,
		Serial:           rec.Serial,
		Problem:          rec.Problem,
		Condition:        rec.Condition,
		HasPassword:      rec.HasPassword,
		Password:         rec.Password,
		Seller:           rec.Seller,
		AccessCode:       rec.AccessCode,
		EntryDate:        entry,
		DeliveryForecast: forecast,
		CreatedBy:        actor,
	}
	return client, brand, model, order
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// NormalizePhone formats a Brazilian phone as E.164, falling back to its digits
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if p, err := libphonenumber.Parse(raw, phoneRegion); err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164)
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
}
