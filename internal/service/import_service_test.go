package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice-service/internal/osimport"
	"backoffice-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pastedOS = `OS Nº 555 Data: 10/04/2024 09:15
Cliente: Maria Souza Contato: (11)98765-4321
Modelo: iPhone 11
Problema Informado: Bateria estufada
Previsão de Entrega: 12/04/2024`

func newTestImport(t *testing.T) (*ImportService, *memStore, *memEvents, *memKeys, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.UTC
	}
	st := newMemStore()
	ev := &memEvents{}
	keys := newMemKeys()
	svc := NewImportService(st, ev, keys, loc, time.Hour)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, loc)
	svc.now = func() time.Time { return fixed }
	return svc, st, ev, keys, fixed
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, st, _, _, _ := newTestImport(t)

	preview, err := svc.Preview(context.Background(), pastedOS)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", preview.Record.CustomerName)
	assert.True(t, preview.Validation.OK())
	require.Len(t, preview.Validation.Warnings, 1)
	assert.Equal(t, "marca", preview.Validation.Warnings[0].Field)
	assert.Empty(t, st.orders)

	_, err = svc.Preview(context.Background(), "  \n ")
	assert.ErrorIs(t, err, osimport.ErrEmptyInput)
}

func TestImportAppliesPlaceholdersAndNormalizes(t *testing.T) {
	svc, st, ev, _, _ := newTestImport(t)

	res, err := svc.Import(context.Background(), "atendente", pastedOS, "")
	require.NoError(t, err)
	assert.NotZero(t, res.ServiceOrderID)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "555", res.Number)

	require.Len(t, st.orders, 1)
	order := st.orders[0]
	assert.Equal(t, "aberta", order.Status)
	assert.Equal(t, "Bateria estufada", order.Problem)
	assert.Equal(t, "atendente", order.CreatedBy)
	assert.Equal(t, 2024, order.EntryDate.Year())
	assert.Equal(t, time.April, order.EntryDate.Month())
	assert.Equal(t, 9, order.EntryDate.Hour())
	assert.True(t, order.DeliveryForecast.Valid)
	assert.Equal(t, 12, order.DeliveryForecast.Time.Day())

	assert.Equal(t, PlaceholderBrand, st.brands[0].Name)
	assert.Equal(t, "iPhone 11", st.dmodels[0].Name)
	assert.Equal(t, st.brands[0].ID, st.dmodels[0].BrandID)
	assert.Equal(t, "+5511987654321", st.clients[0].Phone)

	require.Len(t, ev.imported, 1)
	assert.Equal(t, res.ServiceOrderID, ev.imported[0].ServiceOrderID)

	got, err := svc.Get(context.Background(), res.ServiceOrderID)
	require.NoError(t, err)
	assert.Equal(t, "555", got.Number)

	_, err = svc.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrServiceOrderNotFound)
}

func TestImportDefaultsEntryDateToToday(t *testing.T) {
	svc, st, _, _, fixed := newTestImport(t)

	_, err := svc.Import(context.Background(), "atendente",
		"Cliente: Ana Lima Telefone: (11)4002-8922\nMarca: Xiaomi\nProblema Informado: Sem áudio", "")
	require.NoError(t, err)

	require.Len(t, st.orders, 1)
	assert.True(t, fixed.Equal(st.orders[0].EntryDate))
	assert.Equal(t, PlaceholderModel, st.dmodels[0].Name)
	assert.False(t, st.orders[0].DeliveryForecast.Valid)
}

func TestImportBlockedByValidation(t *testing.T) {
	svc, st, _, _, _ := newTestImport(t)

	_, err := svc.Import(context.Background(), "atendente", "Cliente: Maria Souza\nMarca: Apple", "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Validation.Errors, 2)
	assert.Empty(t, st.orders)
}

func TestImportIsIdempotentByKey(t *testing.T) {
	svc, st, ev, _, _ := newTestImport(t)
	ctx := context.Background()

	first, err := svc.Import(ctx, "atendente", pastedOS, "req-1")
	require.NoError(t, err)

	second, err := svc.Import(ctx, "atendente", pastedOS, "req-1")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ServiceOrderID, second.ServiceOrderID)

	assert.Len(t, st.orders, 1)
	assert.Len(t, ev.imported, 1)
}

func TestImportInProgress(t *testing.T) {
	svc, st, _, keys, _ := newTestImport(t)
	ctx := context.Background()

	claimed, err := keys.ClaimIdempotencyKey(ctx, "req-2", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = svc.Import(ctx, "atendente", pastedOS, "req-2")
	assert.ErrorIs(t, err, ErrImportInProgress)
	assert.Empty(t, st.orders)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+5511987654321", NormalizePhone("(11)98765-4321"))
	assert.Equal(t, "12", NormalizePhone("abc 12"))
	assert.Empty(t, NormalizePhone("  "))
}
