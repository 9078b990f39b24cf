package store

import (
	"context"
	"testing"
	"time"

	"backoffice-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestProductWhere(t *testing.T) {
	where, args := productWhere(models.ProductFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = productWhere(models.ProductFilter{Search: "tela"})
	assert.Contains(t, where, "nome ILIKE $1")
	assert.NotContains(t, where, "codigo = ")
	assert.Equal(t, []interface{}{"%tela%"}, args)

	where, args = productWhere(models.ProductFilter{Search: "1042", Group: "Peças", Location: "A1"})
	assert.Contains(t, where, "OR codigo = $2")
	assert.Contains(t, where, "grupo = $3")
	assert.Contains(t, where, "localizacao = $4")
	assert.Equal(t, []interface{}{"%1042%", int64(1042), "Peças", "A1"}, args)
}

func TestListProducts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM produtos WHERE`).
		WithArgs("%42%", 42).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT id, nome, codigo, referencia, codigo_barras, quantidade, grupo, localizacao FROM produtos WHERE .* LIMIT \$3 OFFSET \$4`).
		WithArgs("%42%", 42, 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nome", "codigo", "referencia", "codigo_barras", "quantidade", "grupo", "localizacao"}).
			AddRow(9, "Tela A10", 42, "REF-9", "789", 5, "Telas", "A1"))

	products, total, err := s.ListProducts(context.Background(), models.ProductFilter{Search: "42"}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, products, 1)
	assert.Equal(t, int64(42), products[0].Code)
	assert.Equal(t, 5, products[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCountItemsSkipsExisting(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM inventarios WHERE id = \$1 FOR SHARE`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectExec("INSERT INTO inventario_itens").
		WithArgs(1, 10, "Bateria", 4).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO inventario_itens").
		WithArgs(1, 11, "Cabo", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	created, err := s.EnsureCountItems(context.Background(), 1, []models.Product{
		{ID: 10, Name: "Bateria", Quantity: 4},
		{ID: 11, Name: "Cabo", Quantity: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCountItemsRefusesSubmittedSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM inventarios WHERE id = \$1 FOR SHARE`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectRollback()

	created, err := s.EnsureCountItems(context.Background(), 1, []models.Product{
		{ID: 10, Name: "Bateria", Quantity: 4},
	})
	assert.ErrorIs(t, err, models.ErrNotDraft)
	assert.Zero(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCountItemOnlyInDraft(t *testing.T) {
	s, mock := newMockStore(t)
	item := models.CountItem{SessionID: 3, ProductID: 10, ProductName: "Bateria", SystemQty: 4, CountedQty: 6}

	mock.ExpectExec("INSERT INTO inventario_itens").
		WithArgs(3, 10, "Bateria", 4, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventario_itens").
		WithArgs(3, 10, "Bateria", 4, 6).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.UpsertCountItem(context.Background(), item))
	assert.ErrorIs(t, s.UpsertCountItem(context.Background(), item), models.ErrNotDraft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSessionRequiresItems(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM inventarios").WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM inventario_itens`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := s.SubmitSession(context.Background(), 5)
	assert.ErrorIs(t, err, models.ErrEmptySession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM inventarios").WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM inventario_itens`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("UPDATE inventarios SET status").
		WithArgs(models.SessionStatusPending, 12, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := s.SubmitSession(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyApproval(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM inventarios").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(`SELECT 1 FROM produtos WHERE id = \$1 FOR UPDATE`).WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("UPDATE produtos SET quantidade").WithArgs(6, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO produto_movimentacoes").
		WithArgs(10, 7, models.MovementTypeInventory, 4, 6, 2, "gerente").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventarios SET status").
		WithArgs(models.SessionStatusApproved, "gerente", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ApplyApproval(context.Background(), 7, "gerente", []models.StockAdjustment{
		{ProductID: 10, Before: 4, After: 6, Delta: 2},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyApprovalRollsBackOnMissingProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM inventarios").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(`SELECT 1 FROM produtos WHERE id = \$1 FOR UPDATE`).WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("UPDATE produtos SET quantidade").WithArgs(6, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO produto_movimentacoes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT 1 FROM produtos WHERE id = \$1 FOR UPDATE`).WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := s.ApplyApproval(context.Background(), 7, "gerente", []models.StockAdjustment{
		{ProductID: 10, Before: 4, After: 6, Delta: 2},
		{ProductID: 99, Before: 1, After: 0, Delta: -1},
	})
	assert.ErrorIs(t, err, models.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectSessionRequiresPending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM inventarios").WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectRollback()

	err := s.RejectSession(context.Background(), 8, "gerente", "contagem incompleta")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM inventarios WHERE id").WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSession(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestGetSessionScansReviewOutcome(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM inventarios WHERE id").WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total_itens", "filtros", "created_by", "created_at",
			"approved_by", "approved_at", "rejected_by", "rejected_at", "reason", "updated_at"}).
			AddRow(9, "rejected", 3, []byte(`{}`), "maria", now, nil, nil, "gerente", now, "recontar", now))

	session, err := s.GetSession(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, session.ApprovedBy)
	require.NotNil(t, session.RejectedBy)
	assert.Equal(t, "gerente", *session.RejectedBy)
	require.NotNil(t, session.Reason)
	assert.Equal(t, "recontar", *session.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMovementsBySession(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM produto_movimentacoes WHERE inventario_id").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "produto_id", "inventario_id", "tipo",
			"qtd_anterior", "qtd_nova", "delta", "created_by", "created_at"}).
			AddRow(1, 10, 7, "inventario", 4, 6, 2, "gerente", now))

	movements, err := s.GetMovementsBySession(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(10), movements[0].ProductID)
	assert.Equal(t, 2, movements[0].Delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateServiceOrderFindsOrCreates(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM clientes WHERE cpf_cnpj").WithArgs("123.456.789-00").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery("SELECT id FROM marcas").WithArgs("Samsung").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO marcas").WithArgs("Samsung").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT id FROM modelos").WithArgs(3, "Galaxy A10").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO modelos").WithArgs(3, "Galaxy A10").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery("INSERT INTO ordens_servico").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(77, now))
	mock.ExpectCommit()

	client := &models.Client{Name: "João da Silva", TaxID: "123.456.789-00"}
	brand := &models.Brand{Name: "Samsung"}
	model := &models.DeviceModel{Name: "Galaxy A10"}
	order := &models.ServiceOrder{Number: "10452", Status: models.ServiceOrderStatusOpen, EntryDate: now}

	require.NoError(t, s.CreateServiceOrder(context.Background(), client, brand, model, order))
	assert.Equal(t, int64(5), order.ClientID)
	assert.Equal(t, int64(3), order.BrandID)
	assert.Equal(t, int64(4), order.ModelID)
	assert.Equal(t, int64(3), model.BrandID)
	assert.Equal(t, int64(77), order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventIdempotency(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO processed_events").WithArgs("evt-1", models.EventTypeInventoryApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := s.IsEventProcessed(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, s.MarkEventProcessed(context.Background(), "evt-1", models.EventTypeInventoryApproved))
	assert.NoError(t, mock.ExpectationsWereMet())
}
