package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = "id, nome, codigo, referencia, codigo_barras, quantidade, grupo, localizacao"

// productWhere builds the filter clause. A search term that parses as an
// integer also matches codigo exactly.
func productWhere(f models.ProductFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		cond := fmt.Sprintf("nome ILIKE $%d OR referencia ILIKE $%d OR codigo_barras ILIKE $%d OR CAST(codigo AS TEXT) ILIKE $%d", n, n, n, n)
		if code, err := strconv.ParseInt(search, 10, 64); err == nil {
			args = append(args, code)
			cond += fmt.Sprintf(" OR codigo = $%d", len(args))
		}
		conds = append(conds, "("+cond+")")
	}
	if g := strings.TrimSpace(f.Group); g != "" {
		args = append(args, g)
		conds = append(conds, fmt.Sprintf("grupo = $%d", len(args)))
	}
	if l := strings.TrimSpace(f.Location); l != "" {
		args = append(args, l)
		conds = append(conds, fmt.Sprintf("localizacao = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListProducts returns one page of products matching the filter and the total match count
func (s *Store) ListProducts(ctx context.Context, f models.ProductFilter, offset, limit int) ([]models.Product, int, error) {
	where, args := productWhere(f)

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM produtos"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM produtos%s ORDER BY nome, id LIMIT $%d OFFSET $%d",
		productColumns, where, len(args)-1, len(args))

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM produtos WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM produtos WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ProductStock is the current quantity of a product
type ProductStock struct {
	ProductID int64 `db:"id"`
	Quantity  int   `db:"quantidade"`
}

// GetProductStocks returns the quantity of every product
func (s *Store) GetProductStocks(ctx context.Context) ([]ProductStock, error) {
	var stocks []ProductStock
	err := s.db.SelectContext(ctx, &stocks, "SELECT id, quantidade FROM produtos ORDER BY id")
	return stocks, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
