package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const sessionColumns = `id, status, total_itens, filtros, created_by, created_at,
	approved_by, approved_at, rejected_by, rejected_at, reason, updated_at`

const itemColumns = "id, inventario_id, produto_id, produto_nome, qtd_sistema, qtd_contada"

// CreateSession inserts a new draft session
func (s *Store) CreateSession(ctx context.Context, session *models.InventorySession) error {
	query := `
		INSERT INTO inventarios (status, total_itens, filtros, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, session, query,
		session.Status, session.TotalItems, session.Filters, session.CreatedBy)
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, id int64) (*models.InventorySession, error) {
	var session models.InventorySession
	err := s.db.GetContext(ctx, &session, "SELECT "+sessionColumns+" FROM inventarios WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindDraftSession returns the actor's most recent draft, or nil when there is none
func (s *Store) FindDraftSession(ctx context.Context, actor string) (*models.InventorySession, error) {
	var session models.InventorySession
	err := s.db.GetContext(ctx, &session,
		"SELECT "+sessionColumns+" FROM inventarios WHERE status = $1 AND created_by = $2 ORDER BY created_at DESC, id DESC LIMIT 1",
		models.SessionStatusDraft, actor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessionsByStatus returns sessions in a status, newest first
func (s *Store) ListSessionsByStatus(ctx context.Context, status string) ([]models.InventorySession, error) {
	sessions := []models.InventorySession{}
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT "+sessionColumns+" FROM inventarios WHERE status = $1 ORDER BY created_at DESC, id DESC", status)
	return sessions, err
}

// EnsureCountItems seeds one item per product with counted = system.
// Existing items are left untouched. Returns the number of rows created.
// The session row is share-locked so seeding cannot interleave with a submit.
func (s *Store) EnsureCountItems(ctx context.Context, sessionID int64, products []models.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var status string
	err = tx.GetContext(ctx, &status, "SELECT status FROM inventarios WHERE id = $1 FOR SHARE", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", models.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock session: %w", err)
	}
	if status != models.SessionStatusDraft {
		return 0, fmt.Errorf("%w: session %d is %s", models.ErrNotDraft, sessionID, status)
	}

	var created int64
	for _, p := range products {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO inventario_itens (inventario_id, produto_id, produto_nome, qtd_sistema, qtd_contada)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (inventario_id, produto_id) DO NOTHING`,
			sessionID, p.ID, p.Name, p.Quantity)
		if err != nil {
			return 0, fmt.Errorf("failed to seed count item for product %d: %w", p.ID, err)
		}
		n, _ := res.RowsAffected()
		created += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// UpsertCountItem persists a counted quantity. Only draft sessions accept
// writes; otherwise ErrNotDraft is returned and nothing changes.
func (s *Store) UpsertCountItem(ctx context.Context, item models.CountItem) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inventario_itens (inventario_id, produto_id, produto_nome, qtd_sistema, qtd_contada)
		SELECT $1::bigint, $2::bigint, $3::text, $4::integer, $5::integer
		WHERE EXISTS (SELECT 1 FROM inventarios WHERE id = $1 AND status = 'draft')
		ON CONFLICT (inventario_id, produto_id)
		DO UPDATE SET qtd_contada = EXCLUDED.qtd_contada, updated_at = NOW()`,
		item.SessionID, item.ProductID, item.ProductName, item.SystemQty, item.CountedQty)
	if err != nil {
		return fmt.Errorf("failed to upsert count item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrNotDraft, item.SessionID)
	}
	return nil
}

// GetCountItems returns every item of a session
func (s *Store) GetCountItems(ctx context.Context, sessionID int64) ([]models.CountItem, error) {
	items := []models.CountItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+itemColumns+" FROM inventario_itens WHERE inventario_id = $1 ORDER BY produto_nome, id", sessionID)
	return items, err
}

// GetCountItemsByProducts returns the session's items for the given products
func (s *Store) GetCountItemsByProducts(ctx context.Context, sessionID int64, productIDs []int64) ([]models.CountItem, error) {
	if len(productIDs) == 0 {
		return []models.CountItem{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+itemColumns+" FROM inventario_itens WHERE inventario_id = ? AND produto_id IN (?)",
		sessionID, productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	items := []models.CountItem{}
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// lockSession reads the session status under a row lock and checks it
func lockSession(ctx context.Context, tx *sqlx.Tx, id int64, want string) error {
	var status string
	err := tx.GetContext(ctx, &status, "SELECT status FROM inventarios WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if status != want {
		return fmt.Errorf("%w: session %d is %s", models.ErrInvalidTransition, id, status)
	}
	return nil
}

// SubmitSession moves a draft to pending and recomputes its item total
func (s *Store) SubmitSession(ctx context.Context, id int64) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := lockSession(ctx, tx, id, models.SessionStatusDraft); err != nil {
		return 0, err
	}

	var total int
	if err := tx.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM inventario_itens WHERE inventario_id = $1", id); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	if total == 0 {
		return 0, models.ErrEmptySession
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE inventarios SET status = $1, total_itens = $2, updated_at = NOW() WHERE id = $3",
		models.SessionStatusPending, total, id)
	if err != nil {
		return 0, fmt.Errorf("failed to submit session: %w", err)
	}

	return total, tx.Commit()
}

// ApplyApproval writes the counted quantities to stock, appends one audit
// movement per adjustment and marks the session approved, all or nothing.
func (s *Store) ApplyApproval(ctx context.Context, sessionID int64, actor string, adjustments []models.StockAdjustment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockSession(ctx, tx, sessionID, models.SessionStatusPending); err != nil {
		return err
	}

	for _, adj := range adjustments {
		// row lock only; the audit row keeps the counted snapshot as qtd_anterior
		var locked int
		err := tx.GetContext(ctx, &locked,
			"SELECT 1 FROM produtos WHERE id = $1 FOR UPDATE", adj.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", models.ErrProductNotFound, adj.ProductID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock product %d: %w", adj.ProductID, err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE produtos SET quantidade = $1 WHERE id = $2", adj.After, adj.ProductID); err != nil {
			return fmt.Errorf("failed to update stock of product %d: %w", adj.ProductID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO produto_movimentacoes (produto_id, inventario_id, tipo, qtd_anterior, qtd_nova, delta, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			adj.ProductID, sessionID, models.MovementTypeInventory, adj.Before, adj.After, adj.Delta, actor); err != nil {
			return fmt.Errorf("failed to record movement for product %d: %w", adj.ProductID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE inventarios SET status = $1, approved_by = $2, approved_at = NOW(), updated_at = NOW() WHERE id = $3",
		models.SessionStatusApproved, actor, sessionID)
	if err != nil {
		return fmt.Errorf("failed to approve session: %w", err)
	}

	return tx.Commit()
}

// RejectSession marks a pending session rejected. Stock is not touched.
func (s *Store) RejectSession(ctx context.Context, sessionID int64, actor, reason string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockSession(ctx, tx, sessionID, models.SessionStatusPending); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE inventarios SET status = $1, rejected_by = $2, rejected_at = NOW(), reason = $3, updated_at = NOW() WHERE id = $4",
		models.SessionStatusRejected, actor, reason, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reject session: %w", err)
	}

	return tx.Commit()
}

// GetMovementsBySession returns the audit rows written by a session's approval
func (s *Store) GetMovementsBySession(ctx context.Context, sessionID int64) ([]models.StockMovement, error) {
	movements := []models.StockMovement{}
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, produto_id, inventario_id, tipo, qtd_anterior, qtd_nova, delta, created_by, created_at
		FROM produto_movimentacoes WHERE inventario_id = $1 ORDER BY id`, sessionID)
	return movements, err
}
