package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
)

var ErrServiceOrderNotFound = errors.New("service order not found")

// CreateServiceOrder finds or creates the client, brand and model of an
// order and inserts it, in one transaction. IDs are written back into the
// arguments.
func (s *Store) CreateServiceOrder(ctx context.Context, client *models.Client, brand *models.Brand, model *models.DeviceModel, order *models.ServiceOrder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := findOrCreateClient(ctx, tx, client); err != nil {
		return err
	}
	if err := findOrCreateBrand(ctx, tx, brand); err != nil {
		return err
	}
	model.BrandID = brand.ID
	if err := findOrCreateModel(ctx, tx, model); err != nil {
		return err
	}

	order.ClientID = client.ID
	order.BrandID = brand.ID
	order.ModelID = model.ID

	query := `
		INSERT INTO ordens_servico (numero, cliente_id, marca_id, modelo_id, status, tipo_aparelho, imei, serie,
			problema, condicoes, possui_senha, senha, vendedor, codigo_acesso, data_entrada, previsao_entrega, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	err = tx.GetContext(ctx, order, query,
		order.Number, order.ClientID, order.BrandID, order.ModelID, order.Status, order.DeviceType,
		order.IMEI, order.Serial, order.Problem, order.Condition, order.HasPassword, order.Password,
		order.Seller, order.AccessCode, order.EntryDate, order.DeliveryForecast, order.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert service order: %w", err)
	}

	return tx.Commit()
}

// findOrCreateClient matches by CPF/CNPJ when present, else by name
func findOrCreateClient(ctx context.Context, tx *sqlx.Tx, c *models.Client) error {
	var err error
	if strings.TrimSpace(c.TaxID) != "" {
		err = tx.GetContext(ctx, &c.ID, "SELECT id FROM clientes WHERE cpf_cnpj = $1 ORDER BY id LIMIT 1", c.TaxID)
	} else {
		err = tx.GetContext(ctx, &c.ID, "SELECT id FROM clientes WHERE LOWER(nome) = LOWER($1) ORDER BY id LIMIT 1", c.Name)
	}
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up client: %w", err)
	}

	query := `
		INSERT INTO clientes (nome, cpf_cnpj, telefone, telefone2, endereco, numero, complemento, bairro, cidade, estado, cep)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := tx.GetContext(ctx, &c.ID, query,
		c.Name, c.TaxID, c.Phone, c.AltPhone, c.Street, c.Number, c.Complement,
		c.Neighborhood, c.City, c.State, c.PostalCode); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func findOrCreateBrand(ctx context.Context, tx *sqlx.Tx, b *models.Brand) error {
	err := tx.GetContext(ctx, &b.ID, "SELECT id FROM marcas WHERE LOWER(nome) = LOWER($1) ORDER BY id LIMIT 1", b.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up brand: %w", err)
	}
	if err := tx.GetContext(ctx, &b.ID, "INSERT INTO marcas (nome) VALUES ($1) RETURNING id", b.Name); err != nil {
		return fmt.Errorf("failed to create brand: %w", err)
	}
	return nil
}

func findOrCreateModel(ctx context.Context, tx *sqlx.Tx, m *models.DeviceModel) error {
	err := tx.GetContext(ctx, &m.ID,
		"SELECT id FROM modelos WHERE marca_id = $1 AND LOWER(nome) = LOWER($2) ORDER BY id LIMIT 1", m.BrandID, m.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up model: %w", err)
	}
	if err := tx.GetContext(ctx, &m.ID,
		"INSERT INTO modelos (marca_id, nome) VALUES ($1, $2) RETURNING id", m.BrandID, m.Name); err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	return nil
}

// GetServiceOrderByID retrieves a service order by ID
func (s *Store) GetServiceOrderByID(ctx context.Context, id int64) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	err := s.db.GetContext(ctx, &order, `
		SELECT id, numero, cliente_id, marca_id, modelo_id, status, tipo_aparelho, imei, serie, problema,
			condicoes, possui_senha, senha, vendedor, codigo_acesso, data_entrada, previsao_entrega, created_by, created_at
		FROM ordens_servico WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrServiceOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
