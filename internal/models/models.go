package models

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Product represents a row of the produtos table
type Product struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"nome" json:"nome"`
	Code      int64  `db:"codigo" json:"codigo"`
	Reference string `db:"referencia" json:"referencia"`
	Barcode   string `db:"codigo_barras" json:"codigo_barras"`
	Quantity  int    `db:"quantidade" json:"quantidade"`
	Group     string `db:"grupo" json:"grupo"`
	Location  string `db:"localizacao" json:"localizacao"`
}

// ProductFilter selects the products of an inventory count
type ProductFilter struct {
	Search   string `json:"search,omitempty"`
	Group    string `json:"grupo,omitempty"`
	Location string `json:"localizacao,omitempty"`
}

// Inventory session statuses
const (
	SessionStatusDraft    = "draft"
	SessionStatusPending  = "pending"
	SessionStatusApproved = "approved"
	SessionStatusRejected = "rejected"
)

var sessionTransitions = map[string][]string{
	SessionStatusDraft:   {SessionStatusPending},
	SessionStatusPending: {SessionStatusApproved, SessionStatusRejected},
}

// CanTransition reports whether a session may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InventorySession is one counting pass (inventarios)
type InventorySession struct {
	ID         int64                             `db:"id" json:"id"`
	Status     string                            `db:"status" json:"status"`
	TotalItems int                               `db:"total_itens" json:"total_itens"`
	Filters    datatypes.JSONType[ProductFilter] `db:"filtros" json:"filtros"`
	CreatedBy  string                            `db:"created_by" json:"created_by"`
	CreatedAt  time.Time                         `db:"created_at" json:"created_at"`
	ApprovedBy *string                           `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time                        `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy *string                           `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt *time.Time                        `db:"rejected_at" json:"rejected_at,omitempty"`
	Reason     *string                           `db:"reason" json:"reason,omitempty"`
	UpdatedAt  time.Time                         `db:"updated_at" json:"updated_at"`
}

// CountItem is one product's system vs counted pair within a session (inventario_itens)
type CountItem struct {
	ID          int64  `db:"id" json:"id"`
	SessionID   int64  `db:"inventario_id" json:"inventario_id"`
	ProductID   int64  `db:"produto_id" json:"produto_id"`
	ProductName string `db:"produto_nome" json:"produto_nome"`
	SystemQty   int    `db:"qtd_sistema" json:"qtd_sistema"`
	CountedQty  int    `db:"qtd_contada" json:"qtd_contada"`
}

// Delta is counted minus system
func (i CountItem) Delta() int {
	return i.CountedQty - i.SystemQty
}

// ReviewItem is a count item enriched with product identity for reviewers
type ReviewItem struct {
	CountItem
	Code      int64  `json:"codigo"`
	Reference string `json:"referencia"`
	Barcode   string `json:"codigo_barras"`
	Delta     int    `json:"delta"`
}

// StockAdjustment is a stock write derived from an approved count item
type StockAdjustment struct {
	ProductID int64 `json:"produto_id"`
	Before    int   `json:"qtd_anterior"`
	After     int   `json:"qtd_nova"`
	Delta     int   `json:"delta"`
}

// Stock movement types
const (
	MovementTypeInventory = "inventario"
)

// StockMovement is an append-only audit row (produto_movimentacoes)
type StockMovement struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"produto_id" json:"produto_id"`
	SessionID int64     `db:"inventario_id" json:"inventario_id"`
	Type      string    `db:"tipo" json:"tipo"`
	QtyBefore int       `db:"qtd_anterior" json:"qtd_anterior"`
	QtyAfter  int       `db:"qtd_nova" json:"qtd_nova"`
	Delta     int       `db:"delta" json:"delta"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Client is a customer (clientes)
type Client struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"nome" json:"nome"`
	TaxID        string `db:"cpf_cnpj" json:"cpf_cnpj"`
	Phone        string `db:"telefone" json:"telefone"`
	AltPhone     string `db:"telefone2" json:"telefone2"`
	Street       string `db:"endereco" json:"endereco"`
	Number       string `db:"numero" json:"numero"`
	Complement   string `db:"complemento" json:"complemento"`
	Neighborhood string `db:"bairro" json:"bairro"`
	City         string `db:"cidade" json:"cidade"`
	State        string `db:"estado" json:"estado"`
	PostalCode   string `db:"cep" json:"cep"`
}

// Brand is a device brand (marcas)
type Brand struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"nome" json:"nome"`
}

// DeviceModel is a device model of a brand (modelos)
type DeviceModel struct {
	ID      int64  `db:"id" json:"id"`
	BrandID int64  `db:"marca_id" json:"marca_id"`
	Name    string `db:"nome" json:"nome"`
}

// ServiceOrder is a persisted repair order (ordens_servico)
type ServiceOrder struct {
	ID               int64        `db:"id" json:"id"`
	Number           string       `db:"numero" json:"numero"`
	ClientID         int64        `db:"cliente_id" json:"cliente_id"`
	BrandID          int64        `db:"marca_id" json:"marca_id"`
	ModelID          int64        `db:"modelo_id" json:"modelo_id"`
	Status           string       `db:"status" json:"status"`
	DeviceType       string       `db:"tipo_aparelho" json:"tipo_aparelho"`
	IMEI             string       `db:"imei" json:"imei"`
	Serial           string       `db:"serie" json:"serie"`
	Problem          string       `db:"problema" json:"problema"`
	Condition        string       `db:"condicoes" json:"condicoes"`
	HasPassword      string       `db:"possui_senha" json:"possui_senha"`
	Password         string       `db:"senha" json:"senha"`
	Seller           string       `db:"vendedor" json:"vendedor"`
	AccessCode       string       `db:"codigo_acesso" json:"codigo_acesso"`
	EntryDate        time.Time    `db:"data_entrada" json:"data_entrada"`
	DeliveryForecast sql.NullTime `db:"previsao_entrega" json:"-"`
	CreatedBy        string       `db:"created_by" json:"created_by"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// Service order statuses
const (
	ServiceOrderStatusOpen = "aberta"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
