package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Store struct {
	ID        uuid.UUID
	Name      string
	Address   pgtype.Text
	Phone     pgtype.Text
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Customer struct {
	ID        uuid.UUID
	Name      string
	Phone     pgtype.Text
	Email     pgtype.Text
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	ImageUrl    pgtype.Text
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RawMaterial struct {
	ID        uuid.UUID
	Name      string
	Unit      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductBom is one component line of a product's bill of materials.
type ProductBom struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	MaterialID  uuid.UUID
	Quantity    pgtype.Numeric
	Unit        string
	IsMain      bool
	Description pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Inventory is finished-goods stock, one row per product.
type Inventory struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	Quantity          pgtype.Numeric
	Unit              string
	WarningThreshold  pgtype.Numeric
	LastPurchaseAt    pgtype.Timestamptz
	LastStocktakingAt pgtype.Timestamptz
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MaterialInventory is raw-material stock, one row per (store, material).
type MaterialInventory struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	MaterialID        uuid.UUID
	Quantity          pgtype.Numeric
	WarningThreshold  pgtype.Numeric
	LastPurchaseAt    pgtype.Timestamptz
	LastStocktakingAt pgtype.Timestamptz
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Order struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	OrderNo       string
	OrderSeq      int32
	CustomerID    pgtype.UUID
	PaymentMethod pgtype.Text
	Status        string
	TotalAmount   pgtype.Numeric
	ActualAmount  pgtype.Numeric
	Remarks       pgtype.Text
	TransactionID pgtype.Text
	RefundReason  pgtype.Text
	// InventoryDeducted records that completing the order consumed stock, so
	// a later refund knows whether to restore it.
	InventoryDeducted bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem snapshots product name and price at order creation so later
// catalog edits never rewrite order history.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	Price       pgtype.Numeric
	Subtotal    pgtype.Numeric
}
