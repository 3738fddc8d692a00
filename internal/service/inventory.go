package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/solocoffee/api/internal/apperr"
	"github.com/solocoffee/api/internal/database"
)

// Reorder rules: any ledger row at or below the threshold is topped up to
// the reorder quantity.
var (
	reorderThreshold = decimal.NewFromInt(5)
	reorderQuantity  = decimal.NewFromInt(50)
)

// InventoryStore defines the DB methods needed for inventory consumption.
// Satisfied by *database.Queries (and its WithTx variant).
type InventoryStore interface {
	ListBomByProduct(ctx context.Context, productID uuid.UUID) ([]database.ProductBom, error)
	GetInventoryByProduct(ctx context.Context, productID uuid.UUID) (database.Inventory, error)
	GetMaterialInventory(ctx context.Context, arg database.GetMaterialInventoryParams) (database.MaterialInventory, error)
	DeductInventory(ctx context.Context, arg database.DeductInventoryParams) (database.Inventory, error)
	RestoreInventory(ctx context.Context, arg database.RestoreInventoryParams) (database.Inventory, error)
	DeductMaterialInventory(ctx context.Context, arg database.DeductMaterialInventoryParams) (database.MaterialInventory, error)
	RestoreMaterialInventory(ctx context.Context, arg database.RestoreMaterialInventoryParams) (database.MaterialInventory, error)
	TopUpAllInventory(ctx context.Context, arg database.TopUpAllInventoryParams) ([]database.Inventory, error)
	TopUpAllMaterialInventory(ctx context.Context, arg database.TopUpAllMaterialInventoryParams) ([]database.MaterialInventory, error)
}

// NewInventoryStore creates an InventoryStore from a DBTX (pool or tx).
type NewInventoryStore func(db database.DBTX) InventoryStore

// checkLine verifies stock for one order line without reserving it. Products
// with a bill of materials are checked against each component's raw-material
// ledger; everything else against the finished-goods ledger.
func checkLine(ctx context.Context, store InventoryStore, storeID, productID uuid.UUID, quantity int32) error {
	bom, err := store.ListBomByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("list bom: %w", err)
	}
	need := decimal.NewFromInt32(quantity)

	if len(bom) == 0 {
		inv, err := store.GetInventoryByProduct(ctx, productID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "no stock record for product %s", productID)
		}
		if err != nil {
			return fmt.Errorf("get inventory: %w", err)
		}
		if numericToDecimal(inv.Quantity).LessThan(need) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "insufficient stock for product %s", productID)
		}
		return nil
	}

	for _, comp := range bom {
		required := numericToDecimal(comp.Quantity).Mul(need)
		mat, err := store.GetMaterialInventory(ctx, database.GetMaterialInventoryParams{
			StoreID:    storeID,
			MaterialID: comp.MaterialID,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "no stock record for material %s", comp.MaterialID)
		}
		if err != nil {
			return fmt.Errorf("get material inventory: %w", err)
		}
		if numericToDecimal(mat.Quantity).LessThan(required) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "insufficient stock for material %s", comp.MaterialID)
		}
	}
	return nil
}

// deductLine consumes stock for one order line. Each deduction is guarded in
// SQL, so stock never goes negative even when a concurrent order drained it
// after the creation-time check. Callers run this inside a transaction; a
// failed component rolls back the whole order update.
func deductLine(ctx context.Context, store InventoryStore, storeID, productID uuid.UUID, quantity int32) error {
	bom, err := store.ListBomByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("list bom: %w", err)
	}
	need := decimal.NewFromInt32(quantity)

	if len(bom) == 0 {
		_, err := store.DeductInventory(ctx, database.DeductInventoryParams{
			ProductID: productID,
			Quantity:  decimalToNumeric(need),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "insufficient stock for product %s", productID)
		}
		if err != nil {
			return fmt.Errorf("deduct inventory: %w", err)
		}
		return nil
	}

	for _, comp := range bom {
		required := numericToDecimal(comp.Quantity).Mul(need)
		_, err := store.DeductMaterialInventory(ctx, database.DeductMaterialInventoryParams{
			StoreID:    storeID,
			MaterialID: comp.MaterialID,
			Quantity:   decimalToNumeric(required),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Newf(apperr.CodeInsufficientInventory, "insufficient stock for material %s", comp.MaterialID)
		}
		if err != nil {
			return fmt.Errorf("deduct material inventory: %w", err)
		}
	}
	return nil
}

// restoreLine writes consumed stock back for one order line, the mirror of
// deductLine.
func restoreLine(ctx context.Context, store InventoryStore, storeID, productID uuid.UUID, quantity int32) error {
	bom, err := store.ListBomByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("list bom: %w", err)
	}
	need := decimal.NewFromInt32(quantity)

	if len(bom) == 0 {
		_, err := store.RestoreInventory(ctx, database.RestoreInventoryParams{
			ProductID: productID,
			Quantity:  decimalToNumeric(need),
		})
		if err != nil {
			return fmt.Errorf("restore inventory: %w", err)
		}
		return nil
	}

	for _, comp := range bom {
		required := numericToDecimal(comp.Quantity).Mul(need)
		_, err := store.RestoreMaterialInventory(ctx, database.RestoreMaterialInventoryParams{
			StoreID:    storeID,
			MaterialID: comp.MaterialID,
			Quantity:   decimalToNumeric(required),
		})
		if err != nil {
			return fmt.Errorf("restore material inventory: %w", err)
		}
	}
	return nil
}

// ReorderResult lists the ledger rows refilled by a sweep.
type ReorderResult struct {
	Finished  []database.Inventory
	Materials []database.MaterialInventory
}

// InventoryService handles replenishment sweeps.
type InventoryService struct {
	pool     TxBeginner
	newStore NewInventoryStore
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(pool TxBeginner, newStore NewInventoryStore) *InventoryService {
	return &InventoryService{pool: pool, newStore: newStore}
}

// Reorder tops up every depleted row in both ledgers atomically.
func (s *InventoryService) Reorder(ctx context.Context, storeID uuid.UUID) (*ReorderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	finished, err := store.TopUpAllInventory(ctx, database.TopUpAllInventoryParams{
		Threshold: decimalToNumeric(reorderThreshold),
		Target:    decimalToNumeric(reorderQuantity),
	})
	if err != nil {
		return nil, fmt.Errorf("top up inventory: %w", err)
	}

	materials, err := store.TopUpAllMaterialInventory(ctx, database.TopUpAllMaterialInventoryParams{
		StoreID:   storeID,
		Threshold: decimalToNumeric(reorderThreshold),
		Target:    decimalToNumeric(reorderQuantity),
	})
	if err != nil {
		return nil, fmt.Errorf("top up material inventory: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &ReorderResult{Finished: finished, Materials: materials}, nil
}
