package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/kitchen_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const defaultBulkUpdateNote = "Manual update via Inventory Dashboard"

type SkippedStockUpdate struct {
	ProductId int    `json:"product_id"`
	Reason    string `json:"reason"`
}

type BulkUpdateResult struct {
	Updated []models.StockMovement `json:"updated"`
	Skipped []SkippedStockUpdate   `json:"skipped"`
}

// BulkUpdateStock sets absolute stock levels in one transaction. Unknown products and
// unchanged levels are skipped and reported rather than failing the batch.
func (e *OrderEngine) BulkUpdateStock(ctx context.Context, input *models.BulkStockUpdate, actorId *int) (result *BulkUpdateResult, err error) {
	ctx, span := e.startSpan(ctx, "BulkUpdateStock")
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("stock.updates", len(input.Updates)))

	err = e.transact(ctx, "BulkUpdateStock", func(tx *gorm.DB) error {
		result = &BulkUpdateResult{Updated: []models.StockMovement{}, Skipped: []SkippedStockUpdate{}}
		for _, u := range input.Updates {
			note := strings.TrimSpace(u.Reason)
			if note == "" {
				note = defaultBulkUpdateNote
			}
			m, err := models.SetStockLevel(tx, u.ProductId, u.Stock, actorId, note)
			if errors.Is(err, models.ErrProductNotFound) {
				result.Skipped = append(result.Skipped, SkippedStockUpdate{ProductId: u.ProductId, Reason: "not_found"})
				continue
			}
			if err != nil {
				return err
			}
			if m == nil {
				result.Skipped = append(result.Skipped, SkippedStockUpdate{ProductId: u.ProductId, Reason: "unchanged"})
				continue
			}
			result.Updated = append(result.Updated, *m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *OrderEngine) GetStockHistory(ctx context.Context, productId int) (*models.Product, []*models.StockHistory, error) {
	ctx, span := e.startSpan(ctx, "GetStockHistory", trace.WithAttributes(attribute.Int("product.id", productId)))
	defer span.End()

	product, err := models.GetProduct(ctx, e.DB, productId)
	if err != nil {
		return nil, nil, err
	}
	entries, err := models.GetStockHistory(ctx, e.DB, productId)
	if err != nil {
		return nil, nil, err
	}
	return product, entries, nil
}

func (e *OrderEngine) GetLowStockProducts(ctx context.Context) ([]*models.Product, error) {
	return models.GetLowStockProducts(ctx, e.DB)
}

func (e *OrderEngine) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	return models.GetOrderStats(ctx, e.DB)
}

