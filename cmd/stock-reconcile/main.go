package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mmdatafocus/kitchen_backend/config"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	productID := flag.Int("product-id", 0, "Optional: reconcile a single product")
	asJSON := flag.Bool("json", false, "Print one JSON object per product instead of text")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing products and continue with the others")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	var ids []int
	if *productID > 0 {
		ids = []int{*productID}
	} else if err := db.Model(&models.Product{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		fmt.Fprintf(os.Stderr, "list products: %v\n", err)
		os.Exit(1)
	}

	report := &reporter{out: os.Stdout, json: *asJSON}
	failed := 0
	for _, id := range ids {
		if err := reconcileProduct(context.Background(), db, id, report); err != nil {
			config.LogError(logger, "stock-reconcile", "reconcileProduct", "product", logrus.Fields{"product_id": id}, err)
			if !*continueOnError {
				os.Exit(1)
			}
			failed++
		}
	}

	fmt.Fprintf(os.Stdout, "products=%d inconsistent=%d clamped_entries=%d failed=%d\n",
		len(ids), report.inconsistent, report.clamped, failed)
	if report.inconsistent > 0 || failed > 0 {
		os.Exit(2)
	}
}

type reporter struct {
	out          io.Writer
	json         bool
	inconsistent int
	clamped      int
}

func reconcileProduct(ctx context.Context, db *gorm.DB, productId int, r *reporter) error {
	replay, err := models.ReplayStockHistory(ctx, db, productId)
	if err != nil {
		return err
	}
	r.clamped += len(replay.Clamped)
	if !replay.Consistent() {
		r.inconsistent++
	}
	return r.write(replay)
}

func (r *reporter) write(replay *models.StockReplay) error {
	if r.json {
		return json.NewEncoder(r.out).Encode(replay)
	}
	status := "ok"
	if !replay.Consistent() {
		status = "MISMATCH"
	}
	fmt.Fprintf(r.out, "product=%d cached=%d replayed=%d entries=%d %s\n",
		replay.ProductId, replay.CachedStock, replay.ReplayedStock, replay.Entries, status)
	for _, id := range replay.ChainBreaks {
		fmt.Fprintf(r.out, "  chain break at history id %d\n", id)
	}
	for _, e := range replay.Clamped {
		orderId := "-"
		if e.OrderId != nil {
			orderId = fmt.Sprint(*e.OrderId)
		}
		fmt.Fprintf(r.out, "  over-sell: history id %d order %s requested %d applied %d (%s)\n",
			e.ID, orderId, e.RequestedChange, e.Change, e.Reason)
	}
	return nil
}
