package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wms-platform/stock-engine/internal/config"
	mongoRepo "github.com/wms-platform/stock-engine/internal/infrastructure/mongodb"
	"github.com/wms-platform/stock-engine/internal/saga"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/mongodb"
	outboxMongo "github.com/wms-platform/stock-engine/pkg/outbox/mongodb"
)

// Lists what needs an operator: pick sagas that failed permanently, sagas
// still consuming their reservation long after their last update, and
// outbox records parked after exhausting their publish attempts.

var (
	stuckAfter = flag.Duration("stuck-after", 30*time.Minute, "Report consuming sagas not updated for this long")
	limit      = flag.Int("limit", 50, "Maximum number of sagas listed per state")
)

type sagaLister interface {
	List(ctx context.Context, state saga.State, updatedBefore time.Time, limit int) ([]*saga.PickStockSagaState, error)
}

type parkedCounter interface {
	CountParked(ctx context.Context) (int64, error)
}

type report struct {
	Failed       []*saga.PickStockSagaState
	Stuck        []*saga.PickStockSagaState
	ParkedOutbox int64
}

func (r report) NeedsAttention() bool {
	return len(r.Failed) > 0 || len(r.Stuck) > 0 || r.ParkedOutbox > 0
}

func main() {
	flag.Parse()

	logger := logging.New(logging.DefaultConfig(config.ServiceName + "-monitor"))

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer client.Close(context.Background())

	store := mongoRepo.NewSagaStore(client.Database(), nil, nil, nil)
	outboxRepo := outboxMongo.NewOutboxRepository(client.Database())
	r, err := collect(ctx, store, outboxRepo, time.Now().UTC(), *stuckAfter, *limit)
	if err != nil {
		logger.WithError(err).Error("Failed to build report")
		os.Exit(1)
	}

	render(os.Stdout, r, *stuckAfter)
	if r.NeedsAttention() {
		os.Exit(2)
	}
}

func collect(ctx context.Context, store sagaLister, outbox parkedCounter, now time.Time, stuckAfter time.Duration, limit int) (report, error) {
	failed, err := store.List(ctx, saga.StateFailed, time.Time{}, limit)
	if err != nil {
		return report{}, fmt.Errorf("list failed sagas: %w", err)
	}
	stuck, err := store.List(ctx, saga.StateConsumingReservation, now.Add(-stuckAfter), limit)
	if err != nil {
		return report{}, fmt.Errorf("list stuck sagas: %w", err)
	}
	parked, err := outbox.CountParked(ctx)
	if err != nil {
		return report{}, fmt.Errorf("count parked outbox records: %w", err)
	}
	return report{Failed: failed, Stuck: stuck, ParkedOutbox: parked}, nil
}

func render(out io.Writer, r report, stuckAfter time.Duration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "FAILED SAGAS (%d)\n", len(r.Failed))
	writeRows(w, r.Failed)
	fmt.Fprintf(w, "\nCONSUMING LONGER THAN %s (%d)\n", stuckAfter, len(r.Stuck))
	writeRows(w, r.Stuck)
	fmt.Fprintf(w, "\nPARKED OUTBOX RECORDS: %d\n", r.ParkedOutbox)
}

func writeRows(w io.Writer, states []*saga.PickStockSagaState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	fmt.Fprintln(w, "CORRELATION\tRESERVATION\tMOVEMENT\tLOCATION\tSKU\tQTY\tRETRIES\tUPDATED\tLAST ERROR")
	for _, s := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s:%s\t%s\t%d\t%d\t%s\t%s\n",
			s.CorrelationID, s.ReservationID, s.MovementID, s.WarehouseID, s.FromLocation, s.SKU,
			s.Quantity, s.RetryCount, s.UpdatedAt.Format(time.RFC3339), s.LastError)
	}
}
