package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-rebalancer/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Valuation is one asset's state as seen by a cycle.
type Valuation struct {
	Time         time.Time
	Wallet       int
	Asset        string
	Kind         string
	Quote        string
	Price        float64
	PriceSource  string
	Quantity     float64
	ValueUSD     float64
	TargetUSD    float64
	DeviationPct float64
	Decision     string
	Outcome      string
}

// Order is one submission attempt, simulated or live.
type Order struct {
	Time     time.Time
	Wallet   int
	Asset    string
	Side     string
	Size     string
	Price    string
	DryRun   bool
	Success  bool
	OrderID  string
	Message  string
	RefPrice float64
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	valuations chan Valuation
	orders     chan Order
	started    atomic.Bool
	dropVal    atomic.Uint64
	dropOrder  atomic.Uint64
}

// New returns nil when timescale is disabled; every method accepts a nil writer.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("timescale ping: %w", err)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	writer := &Writer{
		db:         db,
		log:        log,
		schema:     schema,
		valuations: make(chan Valuation, queueSize),
		orders:     make(chan Order, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueValuation never blocks; rows are dropped when the queue is full.
func (w *Writer) EnqueueValuation(v Valuation) {
	if w == nil {
		return
	}
	select {
	case w.valuations <- v:
	default:
		if w.dropVal.Add(1) == 1 {
			w.log.Warn("timescale valuation queue full")
		}
	}
}

func (w *Writer) EnqueueOrder(o Order) {
	if w == nil {
		return
	}
	select {
	case w.orders <- o:
	default:
		if w.dropOrder.Add(1) == 1 {
			w.log.Warn("timescale order queue full")
		}
	}
}

func (w *Writer) Dropped() (valuations, orders uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropVal.Load(), w.dropOrder.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-w.valuations:
			w.insert(ctx, "valuation", w.valuationInsert(), valuationArgs(v)...)
		case o := <-w.orders:
			w.insert(ctx, "order", w.orderInsert(), orderArgs(o)...)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		wallet INTEGER NOT NULL,
		asset TEXT NOT NULL,
		kind TEXT NOT NULL,
		quote TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		price_source TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		value_usd DOUBLE PRECISION NOT NULL,
		target_usd DOUBLE PRECISION NOT NULL,
		deviation_pct DOUBLE PRECISION NOT NULL,
		decision TEXT NOT NULL,
		outcome TEXT NOT NULL
	)`, w.table("asset_valuations"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		wallet INTEGER NOT NULL,
		asset TEXT NOT NULL,
		side TEXT NOT NULL,
		size TEXT NOT NULL,
		price TEXT NOT NULL,
		ref_price DOUBLE PRECISION NOT NULL,
		dry_run BOOLEAN NOT NULL,
		success BOOLEAN NOT NULL,
		order_id TEXT NOT NULL,
		message TEXT NOT NULL
	)`, w.table("rebalance_orders"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"asset_valuations", "rebalance_orders"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) valuationInsert() string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, wallet, asset, kind, quote, price, price_source, quantity,
		value_usd, target_usd, deviation_pct, decision, outcome
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, w.table("asset_valuations"))
}

func (w *Writer) orderInsert() string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, wallet, asset, side, size, price, ref_price, dry_run, success, order_id, message
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, w.table("rebalance_orders"))
}

func valuationArgs(v Valuation) []any {
	return []any{
		v.Time, v.Wallet, v.Asset, v.Kind, v.Quote, v.Price, v.PriceSource, v.Quantity,
		v.ValueUSD, v.TargetUSD, v.DeviationPct, v.Decision, v.Outcome,
	}
}

func orderArgs(o Order) []any {
	return []any{
		o.Time, o.Wallet, o.Asset, o.Side, o.Size, o.Price, o.RefPrice, o.DryRun, o.Success, o.OrderID, o.Message,
	}
}

func (w *Writer) insert(ctx context.Context, kind, query string, args ...any) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		w.log.Warn("timescale insert failed", zap.String("row", kind), zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
