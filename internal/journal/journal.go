package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/subscription"
)

const insertEvent = `
	INSERT INTO feed_events (id, run_id, event_type, fid, created_at, received_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the journal writes through.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config configures a Journal.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // events queued ahead of the writer before dropping
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// Metrics counts journal activity.
type Metrics struct {
	Recorded int64
	Dropped  int64
	Inserts  int64
	Flushes  int64
	Errors   int64
}

type record struct {
	event      events.Event
	receivedAt time.Time
}

type row struct {
	ID         uuid.UUID
	EventType  string
	Fid        string
	CreatedAt  *time.Time
	ReceivedAt time.Time
	Payload    []byte
}

// Journal batches events into the feed_events table.
type Journal struct {
	cfg    Config
	db     DB
	runID  string
	logger *slog.Logger
	now    func() time.Time

	input *subscription.Queue[record]

	batch   []row
	batchMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	consumed chan struct{}

	metrics Metrics
}

// New creates a journal writing to db.
func New(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	runID := uuid.NewString()
	return &Journal{
		cfg:    cfg,
		db:     db,
		runID:  runID,
		logger: logger.With("component", "journal", "run_id", runID),
		now:    time.Now,
		input:  subscription.NewQueue[record](64),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// RunID identifies the rows written by this journal.
func (j *Journal) RunID() string { return j.runID }

// Record queues ev. It never blocks; it returns false when the event was
// dropped because the buffer is full or the journal is stopped.
func (j *Journal) Record(ev events.Event) bool {
	if j.cfg.BufferSize > 0 && j.input.Len() >= j.cfg.BufferSize {
		j.count(func(m *Metrics) { m.Dropped++ })
		return false
	}
	if !j.input.Push(record{event: ev, receivedAt: j.now()}) {
		j.count(func(m *Metrics) { m.Dropped++ })
		return false
	}
	j.count(func(m *Metrics) { m.Recorded++ })
	return true
}

// Start begins consuming queued events and writing to the database.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.consumed = make(chan struct{})

	go j.consumeLoop()

	j.wg.Add(1)
	go j.flushLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued events, flushes and shuts down.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping journal")

	j.input.Close()

	if j.consumed != nil {
		select {
		case <-j.consumed:
		case <-ctx.Done():
			j.logger.Warn("journal stop timed out", "queued", j.input.Len())
		}
	}
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()

	// Final flush
	j.flush(ctx)

	stats := j.Stats()
	j.logger.Info("journal stopped", "inserts", stats.Inserts, "dropped", stats.Dropped, "errors", stats.Errors)
	return nil
}

// Stats returns current metrics.
func (j *Journal) Stats() Metrics {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.metrics
}

func (j *Journal) count(fn func(m *Metrics)) {
	j.batchMu.Lock()
	fn(&j.metrics)
	j.batchMu.Unlock()
}

// consumeLoop exits once the input is closed and drained.
func (j *Journal) consumeLoop() {
	defer close(j.consumed)

	for {
		rec, ok := j.input.Pop()
		if !ok {
			return
		}
		j.handle(rec)
	}
}

func (j *Journal) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush(j.ctx)
		}
	}
}

func (j *Journal) handle(rec record) {
	r, err := transform(rec)
	if err != nil {
		j.logger.Warn("event not journaled", "type", rec.event.Type(), "error", err)
		j.count(func(m *Metrics) { m.Errors++ })
		return
	}

	j.batchMu.Lock()
	j.batch = append(j.batch, r)
	shouldFlush := len(j.batch) >= j.cfg.BatchSize
	j.batchMu.Unlock()

	if shouldFlush {
		j.flush(j.ctx)
	}
}

// transform converts a delivered event into a row.
func transform(rec record) (row, error) {
	r := row{
		ID:         uuid.New(),
		EventType:  rec.event.Type(),
		ReceivedAt: rec.receivedAt,
	}
	if h, ok := events.Header(rec.event); ok {
		r.Fid = h.Fid
		if !h.CreatedAt.IsZero() {
			created := h.CreatedAt
			r.CreatedAt = &created
		}
	}

	if unknown, ok := rec.event.(*events.UnknownEvent); ok {
		r.Payload = unknown.Raw
		return r, nil
	}
	payload, err := json.Marshal(rec.event)
	if err != nil {
		return row{}, err
	}
	r.Payload = payload
	return r, nil
}

// flush writes the current batch to the database.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]row, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()

	if err := j.batchInsert(ctx, batch); err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.count(func(m *Metrics) { m.Errors++ })
		return
	}

	j.count(func(m *Metrics) {
		m.Inserts += int64(len(batch))
		m.Flushes++
	})

	j.logger.Debug("flushed events", "count", len(batch), "duration", time.Since(start))
}

func (j *Journal) batchInsert(ctx context.Context, rows []row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent, r.ID.String(), j.runID, r.EventType, r.Fid, r.CreatedAt, r.ReceivedAt, r.Payload)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
