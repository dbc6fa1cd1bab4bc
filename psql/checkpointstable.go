// Package psql provides a MySQL table of consumer checkpoints.
package psql

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"

	"github.com/luno/puma"
)

const (
	defaultIDField       = "id"
	defaultFileField     = "binlog_file"
	defaultPositionField = "binlog_position"
	defaultIndexField    = "event_index"
	defaultInfoField     = "binlog_info"
	defaultTimeField     = "updated_at"
	defaultAsyncPeriod   = time.Second * 5
)

// CheckpointsTable provides access to a consumer checkpoints db table.
// Checkpoints only move forward; setting an older position than the stored
// one is an error and setting the same position is a no-op.
type CheckpointsTable struct {
	schema     schema
	sleep      func(d time.Duration) // Abstracted for testing
	setCounter func()

	// Async goodies
	flushMu     sync.Mutex // Required for flushing to DB
	pointsMu    sync.Mutex // Required for asyncPoints
	flushOnce   sync.Once
	asyncPoints map[string]puma.BinlogInfo
	asyncDBC    *sql.DB
	asyncPeriod time.Duration
}

// schema defines the mysql schema of a checkpoints table. The file,
// position and index fields order checkpoints; the info field holds the
// full position.
type schema struct {
	name          string
	idField       string
	fileField     string
	positionField string
	indexField    string
	infoField     string
	timeField     string
}

// NewCheckpointsTable returns a new CheckpointsTable.
func NewCheckpointsTable(name string, options ...Option) *CheckpointsTable {
	table := &CheckpointsTable{
		schema: schema{
			name:          name,
			idField:       defaultIDField,
			fileField:     defaultFileField,
			positionField: defaultPositionField,
			indexField:    defaultIndexField,
			infoField:     defaultInfoField,
			timeField:     defaultTimeField,
		},
		sleep:       time.Sleep,
		setCounter:  makeSetCounter(name),
		asyncPeriod: defaultAsyncPeriod,
	}
	for _, o := range options {
		o(table)
	}

	return table
}

// Option configures a CheckpointsTable.
type Option func(*CheckpointsTable)

// WithIDField provides an option to configure the consumer id field.
// It defaults to 'id'.
func WithIDField(field string) Option {
	return func(table *CheckpointsTable) {
		table.schema.idField = field
	}
}

// WithTimeField provides an option to configure the time field.
// It defaults to 'updated_at'.
func WithTimeField(field string) Option {
	return func(table *CheckpointsTable) {
		table.schema.timeField = field
	}
}

// WithAsyncPeriod provides an option to configure the async write period.
// It defaults to 5 seconds.
func WithAsyncPeriod(d time.Duration) Option {
	return func(table *CheckpointsTable) {
		table.asyncPeriod = d
	}
}

// WithAsyncDisabled provides an option to disable async writes.
func WithAsyncDisabled() Option {
	return WithAsyncPeriod(0)
}

// WithSetCounter provides an option to set the checkpoint DB set metric.
// It defaults to prometheus metrics.
func WithSetCounter(f func()) Option {
	return func(table *CheckpointsTable) {
		table.setCounter = f
	}
}

// WithTestSleep replaces the sleep function for testing.
func WithTestSleep(_ testing.TB, f func(time.Duration)) Option {
	return func(table *CheckpointsTable) {
		table.sleep = f
	}
}

// GetCheckpoint returns the consumer's checkpoint or the zero position.
func (t *CheckpointsTable) GetCheckpoint(ctx context.Context, dbc *sql.DB, consumerID string) (puma.BinlogInfo, error) {
	info, _, err := getCheckpoint(ctx, dbc, t.schema, consumerID)
	return info, err
}

// SetCheckpoint stores the consumer's checkpoint. With async writes enabled
// it is only buffered and written by the next flush.
func (t *CheckpointsTable) SetCheckpoint(ctx context.Context, dbc *sql.DB, consumerID string, info puma.BinlogInfo) error {
	if info.IsZero() {
		return errors.New("zero checkpoint")
	} else if err := info.Validate(); err != nil {
		return err
	}
	if !t.isAsyncEnabled() {
		t.setCounter()
		return setCheckpoint(ctx, dbc, t.schema, consumerID, info)
	}

	t.flushOnce.Do(func() {
		go t.flushForever()
	})

	t.pointsMu.Lock()
	defer t.pointsMu.Unlock()

	if t.asyncPoints == nil {
		t.asyncPoints = make(map[string]puma.BinlogInfo)
		t.asyncDBC = dbc
	}

	t.asyncPoints[consumerID] = info
	return nil
}

func (t *CheckpointsTable) isAsyncEnabled() bool {
	return t.asyncPeriod > 0
}

// Flush writes buffered checkpoints.
func (t *CheckpointsTable) Flush(ctx context.Context) error {
	if !t.isAsyncEnabled() {
		return nil
	}

	t.pointsMu.Lock()
	dbc := t.asyncDBC
	m := t.asyncPoints
	t.asyncPoints = nil

	if len(m) == 0 {
		// Nothing to flush
		t.pointsMu.Unlock()
		return nil
	}

	// Grab the flush mutex before releasing the points mutex.
	t.flushMu.Lock()
	t.pointsMu.Unlock()
	defer t.flushMu.Unlock()

	for id, info := range m {
		t.setCounter()
		err := setCheckpoint(ctx, dbc, t.schema, id, info)
		if err != nil {
			return err
		}
	}

	return nil
}

// ToStore returns a puma.CheckpointStore over the table in dbc.
func (t *CheckpointsTable) ToStore(dbc *sql.DB) puma.CheckpointStore {
	return &store{t: t, dbc: dbc}
}

func (t *CheckpointsTable) flushForever() {
	for {
		t.sleep(t.asyncPeriod)

		ctx := context.Background()
		if err := t.Flush(ctx); err != nil {
			log.Error(ctx, errors.Wrap(err, "puma: error flushing checkpoint"))
		}
	}
}

type store struct {
	t   *CheckpointsTable
	dbc *sql.DB
}

func (s *store) GetCheckpoint(ctx context.Context, consumerName string) (puma.BinlogInfo, error) {
	return s.t.GetCheckpoint(ctx, s.dbc, consumerName)
}

func (s *store) SetCheckpoint(ctx context.Context, consumerName string, info puma.BinlogInfo) error {
	return s.t.SetCheckpoint(ctx, s.dbc, consumerName, info)
}

func (s *store) Flush(ctx context.Context) error {
	return s.t.Flush(ctx)
}
