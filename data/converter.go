package data

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// ErrUnknownOperation is returned when a record carries an op name the engine
// does not know.
var ErrUnknownOperation = errors.New("unknown operation in record")

// Converter builds Arrow records from engine values and back.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{allocator: memory.DefaultAllocator}
}

// NewConverterWithAllocator creates a Converter using alloc, mostly for
// leak checks in tests.
func NewConverterWithAllocator(alloc memory.Allocator) *Converter {
	return &Converter{allocator: alloc}
}

// EntriesToRecord converts entries to a record matching EntrySchema.
func (c *Converter) EntriesToRecord(entries []engine.Entry) (arrow.Record, error) {
	if len(entries) == 0 {
		return nil, errors.New("empty entries slice")
	}

	builder := array.NewRecordBuilder(c.allocator, EntrySchema())
	defer builder.Release()

	ledgerIDs := builder.Field(0).(*array.Int64Builder)
	ops := builder.Field(1).(*array.StringBuilder)
	froms := builder.Field(2).(*array.Int64Builder)
	tos := builder.Field(3).(*array.Int64Builder)
	amounts := builder.Field(4).(*array.Int64Builder)

	for _, e := range entries {
		if !e.Op.Valid() {
			return nil, fmt.Errorf("ledger %d: %w", e.LedgerID, ErrUnknownOperation)
		}
		ledgerIDs.Append(e.LedgerID)
		ops.Append(e.Op.String())
		froms.Append(int64(e.From))
		tos.Append(int64(e.To))
		amounts.Append(e.Amount)
	}

	return builder.NewRecord(), nil
}

// RecordToEntries converts a record matching EntrySchema back to entries.
func (c *Converter) RecordToEntries(record arrow.Record) ([]engine.Entry, error) {
	if err := ValidateSchema(record, EntrySchema()); err != nil {
		return nil, err
	}

	ledgerIDs := record.Column(0).(*array.Int64)
	ops := record.Column(1).(*array.String)
	froms := record.Column(2).(*array.Int64)
	tos := record.Column(3).(*array.Int64)
	amounts := record.Column(4).(*array.Int64)

	entries := make([]engine.Entry, record.NumRows())
	for i := range entries {
		op, ok := engine.ParseOperation(ops.Value(i))
		if !ok {
			return nil, fmt.Errorf("row %d: %w: %q", i, ErrUnknownOperation, ops.Value(i))
		}
		if amounts.Value(i) < 0 {
			return nil, fmt.Errorf("row %d: negative amount %d", i, amounts.Value(i))
		}
		entries[i] = engine.Entry{
			LedgerID: ledgerIDs.Value(i),
			Op:       op,
			From:     int(froms.Value(i)),
			To:       int(tos.Value(i)),
			Amount:   amounts.Value(i),
		}
	}
	return entries, nil
}

// OutcomesToRecord converts outcomes to a record matching OutcomeSchema.
// An empty slice yields an empty record.
func (c *Converter) OutcomesToRecord(outcomes []engine.Outcome) arrow.Record {
	builder := array.NewRecordBuilder(c.allocator, OutcomeSchema())
	defer builder.Release()

	workerIDs := builder.Field(0).(*array.Int64Builder)
	ledgerIDs := builder.Field(1).(*array.Int64Builder)
	ops := builder.Field(2).(*array.StringBuilder)
	froms := builder.Field(3).(*array.Int64Builder)
	tos := builder.Field(4).(*array.Int64Builder)
	amounts := builder.Field(5).(*array.Int64Builder)
	balances := builder.Field(6).(*array.Int64Builder)
	oks := builder.Field(7).(*array.BooleanBuilder)
	errs := builder.Field(8).(*array.StringBuilder)
	stages := builder.Field(9).(*array.StringBuilder)
	durations := builder.Field(10).(*array.Int64Builder)

	for _, o := range outcomes {
		workerIDs.Append(int64(o.WorkerID))
		ledgerIDs.Append(o.LedgerID)
		ops.Append(o.Op.String())
		froms.Append(int64(o.From))
		tos.Append(int64(o.To))
		amounts.Append(o.Amount)
		balances.Append(o.Balance)
		oks.Append(o.Succeeded())
		if o.Err != nil {
			errs.Append(o.Err.Error())
		} else {
			errs.AppendNull()
		}
		stages.Append(o.Stage.String())
		durations.Append(o.Duration.Microseconds())
	}

	return builder.NewRecord()
}

// SnapshotToRecord converts the balances of a snapshot to a record matching
// BalanceSchema.
func (c *Converter) SnapshotToRecord(snap engine.Snapshot) arrow.Record {
	builder := array.NewRecordBuilder(c.allocator, BalanceSchema())
	defer builder.Release()

	ids := builder.Field(0).(*array.Int64Builder)
	balances := builder.Field(1).(*array.Int64Builder)
	for _, a := range snap.Accounts {
		ids.Append(int64(a.ID))
		balances.Append(a.Balance)
	}

	return builder.NewRecord()
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
