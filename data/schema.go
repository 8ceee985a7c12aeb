package data

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// EntrySchema returns the Arrow schema for a batch of ledger entries.
//
// Fields:
//   - ledger_id: int64 - Id assigned at ingestion
//   - op: string - Operation name (deposit, withdraw, transfer, check_balance)
//   - from: int64 - Source account
//   - to: int64 - Destination account, equal to from unless op is transfer
//   - amount: int64 - Non-negative amount
func EntrySchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "ledger_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "op", Type: arrow.BinaryTypes.String},
			{Name: "from", Type: arrow.PrimitiveTypes.Int64},
			{Name: "to", Type: arrow.PrimitiveTypes.Int64},
			{Name: "amount", Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}

// OutcomeSchema returns the Arrow schema for recorded outcomes.
//
// Fields:
//   - worker_id, ledger_id, op, from, to, amount: copied from the outcome
//   - balance: int64 - Balance observed after the operation
//   - ok: bool - Whether the operation was applied
//   - error: string (nullable) - Failure reason, null on success
//   - stage: string - "store" or "dispatch"
//   - duration_us: int64 - Time spent applying the entry
func OutcomeSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "worker_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "ledger_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "op", Type: arrow.BinaryTypes.String},
			{Name: "from", Type: arrow.PrimitiveTypes.Int64},
			{Name: "to", Type: arrow.PrimitiveTypes.Int64},
			{Name: "amount", Type: arrow.PrimitiveTypes.Int64},
			{Name: "balance", Type: arrow.PrimitiveTypes.Int64},
			{Name: "ok", Type: arrow.FixedWidthTypes.Boolean},
			{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "stage", Type: arrow.BinaryTypes.String},
			{Name: "duration_us", Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}

// BalanceSchema returns the Arrow schema for a balance snapshot.
func BalanceSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "account_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "balance", Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}
