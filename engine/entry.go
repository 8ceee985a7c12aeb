package engine

// Operation is the kind of work a ledger entry requests.
type Operation int

const (
	OpDeposit Operation = iota
	OpWithdraw
	OpTransfer
	OpCheckBalance
)

func (o Operation) String() string {
	switch o {
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	case OpTransfer:
		return "transfer"
	case OpCheckBalance:
		return "check_balance"
	default:
		return "unknown"
	}
}

// Mode returns the single-letter code used in ledger files.
func (o Operation) Mode() byte {
	switch o {
	case OpDeposit:
		return 'D'
	case OpWithdraw:
		return 'W'
	case OpTransfer:
		return 'T'
	case OpCheckBalance:
		return 'C'
	default:
		return '?'
	}
}

// Valid reports whether o is one of the four known operations.
func (o Operation) Valid() bool {
	return o >= OpDeposit && o <= OpCheckBalance
}

// ParseOperation maps an operation name (as returned by String) back to an Operation.
func ParseOperation(name string) (Operation, bool) {
	switch name {
	case "deposit":
		return OpDeposit, true
	case "withdraw":
		return OpWithdraw, true
	case "transfer":
		return OpTransfer, true
	case "check_balance":
		return OpCheckBalance, true
	default:
		return 0, false
	}
}

// Entry is one decoded ledger request. It is passed by value and never mutated
// after ingestion.
type Entry struct {
	LedgerID int64
	Op       Operation
	From     int
	To       int // only meaningful for OpTransfer
	Amount   int64
}

// Ref identifies who is applying an entry. It only feeds outcome reporting.
type Ref struct {
	WorkerID int
	LedgerID int64
}
