package generic

import (
	"sort"
	"time"
)

// =============================================================================
// CREDIT BALANCE - Prepaid credit per unit per fiscal year
// =============================================================================

type CreditEntryType string

const (
	CreditAdded    CreditEntryType = "credit_added"
	CreditUsed     CreditEntryType = "credit_used"
	CreditRepair   CreditEntryType = "credit_repair"
	CreditRestored CreditEntryType = "credit_restored"
	CreditRemoved  CreditEntryType = "credit_removed"
)

// Sign returns +1 for entry types that increase the balance and -1 for
// those that decrease it.
func (t CreditEntryType) Sign() Cents {
	switch t {
	case CreditUsed, CreditRemoved:
		return -1
	default:
		return 1
	}
}

func (t CreditEntryType) Valid() bool {
	switch t {
	case CreditAdded, CreditUsed, CreditRepair, CreditRestored, CreditRemoved:
		return true
	}
	return false
}

// CreditEntry is one change of a credit balance. Amount is always positive;
// the type carries the direction.
type CreditEntry struct {
	ID            string
	Timestamp     time.Time
	TransactionID TransactionID
	Type          CreditEntryType
	Amount        Cents
	BalanceBefore Cents
	BalanceAfter  Cents
	Description   string
}

// Effect is the signed change this entry makes to the balance.
func (e CreditEntry) Effect() Cents { return e.Type.Sign() * e.Amount }

// CreditBalance is the credit document of one unit for one fiscal year.
// History is a replay log: replaying it from zero yields CurrentBalance
// unless a reversal had to clamp at zero.
type CreditBalance struct {
	UnitID         UnitID
	FiscalYear     int
	CurrentBalance Cents
	History        []CreditEntry
	UpdatedAt      time.Time
}

// Replay recomputes the balance from the history, starting at zero.
func (cb CreditBalance) Replay() Cents {
	var balance Cents
	for _, e := range cb.History {
		balance += e.Effect()
	}
	return balance
}

// EntriesFor returns the history entries created by txID.
func (cb CreditBalance) EntriesFor(txID TransactionID) []CreditEntry {
	var out []CreditEntry
	for _, e := range cb.History {
		if e.TransactionID == txID {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy.
func (cb CreditBalance) Clone() CreditBalance {
	out := cb
	out.History = append([]CreditEntry(nil), cb.History...)
	return out
}

// CreditReversal describes Phase A of a deletion: what was removed from a
// credit document and the balances on either side. It is everything needed
// to put the entries back.
type CreditReversal struct {
	UnitID          UnitID
	FiscalYear      int
	TransactionID   TransactionID
	Removed         []CreditEntry
	NetReversal     Cents // Signed change applied to the balance before clamping
	PreviousBalance Cents
	NewBalance      Cents
}

// Touched reports whether the reversal changed anything.
func (r CreditReversal) Touched() bool { return len(r.Removed) > 0 }

// reverseEntries removes the entries of txID from history and inverts
// their net effect on balance, clamping at zero.
func reverseEntries(balance Cents, history []CreditEntry, txID TransactionID) (Cents, []CreditEntry, []CreditEntry, Cents) {
	var (
		kept    []CreditEntry
		removed []CreditEntry
		net     Cents
	)
	for _, e := range history {
		if e.TransactionID == txID && txID != "" {
			removed = append(removed, e)
			net -= e.Effect()
			continue
		}
		kept = append(kept, e)
	}
	return NonNegative(balance + net), kept, removed, net
}

// restoreEntries puts removed entries back in timestamp order.
func restoreEntries(history, removed []CreditEntry) []CreditEntry {
	out := append(append([]CreditEntry(nil), history...), removed...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
