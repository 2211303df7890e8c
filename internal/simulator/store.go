package simulator

import (
	"sync"
	"time"
)

// StoredTransaction is one completed transaction in the terminal's
// current batch.
type StoredTransaction struct {
	Operation     string    `json:"operation"`
	TraceNumber   uint32    `json:"trace_number"`
	ReceiptNumber uint32    `json:"receipt_number"`
	Turnover      uint32    `json:"turnover_number"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      int       `json:"currency"`
	MaskedPAN     string    `json:"masked_pan"`
	CardName      string    `json:"card_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store is the append-only batch of transactions since the last end of
// day. It backs Repeat Receipt, Reversal lookups and the End of Day
// totals, and the control plane reads it for the history endpoints.
type Store struct {
	mu   sync.Mutex
	txns []StoredTransaction
}

// NewStore creates an empty batch.
func NewStore() *Store {
	return &Store{}
}

// Append records one completed transaction.
func (st *Store) Append(txn StoredTransaction) {
	st.mu.Lock()
	st.txns = append(st.txns, txn)
	st.mu.Unlock()
}

// All returns a copy of the current batch in completion order.
func (st *Store) All() []StoredTransaction {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]StoredTransaction, len(st.txns))
	copy(out, st.txns)
	return out
}

// Last returns the most recent transaction, if any.
func (st *Store) Last() (StoredTransaction, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.txns) == 0 {
		return StoredTransaction{}, false
	}
	return st.txns[len(st.txns)-1], true
}

// FindByReceipt returns the transaction with the given receipt number.
func (st *Store) FindByReceipt(receipt uint32) (StoredTransaction, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := len(st.txns) - 1; i >= 0; i-- {
		if st.txns[i].ReceiptNumber == receipt {
			return st.txns[i], true
		}
	}
	return StoredTransaction{}, false
}

// Len returns the batch size.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.txns)
}

// TotalCents sums the batch amounts.
func (st *Store) TotalCents() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	var total int64
	for _, txn := range st.txns {
		total += txn.AmountCents
	}
	return total
}

// Clear empties the batch, returning what it held.
func (st *Store) Clear() []StoredTransaction {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.txns
	st.txns = nil
	return out
}
