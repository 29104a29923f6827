package account

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// Store provides Pebble-based persistence for account ledgers and trade
// history (SPEC_FULL §6 persisted state, the account-durability open
// question (e) of DESIGN.md). It is only ever touched by the Accounts worker's own goroutine — like
// Manager it has no internal locking.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(64 << 20),
		MemTableSize:                32 << 20,
		MaxConcurrentCompactions:    func() int { return 2 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10,
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ledgerDoc is the JSON wire shape for a persisted Ledger — Reservations is
// flattened to a slice since Pebble/JSON has no native map-of-pointers
// round-trip guarantee across Go versions.
type ledgerDoc struct {
	Owner          common.Address
	Free           decimal.Decimal
	Position       *Position
	Reservations   []*Reservation
	RealizedPnL    decimal.Decimal
	FundingPaid    decimal.Decimal
	FundingRecvd   decimal.Decimal
	InitialDeposit decimal.Decimal
}

// SaveLedger persists one user's full ledger snapshot.
func (s *Store) SaveLedger(l *Ledger) error {
	doc := ledgerDoc{
		Owner:          l.Owner,
		Free:           l.Free,
		Position:       l.Position,
		RealizedPnL:    l.RealizedPnL,
		FundingPaid:    l.FundingPaid,
		FundingRecvd:   l.FundingRecvd,
		InitialDeposit: l.InitialDeposit,
	}
	for _, r := range l.Reservations {
		doc.Reservations = append(doc.Reservations, r)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := s.db.Set(ledgerKey(l.Owner), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// LoadLedger loads a user's ledger snapshot, or nil if none was ever saved.
func (s *Store) LoadLedger(addr common.Address) (*Ledger, error) {
	data, closer, err := s.db.Get(ledgerKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer closer.Close()

	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}

	l := NewLedger(doc.Owner)
	l.Free = doc.Free
	l.Position = doc.Position
	l.RealizedPnL = doc.RealizedPnL
	l.FundingPaid = doc.FundingPaid
	l.FundingRecvd = doc.FundingRecvd
	l.InitialDeposit = doc.InitialDeposit
	for _, r := range doc.Reservations {
		l.Reservations[r.ID] = r
	}
	return l, nil
}

// LoadAllLedgers iterates every persisted ledger, used to restore full state
// on startup.
func (s *Store) LoadAllLedgers() ([]*Ledger, error) {
	prefix := []byte(prefixLedger)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger iterator: %w", err)
	}
	defer iter.Close()

	var out []*Ledger
	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := ledgerAddressFromKey(iter.Key())
		if err != nil {
			continue
		}
		l, err := s.LoadLedger(addr)
		if err != nil || l == nil {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// SaveTrade persists a trade to the trade history that LoadRecentTrades
// reads; no API route serves that history.
func (s *Store) SaveTrade(t orderbook.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	if err := s.db.Set(tradeKey(t.Seq), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// LoadRecentTrades returns the most recent N trades, newest first.
func (s *Store) LoadRecentTrades(limit int) ([]orderbook.Trade, error) {
	prefix := tradePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []orderbook.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t orderbook.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}
