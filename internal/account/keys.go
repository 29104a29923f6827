package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema for the snapshot store. Perpetra has exactly one
// instrument per engine instance (spec Non-goals), so unlike the teacher's
// multi-symbol schema there is no per-symbol component: a ledger key is just
// the owner's address.
const (
	prefixLedger = "ledger:" // per-user ledger snapshot
	prefixTrade  = "trade:"  // trade history, read back by Store.LoadRecentTrades
)

// ledgerKey returns the key for a user's ledger snapshot.
// Format: "ledger:{address}"
func ledgerKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixLedger, addr.Hex()))
}

// tradeKey returns the key for a trade, zero-padded on sequence so
// lexicographic iteration order matches trade order.
// Format: "trade:{seq zero-padded to 20 digits}"
func tradeKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTrade, seq))
}

// tradePrefix is the range-scan prefix for every persisted trade.
func tradePrefix() []byte {
	return []byte(prefixTrade)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the prefix's last byte.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// ledgerAddressFromKey extracts the owner address from a ledger key, the
// inverse of ledgerKey — used when iterating every persisted ledger on
// startup restore.
func ledgerAddressFromKey(key []byte) (common.Address, error) {
	if len(key) < len(prefixLedger)+42 {
		return common.Address{}, fmt.Errorf("invalid ledger key length: %d", len(key))
	}
	addrHex := string(key[len(prefixLedger):])
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in ledger key: %s", addrHex)
	}
	return common.HexToAddress(addrHex), nil
}
