package risk

// SettleFunding implements spec §4.4: on the funding cadence, transfer
// size · mark_price · r from every long to the short side, in aggregate.
// Risk sends mark and rate as a single SettleFundingSweep message and lets
// Accounts compute and apply every position's delta itself — one inbox
// entry for the whole cadence, so no Gateway order-flow message (reserve,
// settle fill, ...) can interleave between individual positions' funding
// adjustments (spec §4.4/§5 "must be atomic in aggregate").
func (w *Worker) SettleFunding() {
	mark := w.oracle.CurrentMarkPrice()
	r := w.cfg.FundingRate

	touched := w.accounts.SettleFundingSweep(mark, r)
	w.log.Infow("funding settled", "mark", mark.String(), "rate", r.String(), "positions", len(touched))
}
