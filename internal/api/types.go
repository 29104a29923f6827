package api

// Request/response DTOs for the REST and WebSocket surface of SPEC_FULL §6.
// Amounts cross the wire as decimal strings (shopspring/decimal marshals
// this way by default) so no precision is lost to float64 in transit.

// SubmitOrderRequest is the payload for POST /order, per spec §6: type_,
// amount, price, side, leverage, jwt.
type SubmitOrderRequest struct {
	Type     string `json:"type_"` // "limit" or "market"
	Side     string `json:"side"` // "bid" or "ask"
	Price    string `json:"price,omitempty"`
	Amount   string `json:"amount"`
	Leverage int    `json:"leverage"`
	JWT      string `json:"jwt"`
}

// SubmitOrderResponse mirrors spec §6's { order_id, status } success shape.
type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Fills   int    `json:"fills"`
}

// CancelOrderRequest is the payload for POST /order/cancel.
type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	JWT     string `json:"jwt"`
}

// CancelOrderResponse reports the collateral released back to free.
type CancelOrderResponse struct {
	Refunded string `json:"refunded"`
}

// DepositRequest is the payload for POST /account/deposit.
type DepositRequest struct {
	Amount string `json:"amount"`
	JWT    string `json:"jwt"`
}

// ErrorResponse is returned for all error statuses, per spec §7's
// error-kind taxonomy (validation, insufficient_collateral, unknown_order,
// not_owner, auth).
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MarketInfo is the response for GET /market — the instrument's static
// trading rules.
type MarketInfo struct {
	Symbol                    string `json:"symbol"`
	BaseAsset                 string `json:"baseAsset"`
	QuoteAsset                string `json:"quoteAsset"`
	TickSize                  string `json:"tickSize"`
	LotSize                   string `json:"lotSize"`
	MaxLeverage               int    `json:"maxLeverage"`
	MaintenanceMarginFraction string `json:"maintenanceMarginFraction"`
	MarkPrice                 string `json:"markPrice"`
}

// PositionInfo is the position field of the GET /account/{address} response.
type PositionInfo struct {
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice,omitempty"`
	Margin        string `json:"margin"`
	MarkPrice     string `json:"markPrice"`
	UnrealizedPnL string `json:"unrealizedPnl"`
	Equity        string `json:"equity"`
}

// AccountInfo is the response for GET /account/{address}.
type AccountInfo struct {
	Address        string       `json:"address"`
	Free           string       `json:"free"`
	TotalReserved  string       `json:"totalReserved"`
	RealizedPnL    string       `json:"realizedPnl"`
	FundingPaid    string       `json:"fundingPaid"`
	FundingRecvd   string       `json:"fundingRecvd"`
	InitialDeposit string       `json:"initialDeposit"`
	Position       PositionInfo `json:"position"`
}

// TradeEventFrame and TopOfBookFrame are the two WebSocket frame kinds spec
// §6 "/ws" streams, one JSON object per frame, in emission order.
type TradeEventFrame struct {
	Type       string `json:"type"` // "trade"
	Price      string `json:"price"`
	Qty        string `json:"qty"`
	MakerSide  string `json:"makerSide"`
	TakerSide  string `json:"takerSide"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
}

type TopOfBookFrame struct {
	Type      string  `json:"type"` // "top_of_book"
	BestBid   *string `json:"bestBid"`
	BestAsk   *string `json:"bestAsk"`
	Timestamp int64   `json:"timestamp"`
}
