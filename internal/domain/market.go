package domain

// MarketParams are the precision and magnitude constants for one market,
// as fetched from the orderbook contract. All values are raw integers in
// the contract's own units.
type MarketParams struct {
	// PricePrecision and SizePrecision are the fixed-point scale factors
	// (e.g. 100 means two decimal places).
	PricePrecision uint64
	SizePrecision  uint64
	// TickSize is the price granularity in integer price units. Every
	// limit price must be an exact multiple.
	TickSize uint64
	// MinSize and MaxSize bound order sizes in integer size units.
	MinSize uint64
	MaxSize uint64
	// TakerFeeBps and MakerFeeBps are the exchange fee rates.
	TakerFeeBps uint64
	MakerFeeBps uint64
}

// Market identifies one orderbook: the contract address plus its params.
type Market struct {
	Symbol  string
	Address string
	Params  MarketParams
}
