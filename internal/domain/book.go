package domain

// PriceLevel is one aggregated level of the book, in integer units.
type PriceLevel struct {
	Price int64
	Size  int64
}

// BookSnapshot is a wholesale image of one market's book at a block.
// Bids are sorted by price descending, asks ascending.
type BookSnapshot struct {
	Market string
	Block  uint64
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// BestBid returns the highest bid level, or false when the side is empty.
func (s BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level, or false when the side is empty.
func (s BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}
