package feed

import (
	"encoding/json"
	"fmt"

	"github.com/curvelab/monbot/internal/domain"
)

// envelope is the outer frame of every feed message: the event kind,
// the market it belongs to, and the kind-specific payload.
type envelope struct {
	Event   string          `json:"event"`
	Market  string          `json:"market"`
	Payload json.RawMessage `json:"payload"`
}

// Feed payloads carry prices and sizes already in the exchange's
// integer units.
type orderCreatedPayload struct {
	OrderID     uint64 `json:"orderId"`
	Owner       string `json:"ownerAddress"`
	Size        int64  `json:"size"`
	Price       int64  `json:"price"`
	IsBuy       bool   `json:"isBuy"`
	IsCanceled  bool   `json:"isCanceled"`
	BlockNumber uint64 `json:"blockNumber"`
}

type tradePayload struct {
	OrderID     uint64 `json:"orderId"`
	IsBuy       bool   `json:"isBuy"`
	Price       int64  `json:"price"`
	UpdatedSize int64  `json:"updatedSize"`
	FilledSize  int64  `json:"filledSize"`
	Taker       string `json:"takerAddress"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

type ordersCanceledPayload struct {
	OrderIDs    []uint64 `json:"orderIds"`
	Owner       string   `json:"makerAddress"`
	BlockNumber uint64   `json:"blockNumber"`
}

type command struct {
	Type   string `json:"type"`
	Market string `json:"market"`
}

func sideOf(isBuy bool) domain.Side {
	if isBuy {
		return domain.SideBuy
	}
	return domain.SideSell
}

// parseMessage decodes one raw frame into a domain event. Unknown event
// kinds return (nil, nil) and are dropped by the caller.
func parseMessage(raw []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("feed: parse envelope: %w", err)
	}

	switch env.Event {
	case "OrderCreated":
		var p orderCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("feed: parse OrderCreated: %w", err)
		}
		return domain.OrderCreatedEvent{
			Market:   env.Market,
			OrderID:  p.OrderID,
			Owner:    p.Owner,
			Side:     sideOf(p.IsBuy),
			Price:    p.Price,
			Size:     p.Size,
			Canceled: p.IsCanceled,
			Block:    p.BlockNumber,
		}, nil
	case "Trade":
		var p tradePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("feed: parse Trade: %w", err)
		}
		return domain.TradedEvent{
			Market:      env.Market,
			OrderID:     p.OrderID,
			Side:        sideOf(p.IsBuy),
			Price:       p.Price,
			UpdatedSize: p.UpdatedSize,
			FilledSize:  p.FilledSize,
			Taker:       p.Taker,
			Block:       p.BlockNumber,
			TxHash:      p.TxHash,
		}, nil
	case "OrdersCanceled":
		var p ordersCanceledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("feed: parse OrdersCanceled: %w", err)
		}
		return domain.OrdersCanceledEvent{
			Market:   env.Market,
			OrderIDs: p.OrderIDs,
			Owner:    p.Owner,
			Block:    p.BlockNumber,
		}, nil
	}
	return nil, nil
}
