package exchange

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/curvelab/monbot/internal/domain"
)

// BackendConfig holds connection parameters for the chain backend.
type BackendConfig struct {
	RPCURL string
	// Markets maps market symbols to orderbook contract addresses.
	Markets map[string]string
	// ReceiptPoll is the interval between receipt lookups while waiting
	// for a transaction to be mined.
	ReceiptPoll time.Duration
	// ReceiptTimeout bounds the whole wait for one transaction.
	ReceiptTimeout time.Duration
	// GasLimitBump is the percentage added on top of the gas estimate.
	GasLimitBump uint64
}

// Backend signs and sends orderbook transactions over JSON-RPC and
// serves book snapshots and market parameters via eth_call. One Backend
// serves every configured market; transaction sends are serialized so
// nonces never collide.
type Backend struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	signer  types.Signer
	markets map[string]common.Address
	cfg     BackendConfig
	logger  *slog.Logger

	mu sync.Mutex // serializes nonce assignment and send
}

var (
	_ domain.Submitter      = (*Backend)(nil)
	_ domain.SnapshotSource = (*Backend)(nil)
	_ domain.ParamsSource   = (*Backend)(nil)
)

// NewBackend dials the RPC endpoint, verifies it by fetching the chain
// id, and returns a ready backend.
func NewBackend(ctx context.Context, cfg BackendConfig, key *ecdsa.PrivateKey, logger *slog.Logger) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("exchange: dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("exchange: chain id: %w", err)
	}

	markets := make(map[string]common.Address, len(cfg.Markets))
	for symbol, addr := range cfg.Markets {
		if !common.IsHexAddress(addr) {
			client.Close()
			return nil, fmt.Errorf("exchange: market %s: bad contract address %q", symbol, addr)
		}
		markets[symbol] = common.HexToAddress(addr)
	}

	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = 500 * time.Millisecond
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}

	return &Backend{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		markets: markets,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "exchange")),
	}, nil
}

// From returns the signing address.
func (b *Backend) From() common.Address { return b.from }

// Close releases the underlying RPC connection.
func (b *Backend) Close() error {
	b.client.Close()
	return nil
}

// SubmitBatch sends one batchUpdate transaction and blocks until it is
// mined, returning the decoded receipt. A mined revert is not an error
// here; the caller inspects Receipt.Reverted.
func (b *Backend) SubmitBatch(ctx context.Context, call domain.BatchCall) (domain.Receipt, error) {
	contract, err := b.contractFor(call.Market)
	if err != nil {
		return domain.Receipt{}, err
	}
	data, err := packBatchUpdate(call)
	if err != nil {
		return domain.Receipt{}, err
	}
	return b.sendAndWait(ctx, contract, data)
}

// SubmitMarket sends one market execution transaction and blocks until
// it is mined.
func (b *Backend) SubmitMarket(ctx context.Context, call domain.MarketCall) (domain.Receipt, error) {
	contract, err := b.contractFor(call.Market)
	if err != nil {
		return domain.Receipt{}, err
	}
	data, err := packMarket(call)
	if err != nil {
		return domain.Receipt{}, err
	}
	return b.sendAndWait(ctx, contract, data)
}

// CancelOrders sends one batchCancelOrders transaction.
func (b *Backend) CancelOrders(ctx context.Context, market string, orderIDs []uint64) (domain.Receipt, error) {
	contract, err := b.contractFor(market)
	if err != nil {
		return domain.Receipt{}, err
	}
	data, err := packBatchCancel(orderIDs)
	if err != nil {
		return domain.Receipt{}, err
	}
	return b.sendAndWait(ctx, contract, data)
}

// FetchSnapshot pulls and decodes the packed book via eth_call.
func (b *Backend) FetchSnapshot(ctx context.Context, market string) (domain.BookSnapshot, error) {
	contract, err := b.contractFor(market)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	out, err := b.view(ctx, contract, "getL2Book")
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	raw, err := unpackL2Bytes(out)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	return decodeL2Book(market, raw)
}

// FetchMarketParams pulls the precision constants via eth_call.
func (b *Backend) FetchMarketParams(ctx context.Context, market string) (domain.MarketParams, error) {
	contract, err := b.contractFor(market)
	if err != nil {
		return domain.MarketParams{}, err
	}
	out, err := b.view(ctx, contract, "getMarketParams")
	if err != nil {
		return domain.MarketParams{}, err
	}
	return unpackMarketParams(out)
}

// ----------------------------------------------------------------------------
// Internal helpers
// ----------------------------------------------------------------------------

func (b *Backend) contractFor(market string) (common.Address, error) {
	addr, ok := b.markets[market]
	if !ok {
		return common.Address{}, fmt.Errorf("exchange: market %s: %w", market, domain.ErrNotFound)
	}
	return addr, nil
}

func (b *Backend) view(ctx context.Context, contract common.Address, method string) ([]byte, error) {
	data, err := packCall(method)
	if err != nil {
		return nil, err
	}
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: call %s: %w", method, err)
	}
	return out, nil
}

// sendAndWait estimates gas, signs, sends, and blocks until the
// transaction is mined, then decodes creation logs from the receipt.
func (b *Backend) sendAndWait(ctx context.Context, contract common.Address, data []byte) (domain.Receipt, error) {
	tx, err := b.signAndSend(ctx, contract, data)
	if err != nil {
		return domain.Receipt{}, err
	}

	b.logger.Info("transaction sent",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("to", contract.Hex()))

	receipt, err := b.waitMined(ctx, tx.Hash())
	if err != nil {
		return domain.Receipt{}, err
	}

	out := domain.Receipt{
		TxHash:   tx.Hash().Hex(),
		Block:    receipt.BlockNumber.Uint64(),
		Reverted: receipt.Status != types.ReceiptStatusSuccessful,
	}
	if !out.Reverted {
		out.Creations, err = decodeCreations(contract, receipt.Logs)
		if err != nil {
			return domain.Receipt{}, err
		}
	}
	return out, nil
}

func (b *Backend) signAndSend(ctx context.Context, contract common.Address, data []byte) (*types.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("exchange: nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: gas price: %w", err)
	}
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &contract,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: estimate gas: %w", err)
	}
	if b.cfg.GasLimitBump > 0 {
		gas += gas * b.cfg.GasLimitBump / 100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, b.signer, b.key)
	if err != nil {
		return nil, fmt.Errorf("exchange: sign tx: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("exchange: send tx: %w", err)
	}
	return signed, nil
}

// waitMined polls for the receipt until it appears or the timeout
// elapses.
func (b *Backend) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(b.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := b.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("exchange: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("exchange: wait mined %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
