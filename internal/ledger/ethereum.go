package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthereumConfig configures an EthereumLedger.
type EthereumConfig struct {
	RPCURL        string
	AnchorAddress string // hex address anchor transactions are sent to
	PrivateKeyHex string // hex-encoded secp256k1 key used to sign anchor txns
	ChainID       int64
}

// EthereumLedger anchors the anchor-file hash as the call data of a
// zero-value transaction on an Ethereum-compatible chain, using
// go-ethereum's ethclient exactly as a normal externally-owned-account
// write would.
type EthereumLedger struct {
	client  *ethclient.Client
	signer  types.Signer
	key     *ecdsa.PrivateKey
	from    common.Address
	to      common.Address
	chainID *big.Int
}

// NewEthereumLedger dials cfg.RPCURL and prepares the signer used for
// anchoring writes.
func NewEthereumLedger(ctx context.Context, cfg EthereumConfig) (*EthereumLedger, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dialing rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("ledger: parsing private key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	return &EthereumLedger{
		client:  client,
		signer:  types.NewEIP155Signer(chainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		to:      common.HexToAddress(cfg.AnchorAddress),
		chainID: chainID,
	}, nil
}

// GetLastBlock returns the chain head as the ledger's "latest block".
func (l *EthereumLedger) GetLastBlock(ctx context.Context) (Block, error) {
	n, err := l.client.BlockNumber(ctx)
	if err != nil {
		return Block{}, fmt.Errorf("ledger: fetching block number: %w", err)
	}
	return Block{BlockNumber: n}, nil
}

// Write anchors anchorFileHash as the data payload of a zero-value
// transaction sent from the configured signing key to the configured
// anchoring address.
func (l *EthereumLedger) Write(ctx context.Context, anchorFileHash string) error {
	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return fmt.Errorf("ledger: fetching nonce: %w", err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("ledger: suggesting gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, l.to, big.NewInt(0), 60_000, gasPrice, []byte(anchorFileHash))
	signed, err := types.SignTx(tx, l.signer, l.key)
	if err != nil {
		return fmt.Errorf("ledger: signing anchor tx: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("ledger: sending anchor tx: %w", err)
	}
	return nil
}

// TransactionsSince scans blocks after blockNumber for transactions sent to
// the anchoring address and decodes their call data as an anchor-file hash.
func (l *EthereumLedger) TransactionsSince(ctx context.Context, blockNumber uint64) ([]Transaction, error) {
	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetching block number: %w", err)
	}

	var out []Transaction
	for n := blockNumber + 1; n <= head; n++ {
		block, err := l.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, fmt.Errorf("ledger: fetching block %d: %w", n, err)
		}
		for i, tx := range block.Transactions() {
			if tx.To() == nil || *tx.To() != l.to {
				continue
			}
			out = append(out, Transaction{
				BlockNumber:       n,
				TransactionNumber: n*1_000_000 + uint64(i),
				AnchorFileHash:    string(tx.Data()),
			})
		}
	}
	return out, nil
}
