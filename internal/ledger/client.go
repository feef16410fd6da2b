// Package ledger wraps the OmniVault registry contract on an
// Ethereum-compatible chain. The contract is treated as an opaque external
// ledger with a fixed function surface: notarize, purchase, access check, and
// listing lookup. Prices cross this boundary in wei.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// contractABI is the registry's fixed function surface.
const contractABI = `[
	{"type":"function","name":"notarizeDocument","stateMutability":"nonpayable","inputs":[{"name":"_fileHash","type":"string"},{"name":"_fileKey","type":"string"},{"name":"_price","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"buyAccess","stateMutability":"payable","inputs":[{"name":"_fileHash","type":"string"}],"outputs":[]},
	{"type":"function","name":"verifyAccess","stateMutability":"view","inputs":[{"name":"_fileHash","type":"string"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getDocument","stateMutability":"view","inputs":[{"name":"_fileHash","type":"string"}],"outputs":[{"name":"fileKey","type":"string"},{"name":"owner","type":"address"},{"name":"timestamp","type":"uint256"},{"name":"price","type":"uint256"},{"name":"forSale","type":"bool"}]}
]`

var (
	// ErrWrongNetwork is returned when the RPC endpoint reports a chain ID
	// other than the configured one. No call is attempted on a wrong chain.
	ErrWrongNetwork = errors.New("ledger reachable on an unexpected chain")

	// ErrWalletUnavailable is returned when a transaction is requested but
	// no signing key was configured.
	ErrWalletUnavailable = errors.New("no signing key configured for ledger transactions")

	// ErrTransactionRejected is returned when a transaction reverts or the
	// node refuses it (insufficient funds, nonce conflicts, reverts).
	ErrTransactionRejected = errors.New("ledger transaction rejected")

	// ErrNotFound is returned when a content hash has no listing on the
	// ledger.
	ErrNotFound = errors.New("content hash not found on ledger")
)

// Listing is a notarized document record as stored on the ledger.
type Listing struct {
	StorageKey string
	Owner      string
	Timestamp  time.Time
	PriceWei   *big.Int
	ForSale    bool
}

// Config holds ledger client configuration.
type Config struct {
	RPCURL          string
	ContractAddress string
	// ChainID guards against notarizing on the wrong network. Zero skips
	// the check.
	ChainID int64
	// PrivateKeyHex signs transactions. Empty yields a read-only client.
	PrivateKeyHex string
}

// Client talks to the registry contract. Read methods work without a signing
// key; Notarize and Purchase require one.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	chainID  *big.Int
}

// Dial connects to the RPC endpoint, verifies the chain ID, and binds the
// contract.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("ledger RPC URL is required")
	}
	if cfg.ContractAddress == "" {
		return nil, errors.New("contract address is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger RPC: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("query chain ID: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		eth.Close()
		return nil, fmt.Errorf("%w: got chain %s, want %d", ErrWrongNetwork, chainID, cfg.ChainID)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	var auth *bind.TransactOpts
	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		auth, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("build transactor: %w", err)
		}
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &Client{
		eth:      eth,
		contract: bind.NewBoundContract(address, parsed, eth, eth, eth),
		auth:     auth,
		chainID:  chainID,
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// SignerAddress returns the transacting address, or empty for a read-only
// client.
func (c *Client) SignerAddress() string {
	if c.auth == nil {
		return ""
	}
	return c.auth.From.Hex()
}

// HealthCheck verifies the RPC endpoint still answers and still reports the
// expected chain.
func (c *Client) HealthCheck(ctx context.Context) error {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	if chainID.Cmp(c.chainID) != 0 {
		return fmt.Errorf("%w: got chain %s, want %s", ErrWrongNetwork, chainID, c.chainID)
	}
	return nil
}

// Notarize records (contentHash, storageKey, price) on the ledger and waits
// for the transaction to be mined. Returns the transaction hash.
func (c *Client) Notarize(ctx context.Context, contentHash, storageKey string, priceWei *big.Int) (string, error) {
	if c.auth == nil {
		return "", ErrWalletUnavailable
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "notarizeDocument", contentHash, storageKey, priceWei)
	if err != nil {
		return "", classifyTxError(err)
	}
	return c.awaitReceipt(ctx, tx)
}

// Purchase pays a listing's price to the contract for access to contentHash.
func (c *Client) Purchase(ctx context.Context, contentHash string, priceWei *big.Int) (string, error) {
	if c.auth == nil {
		return "", ErrWalletUnavailable
	}

	opts := *c.auth
	opts.Context = ctx
	opts.Value = priceWei
	tx, err := c.contract.Transact(&opts, "buyAccess", contentHash)
	if err != nil {
		return "", classifyTxError(err)
	}
	return c.awaitReceipt(ctx, tx)
}

// awaitReceipt blocks until the transaction is mined and checks its status.
func (c *Client) awaitReceipt(ctx context.Context, tx *types.Transaction) (string, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return "", fmt.Errorf("wait for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: transaction %s reverted", ErrTransactionRejected, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

// CheckAccess reports whether the wallet at account may read the document
// behind contentHash. Account must be a hex ledger address, not an identity
// email.
func (c *Client) CheckAccess(ctx context.Context, contentHash, account string) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "verifyAccess", contentHash, common.HexToAddress(account))
	if err != nil {
		return false, fmt.Errorf("verifyAccess call: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("verifyAccess returned %d values", len(out))
	}
	granted, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("verifyAccess returned %T, want bool", out[0])
	}
	return granted, nil
}

// GetListing fetches the listing for contentHash. An empty storage key means
// the hash was never notarized.
func (c *Client) GetListing(ctx context.Context, contentHash string) (*Listing, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getDocument", contentHash)
	if err != nil {
		return nil, fmt.Errorf("getDocument call: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("getDocument returned %d values, want 5", len(out))
	}

	storageKey, _ := out[0].(string)
	if storageKey == "" {
		return nil, ErrNotFound
	}
	owner, _ := out[1].(common.Address)
	timestamp, _ := out[2].(*big.Int)
	price, _ := out[3].(*big.Int)
	forSale, _ := out[4].(bool)

	listing := &Listing{
		StorageKey: storageKey,
		Owner:      owner.Hex(),
		PriceWei:   price,
		ForSale:    forSale,
	}
	if timestamp != nil && timestamp.IsInt64() {
		listing.Timestamp = time.Unix(timestamp.Int64(), 0).UTC()
	}
	return listing, nil
}

// classifyTxError maps node errors onto the package's sentinel taxonomy.
// Reverts and balance problems are rejections; everything else is a transport
// failure the caller may retry.
func classifyTxError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "transaction underpriced"),
		strings.Contains(msg, "nonce too low"):
		return fmt.Errorf("%w: %s", ErrTransactionRejected, err)
	default:
		return fmt.Errorf("submit transaction: %w", err)
	}
}
