// Package chain implements on-chain interaction with Polymarket's
// Conditional Tokens Framework contract: checking whether a binary
// condition has been resolved, and redeeming a wallet's winning positions
// for collateral once it has.
//
// This is the correctness-critical half of the order broker: calling
// redeemPositions before payoutDenominator is set silently burns the
// outcome tokens for zero payout, and a status=1 transaction receipt alone
// does not prove a non-zero payout was received (see the collateral-log
// check in RedeemCompleteSet). Contract calls use manual ABI packing over
// ethclient rather than a bind-generated binding — two functions don't
// justify one.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"polymarket-mm/internal/config"
	pmtypes "polymarket-mm/pkg/types"
)

// conditionalTokensAddress is Polymarket's Conditional Tokens Framework
// contract on Polygon mainnet.
const conditionalTokensAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

// candidateCollaterals are tried in order: native USDC first, then the
// legacy bridged USDC.e. A wallet's winning positions may be denominated
// in either, depending on which collateral backed the market at creation.
var candidateCollaterals = []common.Address{
	common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), // native USDC
	common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), // bridged USDC.e
}

// fallbackRPCs is the fixed failover list; a user-configured endpoint is
// appended last by NewClient.
var fallbackRPCs = []string{
	"https://polygon.llamarpc.com",
	"https://polygon-bor-rpc.publicnode.com",
	"https://polygon-rpc.com",
	"https://rpc.ankr.com/polygon",
}

const ctfABIJSON = `[
	{"constant":true,"inputs":[{"name":"conditionId","type":"bytes32"}],"name":"payoutDenominator","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// indexSets covers both outcomes of a binary condition.
var binaryIndexSets = []*big.Int{big.NewInt(1), big.NewInt(2)}

var zeroParentCollection common.Hash

// Client wraps an ethclient.Client with CTF-specific calls, RPC failover,
// and transaction retry/gas-bump handling.
type Client struct {
	mu         sync.Mutex
	endpoints  []string
	endpointAt int
	eth        *ethclient.Client

	ctfABI     abi.ABI
	ctfAddress common.Address

	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	live   bool
	logger *slog.Logger
}

// NewClient dials the first reachable RPC endpoint and prepares signing
// material from the bot's configured private key.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	parsedABI, err := abi.JSON(strings.NewReader(ctfABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ctf abi: %w", err)
	}

	endpoints := append([]string{}, fallbackRPCs...)
	if cfg.Endpoints.PolygonRPC != "" {
		endpoints = append(endpoints, cfg.Endpoints.PolygonRPC)
	}

	c := &Client{
		endpoints:  endpoints,
		ctfABI:     parsedABI,
		ctfAddress: common.HexToAddress(conditionalTokensAddress),
		chainID:    big.NewInt(137),
		live:       cfg.Live,
		logger:     logger.With("component", "chain"),
	}

	if cfg.Credentials.PrivateKey != "" {
		keyHex := strings.TrimPrefix(cfg.Credentials.PrivateKey, "0x")
		privateKey, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.privateKey = privateKey
		c.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	}

	if cfg.Live {
		if err := c.dial(0); err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
	}

	return c, nil
}

func (c *Client) dial(at int) error {
	if at >= len(c.endpoints) {
		return fmt.Errorf("exhausted all %d rpc endpoints", len(c.endpoints))
	}
	client, err := ethclient.Dial(c.endpoints[at])
	if err != nil {
		return err
	}
	c.eth = client
	c.endpointAt = at
	return nil
}

// failover switches to the next endpoint in the list. Returns an error if
// the list is exhausted.
func (c *Client) failover() error {
	next := c.endpointAt + 1
	if next >= len(c.endpoints) {
		return fmt.Errorf("rpc failover exhausted: tried %d endpoints", len(c.endpoints))
	}
	c.logger.Warn("rpc failover", "from", c.endpoints[c.endpointAt], "to", c.endpoints[next])
	return c.dial(next)
}

// isTransientErr reports whether err is the class of transport failure
// worth retrying via RPC failover: HTTP 5xx, connection resets, and
// timeouts.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"503", "502", "connection", "timeout", "reset", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsMarketResolved calls payoutDenominator(condition_id) — the sole
// authoritative resolution gate. The venue's "closed" flag is never
// consulted: a market can be closed before the oracle actually reports,
// and treating "closed" as "resolved" would let RedeemCompleteSet fire
// prematurely.
func (c *Client) IsMarketResolved(ctx context.Context, conditionID pmtypes.ConditionID) (bool, error) {
	if !c.live {
		return true, nil
	}

	denom, err := c.payoutDenominator(ctx, conditionID)
	if err != nil {
		return false, err
	}
	return denom.Sign() > 0, nil
}

func (c *Client) payoutDenominator(ctx context.Context, conditionID pmtypes.ConditionID) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.ctfABI.Pack("payoutDenominator", common.HexToHash(string(conditionID)))
	if err != nil {
		return nil, fmt.Errorf("pack payoutDenominator: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		msg := ethereum.CallMsg{To: &c.ctfAddress, Data: data}
		out, err := c.eth.CallContract(ctx, msg, nil)
		if err == nil {
			results, unpackErr := c.ctfABI.Unpack("payoutDenominator", out)
			if unpackErr != nil {
				return nil, fmt.Errorf("unpack payoutDenominator: %w", unpackErr)
			}
			return results[0].(*big.Int), nil
		}
		lastErr = err
		if !isTransientErr(err) {
			return nil, fmt.Errorf("call payoutDenominator: %w", err)
		}
		if ferr := c.failover(); ferr != nil {
			return nil, fmt.Errorf("call payoutDenominator: %w (failover: %v)", err, ferr)
		}
	}
	return nil, fmt.Errorf("call payoutDenominator: %w", lastErr)
}

// RedeemCompleteSet is the correctness-critical redemption procedure:
// recheck resolution, submit redeemPositions against each candidate
// collateral in turn, and accept only a receipt whose logs prove a
// non-zero payout was actually transferred.
func (c *Client) RedeemCompleteSet(ctx context.Context, conditionID pmtypes.ConditionID) (bool, string, error) {
	if !c.live {
		return true, "", nil
	}

	resolved, err := c.IsMarketResolved(ctx, conditionID)
	if err != nil {
		return false, "", fmt.Errorf("recheck resolution: %w", err)
	}
	if !resolved {
		return false, "payouts not set", nil
	}

	for _, collateral := range candidateCollaterals {
		success, noTokens, err := c.redeemAgainstCollateral(ctx, collateral, conditionID)
		if err != nil {
			return false, err.Error(), err
		}
		if success {
			return true, "", nil
		}
		if !noTokens {
			return false, "redemption failed", fmt.Errorf("redemption failed for collateral %s", collateral.Hex())
		}
		// noTokens: try the next candidate collateral.
	}

	return false, "no positions found", nil
}

func (c *Client) redeemAgainstCollateral(ctx context.Context, collateral common.Address, conditionID pmtypes.ConditionID) (success bool, noTokens bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conditionHash := common.HexToHash(string(conditionID))
	data, err := c.ctfABI.Pack("redeemPositions", collateral, zeroParentCollection, conditionHash, binaryIndexSets)
	if err != nil {
		return false, false, fmt.Errorf("pack redeemPositions: %w", err)
	}

	signer := types.NewEIP155Signer(c.chainID)
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return false, false, fmt.Errorf("suggest gas price: %w", err)
	}
	gasPrice = mulFloat(gasPrice, 1.2)

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return false, false, fmt.Errorf("pending nonce: %w", err)
	}

	var txHash common.Hash
	for attempt := 0; attempt < 5; attempt++ {
		tx := types.NewTransaction(nonce, c.ctfAddress, big.NewInt(0), 300_000, gasPrice, data)
		signedTx, signErr := types.SignTx(tx, signer, c.privateKey)
		if signErr != nil {
			return false, false, fmt.Errorf("sign transaction: %w", signErr)
		}

		sendErr := c.eth.SendTransaction(ctx, signedTx)
		switch {
		case sendErr == nil:
			txHash = signedTx.Hash()
		case strings.Contains(sendErr.Error(), "already known"):
			txHash = signedTx.Hash()
		case strings.Contains(sendErr.Error(), "replacement transaction underpriced"):
			gasPrice = mulFloat(gasPrice, 1.5)
			continue
		case strings.Contains(sendErr.Error(), "nonce too low"):
			return false, false, fmt.Errorf("submit redemption: %w", sendErr)
		case isTransientErr(sendErr):
			if ferr := c.failover(); ferr != nil {
				return false, false, fmt.Errorf("submit redemption: %w (failover: %v)", sendErr, ferr)
			}
			continue
		default:
			return false, false, fmt.Errorf("submit redemption: %w", sendErr)
		}
		break
	}
	if txHash == (common.Hash{}) {
		return false, false, fmt.Errorf("submit redemption: exhausted retries without a transaction hash")
	}

	receipt, err := c.waitForReceipt(ctx, txHash)
	if err != nil {
		return false, false, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, false, fmt.Errorf("transaction reverted: %s", txHash.Hex())
	}

	redeemed := verifyCollateralLog(receipt)
	return redeemed, !redeemed, nil
}

// waitForReceipt polls for a transaction receipt up to a 90s timeout.
// The engine never cancels an in-flight submission itself — only this
// bounded wait does, since leaving on-chain state ambiguous is worse than
// waiting.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("receipt not available after 90s: %s", txHash.Hex())
}

// verifyCollateralLog is the single most important correctness check in
// this package: a status=1 receipt alone does not prove a payout was
// received. Only a log whose emitter is one of the known collateral
// contracts (an ERC-20 Transfer into the wallet) proves a non-zero
// payout — a receipt containing only the conditional token's ERC-1155
// burn log means the wallet held no winning positions in that collection.
func verifyCollateralLog(receipt *types.Receipt) bool {
	for _, log := range receipt.Logs {
		for _, collateral := range candidateCollaterals {
			if log.Address == collateral {
				return true
			}
		}
	}
	return false
}

func mulFloat(v *big.Int, factor float64) *big.Int {
	f := new(big.Float).SetInt(v)
	f.Mul(f, big.NewFloat(factor))
	out, _ := f.Int(nil)
	return out
}
