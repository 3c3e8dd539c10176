package infrastructure

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// transferCallSize is selector + address word + amount word; memo bytes follow it
const transferCallSize = 4 + 32 + 32

var transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMBackend is the subset of *ethclient.Client the gateway uses
type EVMBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMGatewayConfig describes the token and the treasury
type EVMGatewayConfig struct {
	TokenContract    string
	TreasuryAddress  string
	TokenDecimals    uint8
	MinConfirmations uint64
}

// EVMGateway implements interfaces.ChainGateway for an ERC-20 token
type EVMGateway struct {
	backend          EVMBackend
	token            common.Address
	treasury         common.Address
	signer           *ecdsa.PrivateKey
	decimals         uint8
	minConfirmations uint64
	erc20            abi.ABI
}

// NewEVMGateway creates a gateway. signer may be nil for a read-only gateway
// that can verify deposits but not withdraw.
func NewEVMGateway(backend EVMBackend, cfg EVMGatewayConfig, signer *ecdsa.PrivateKey) (*EVMGateway, error) {
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("invalid token contract address %q", cfg.TokenContract)
	}

	treasury := cfg.TreasuryAddress
	if treasury == "" && signer != nil {
		treasury = crypto.PubkeyToAddress(signer.PublicKey).Hex()
	}
	if !common.IsHexAddress(treasury) {
		return nil, fmt.Errorf("invalid treasury address %q", treasury)
	}
	if signer != nil && crypto.PubkeyToAddress(signer.PublicKey) != common.HexToAddress(treasury) {
		return nil, fmt.Errorf("signing key does not control treasury %s", treasury)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	confirmations := cfg.MinConfirmations
	if confirmations == 0 {
		confirmations = 1
	}

	return &EVMGateway{
		backend:          backend,
		token:            common.HexToAddress(cfg.TokenContract),
		treasury:         common.HexToAddress(treasury),
		signer:           signer,
		decimals:         cfg.TokenDecimals,
		minConfirmations: confirmations,
		erc20:            parsed,
	}, nil
}

// TreasuryAddress returns the checksummed treasury address
func (g *EVMGateway) TreasuryAddress() string {
	return g.treasury.Hex()
}

// ValidateAddress rejects anything that is not a 20-byte hex address
func (g *EVMGateway) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%q: %w", address, domain.ErrInvalidAddress)
	}
	if common.HexToAddress(address) == (common.Address{}) {
		return fmt.Errorf("zero address: %w", domain.ErrInvalidAddress)
	}
	return nil
}

// GetTreasuryBalance returns the treasury's token balance
func (g *EVMGateway) GetTreasuryBalance(ctx context.Context) (entities.Amount, error) {
	data, err := g.erc20.Pack("balanceOf", g.treasury)
	if err != nil {
		return 0, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := g.erc20.Unpack("balanceOf", out)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("balanceOf returned %d values", len(values))
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("balanceOf returned %T", values[0])
	}

	return g.toAmount(raw)
}

// SubmitTransfer signs and broadcasts an ERC-20 transfer from the treasury.
// It returns once the node accepted the transaction; inclusion is not awaited.
func (g *EVMGateway) SubmitTransfer(ctx context.Context, toAddress string, amount entities.Amount) (string, error) {
	if g.signer == nil {
		return "", errors.New("gateway has no signing key")
	}
	if err := g.ValidateAddress(toAddress); err != nil {
		return "", err
	}
	if err := g.ValidateAmount(amount); err != nil {
		return "", err
	}

	data, err := g.erc20.Pack("transfer", common.HexToAddress(toAddress), g.toBaseUnits(amount))
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}

	nonce, err := g.backend.PendingNonceAt(ctx, g.treasury)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: g.treasury, To: &g.token, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}
	chainID, err := g.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &g.token,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), g.signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign transfer: %w", err)
	}

	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transfer: %w", err)
	}

	log.WithFields(log.Fields{
		"tx_hash": signed.Hash().Hex(),
		"to":      toAddress,
		"amount":  amount.String(),
		"nonce":   nonce,
	}).Info("Submitted treasury transfer")

	return signed.Hash().Hex(), nil
}

// VerifyIncomingTransfer checks that txHash moved tokens into the treasury and
// extracts the routing memo appended to the transfer calldata
func (g *EVMGateway) VerifyIncomingTransfer(ctx context.Context, txHash string) (entities.VerificationResult, error) {
	if !isTxHash(txHash) {
		return entities.Malformed("not a transaction hash"), nil
	}
	hash := common.HexToHash(txHash)

	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return entities.NotFound("transaction not mined"), nil
	}
	if err != nil {
		return entities.VerificationResult{}, fmt.Errorf("failed to get receipt %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return entities.Malformed("transaction reverted"), nil
	}

	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return entities.VerificationResult{}, fmt.Errorf("failed to get block number: %w", err)
	}
	height := receipt.BlockNumber.Uint64()
	if head < height || head-height+1 < g.minConfirmations {
		return entities.NotFound("awaiting confirmations"), nil
	}

	total := new(big.Int)
	var from common.Address
	for _, l := range receipt.Logs {
		if l.Address != g.token || len(l.Topics) != 3 || l.Topics[0] != transferEventTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != g.treasury {
			continue
		}
		if total.Sign() == 0 {
			from = common.BytesToAddress(l.Topics[1].Bytes())
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	if total.Sign() == 0 {
		return entities.Malformed("no token transfer to the treasury"), nil
	}

	amount, err := g.toAmount(total)
	if err != nil {
		return entities.Malformed(err.Error()), nil
	}
	if !amount.IsPositive() {
		return entities.Malformed("amount below ledger precision"), nil
	}

	memo := ""
	tx, _, err := g.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return entities.VerificationResult{}, fmt.Errorf("failed to get transaction %s: %w", txHash, err)
	}
	if tx.To() != nil && *tx.To() == g.token {
		memo = g.decodeMemo(tx.Data())
	}

	return entities.Verified(entities.VerifiedTransfer{
		TxHash:      hash.Hex(),
		Amount:      amount,
		FromAddress: from.Hex(),
		Memo:        memo,
		Height:      int64(height),
	}), nil
}

func (g *EVMGateway) decodeMemo(data []byte) string {
	if len(data) <= transferCallSize {
		return ""
	}
	if string(data[:4]) != string(g.erc20.Methods["transfer"].ID) {
		return ""
	}
	memo := strings.TrimSpace(strings.TrimRight(string(data[transferCallSize:]), "\x00"))
	if !utf8.ValidString(memo) {
		return ""
	}
	return memo
}

// toAmount converts token base units to ledger minor units, dropping dust
// below the ledger's precision
func (g *EVMGateway) toAmount(raw *big.Int) (entities.Amount, error) {
	v := new(big.Int).Set(raw)
	switch {
	case g.decimals > entities.AmountScale:
		v.Quo(v, pow10(g.decimals-entities.AmountScale))
	case g.decimals < entities.AmountScale:
		v.Mul(v, pow10(entities.AmountScale-g.decimals))
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("token amount %s overflows the ledger", raw)
	}
	return entities.Amount(v.Int64()), nil
}

// ValidateAmount rejects amounts the token cannot represent exactly, which
// happens when it has fewer decimals than the ledger
func (g *EVMGateway) ValidateAmount(amount entities.Amount) error {
	if err := amount.ValidatePositive(); err != nil {
		return err
	}
	if g.decimals >= entities.AmountScale {
		return nil
	}
	unit := pow10(entities.AmountScale - g.decimals).Int64()
	if int64(amount)%unit != 0 {
		return fmt.Errorf("%w: %s is finer than the token's %d decimals", domain.ErrInvalidAmount, amount, g.decimals)
	}
	return nil
}

func (g *EVMGateway) toBaseUnits(amount entities.Amount) *big.Int {
	v := big.NewInt(int64(amount))
	switch {
	case g.decimals > entities.AmountScale:
		v.Mul(v, pow10(g.decimals-entities.AmountScale))
	case g.decimals < entities.AmountScale:
		v.Quo(v, pow10(entities.AmountScale-g.decimals))
	}
	return v
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func isTxHash(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
