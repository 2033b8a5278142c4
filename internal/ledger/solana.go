package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"opinion-market/internal/config"
	"opinion-market/internal/models"
)

// SolanaLedger settles transfers against an SPL token mint. The operator
// wallet holds the platform escrow token account and acts as the delegate
// users approve for transfer-in pulls.
type SolanaLedger struct {
	rpcClient *rpc.Client
	mint      solana.PublicKey
	operator  *solana.Wallet
	escrow    solana.PublicKey
	logger    *zap.Logger
}

// NewSolanaLedger builds a ledger against the configured network.
func NewSolanaLedger(cfg config.SolanaConfig, logger *zap.Logger) (*SolanaLedger, error) {
	var rpcURL string
	switch cfg.Network {
	case "mainnet-beta":
		rpcURL = rpc.MainNetBeta_RPC
	case "testnet":
		rpcURL = rpc.TestNet_RPC
	default:
		rpcURL = rpc.DevNet_RPC
	}

	mint, err := solana.PublicKeyFromBase58(cfg.TokenMintAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address: %w", err)
	}

	operator, err := solana.WalletFromPrivateKeyBase58(cfg.OperatorWalletKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator wallet key: %w", err)
	}

	escrow, _, err := solana.FindAssociatedTokenAddress(operator.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive escrow token account: %w", err)
	}
	if cfg.EscrowAccountAddress != "" {
		escrow, err = solana.PublicKeyFromBase58(cfg.EscrowAccountAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid escrow account address: %w", err)
		}
	}

	logger.Info("solana ledger initialized",
		zap.String("network", cfg.Network),
		zap.String("operator", operator.PublicKey().String()),
		zap.String("escrow", escrow.String()))

	return &SolanaLedger{
		rpcClient: rpc.New(rpcURL),
		mint:      mint,
		operator:  operator,
		escrow:    escrow,
		logger:    logger,
	}, nil
}

// ValidateAddress reports whether the address is a plausible base58 public key.
func ValidateAddress(address string) bool {
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == 32
}

// TransferIn pulls amount from the caller's token account into escrow using
// the delegation the caller granted to the operator wallet.
func (l *SolanaLedger) TransferIn(ctx context.Context, from string, amount int64) error {
	owner, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return fmt.Errorf("invalid source address %q: %w", from, err)
	}
	source, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return fmt.Errorf("failed to derive source token account: %w", err)
	}
	return l.transfer(ctx, source, l.escrow, amount)
}

// TransferOut pays amount from escrow to the recipient's token account.
func (l *SolanaLedger) TransferOut(ctx context.Context, to string, amount int64) error {
	owner, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return fmt.Errorf("invalid destination address %q: %w", to, err)
	}
	dest, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return fmt.Errorf("failed to derive destination token account: %w", err)
	}
	return l.transfer(ctx, l.escrow, dest, amount)
}

// BalanceOf reports the token balance of the address' associated account.
func (l *SolanaLedger) BalanceOf(ctx context.Context, address string) (int64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	account, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive token account: %w", err)
	}

	resp, err := l.rpcClient.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance for %s: %w", address, err)
	}
	var units int64
	if _, err := fmt.Sscan(resp.Value.Amount, &units); err != nil {
		return 0, fmt.Errorf("unparseable token amount %q: %w", resp.Value.Amount, err)
	}
	return units, nil
}

func (l *SolanaLedger) transfer(ctx context.Context, source, dest solana.PublicKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	if amount == 0 {
		return nil
	}

	recent, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	inst := token.NewTransferCheckedInstruction(
		uint64(amount),
		uint8(models.AmountScale),
		source,
		l.mint,
		dest,
		l.operator.PublicKey(),
		nil,
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		recent.Value.Blockhash,
		solana.TransactionPayer(l.operator.PublicKey()),
	)
	if err != nil {
		return fmt.Errorf("failed to build transfer transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(l.operator.PublicKey()) {
			return &l.operator.PrivateKey
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transfer transaction: %w", err)
	}

	sig, err := l.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return classifyTransferError(err)
	}

	l.logger.Info("token transfer sent",
		zap.String("source", source.String()),
		zap.String("dest", dest.String()),
		zap.Int64("amount", amount),
		zap.String("signature", sig.String()))

	return nil
}

// classifyTransferError maps token-program failures onto the ledger error
// contract. The program reports delegation shortfalls as owner mismatches.
func classifyTransferError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("spl transfer: %w", ErrInsufficientBalance)
	case strings.Contains(msg, "owner does not match"), strings.Contains(msg, "insufficient delegated amount"):
		return fmt.Errorf("spl transfer: %w", ErrInsufficientAllowance)
	default:
		return fmt.Errorf("spl transfer failed: %w", err)
	}
}

var _ TokenLedger = (*SolanaLedger)(nil)
