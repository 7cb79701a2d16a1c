package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type PixKeyKind string

const (
	PixKeyEmail    PixKeyKind = "EMAIL"
	PixKeyPhone    PixKeyKind = "PHONE"
	PixKeyDocument PixKeyKind = "DOCUMENT"
	PixKeyRandom   PixKeyKind = "RANDOM"
	PixKeyWallet   PixKeyKind = "WALLET"
)

type PixKeyCategory string

const (
	PixKeyReceiving  PixKeyCategory = "RECEIVING"
	PixKeyWithdrawal PixKeyCategory = "WITHDRAWAL"
)

type Network string

const (
	NetworkBTC   Network = "BTC"
	NetworkERC20 Network = "ERC20"
	NetworkTRC20 Network = "TRC20"
)

// PixKey routes payments to its owning account. It holds no balance.
type PixKey struct {
	ID        int64          `json:"id"`
	AccountID int64          `json:"account_id"`
	Key       string         `json:"key"`
	Kind      PixKeyKind     `json:"kind"`
	Category  PixKeyCategory `json:"category"`
	Network   *Network       `json:"network,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

var keyValidator = validator.New()

// NormalizeKey folds a key as typed by a payer into its stored form. Email
// keys are stored lowercased.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return strings.ToLower(raw)
	}
	return raw
}

// Validate normalizes the key and checks it against its kind. Wallet keys are
// decoded for their network.
func (k *PixKey) Validate() error {
	k.Key = strings.TrimSpace(k.Key)
	if k.Key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidPixKey)
	}
	if k.Category != PixKeyReceiving && k.Category != PixKeyWithdrawal {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPixKey, k.Category)
	}
	if k.Kind != PixKeyWallet && k.Network != nil {
		return fmt.Errorf("%w: network is only valid for wallet keys", ErrInvalidPixKey)
	}

	var err error
	switch k.Kind {
	case PixKeyEmail:
		k.Key = NormalizeKey(k.Key)
		err = keyValidator.Var(k.Key, "email")
	case PixKeyPhone:
		err = keyValidator.Var(k.Key, "e164")
	case PixKeyDocument:
		if err = keyValidator.Var(k.Key, "number"); err == nil && len(k.Key) != 11 && len(k.Key) != 14 {
			err = fmt.Errorf("document must have 11 (CPF) or 14 (CNPJ) digits")
		}
	case PixKeyRandom:
		_, err = uuid.Parse(k.Key)
	case PixKeyWallet:
		if k.Network == nil {
			return fmt.Errorf("%w: wallet key requires a network", ErrInvalidPixKey)
		}
		err = ValidateWalletAddress(*k.Network, k.Key)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPixKey, k.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPixKey, err)
	}
	return nil
}

// ValidateWalletAddress checks that addr decodes for the given network.
func ValidateWalletAddress(network Network, addr string) error {
	switch network {
	case NetworkBTC:
		decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
		if err != nil {
			return fmt.Errorf("invalid bitcoin address: %w", err)
		}
		if !decoded.IsForNet(&chaincfg.MainNetParams) {
			return fmt.Errorf("bitcoin address is not for mainnet")
		}
	case NetworkERC20:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid ethereum address format")
		}
	case NetworkTRC20:
		if _, err := address.Base58ToAddress(addr); err != nil {
			return fmt.Errorf("invalid tron address: %w", err)
		}
	default:
		return fmt.Errorf("unsupported network %q", network)
	}
	return nil
}
