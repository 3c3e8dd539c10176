package infrastructure

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// LoadTreasuryKey returns the treasury signing key from a hex private key or,
// if that is empty, from a BIP-39 mnemonic at m/44'/60'/0'/0/0.
// Both empty yields nil, nil and the gateway runs read-only.
func LoadTreasuryKey(privateKeyHex, mnemonic string) (*ecdsa.PrivateKey, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	mnemonic = strings.TrimSpace(mnemonic)

	switch {
	case privateKeyHex != "":
		key, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid treasury private key: %w", err)
		}
		return key, nil
	case mnemonic != "":
		return deriveTreasuryKey(mnemonic, 0)
	default:
		return nil, nil
	}
}

func deriveTreasuryKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid treasury mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	for _, child := range path {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive treasury key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract treasury key: %w", err)
	}
	return priv.ToECDSA(), nil
}
