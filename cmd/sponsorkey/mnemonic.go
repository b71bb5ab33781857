package main

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

const (
	defaultMnemonicBits = 128
	defaultHDPath       = "m/44'/60'/0'/0/0"
	hdHardenedOffset    = uint32(0x80000000)
)

func generateMnemonic(bits int) (string, error) {
	switch bits {
	case 128, 160, 192, 224, 256:
	default:
		return "", fmt.Errorf("invalid mnemonic bits %d (allowed: 128,160,192,224,256)", bits)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// deriveSponsorKey derives a secp256k1 permit signing key from a BIP39
// mnemonic along a BIP32 path.
func deriveSponsorKey(mnemonic, passphrase, derivationPath string) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	path, err := accounts.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid hd path %q: %w", derivationPath, err)
	}
	key, chainCode, err := bip32Master(seed)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		if key, chainCode, err = bip32Child(key, chainCode, index); err != nil {
			return nil, err
		}
	}
	return crypto.ToECDSA(key)
}

func bip32Master(seed []byte) ([]byte, []byte, error) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	if err := checkScalar(sum[:32]); err != nil {
		return nil, nil, fmt.Errorf("invalid bip32 master key: %w", err)
	}
	return sum[:32], sum[32:], nil
}

func bip32Child(parent, chainCode []byte, index uint32) ([]byte, []byte, error) {
	data := make([]byte, 37)
	if index >= hdHardenedOffset {
		copy(data[1:33], parent)
	} else {
		priv, _ := btcec.PrivKeyFromBytes(parent)
		copy(data[:33], priv.PubKey().SerializeCompressed())
	}
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	n := crypto.S256().Params().N
	il := new(big.Int).SetBytes(sum[:32])
	if il.Sign() == 0 || il.Cmp(n) >= 0 {
		return nil, nil, fmt.Errorf("invalid bip32 child scalar at index %d", index)
	}
	child := il.Add(il, new(big.Int).SetBytes(parent))
	child.Mod(child, n)
	if child.Sign() == 0 {
		return nil, nil, fmt.Errorf("invalid bip32 child key at index %d", index)
	}
	return child.FillBytes(make([]byte, 32)), sum[32:], nil
}

func checkScalar(key []byte) error {
	v := new(big.Int).SetBytes(key)
	if v.Sign() == 0 || v.Cmp(crypto.S256().Params().N) >= 0 {
		return fmt.Errorf("scalar out of range")
	}
	return nil
}
