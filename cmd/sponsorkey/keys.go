package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/tos-network/paymaster/cmd/utils"
)

type outputGenerate struct {
	Address        string `json:"address"`
	DerivationPath string `json:"derivationPath,omitempty"`
	Mnemonic       string `json:"mnemonic,omitempty"`
}

var (
	lightKDFFlag = &cli.BoolFlag{
		Name:  "lightkdf",
		Usage: "use less secure scrypt parameters",
	}
	mnemonicGenerateFlag = &cli.BoolFlag{
		Name:  "mnemonic-generate",
		Usage: "Generate a BIP39 mnemonic and derive key using --hd-path",
	}
	mnemonicFlag = &cli.StringFlag{
		Name:  "mnemonic",
		Usage: "Use existing BIP39 mnemonic to derive the key",
	}
	mnemonicPassphraseFlag = &cli.StringFlag{
		Name:  "mnemonic-passphrase",
		Usage: "Optional BIP39 passphrase for mnemonic-to-seed",
	}
	hdPathFlag = &cli.StringFlag{
		Name:  "hd-path",
		Usage: "Derivation path used with mnemonic flow",
		Value: defaultHDPath,
	}
)

var commandGenerate = &cli.Command{
	Name:      "generate",
	Usage:     "generate new sponsor keyfile",
	ArgsUsage: "[ <keyfile> ]",
	Description: `
Generate a new encrypted secp256k1 keyfile for signing permits.

The key is random unless --mnemonic or --mnemonic-generate is given, in which
case it is derived along --hd-path.`,
	Flags: []cli.Flag{
		passphraseFlag,
		jsonFlag,
		lightKDFFlag,
		mnemonicGenerateFlag,
		mnemonicFlag,
		mnemonicPassphraseFlag,
		hdPathFlag,
	},
	Action: func(ctx *cli.Context) error {
		// Check if keyfile path given and make sure it doesn't already exist.
		keyfilepath := ctx.Args().First()
		if keyfilepath == "" {
			keyfilepath = defaultKeyfileName
		}
		if _, err := os.Stat(keyfilepath); err == nil {
			utils.Fatalf("Keyfile already exists at %s.", keyfilepath)
		} else if !os.IsNotExist(err) {
			utils.Fatalf("Error checking if keyfile exists: %v", err)
		}

		var (
			privateKey *ecdsa.PrivateKey
			mnemonic   = ctx.String(mnemonicFlag.Name)
			out        outputGenerate
			err        error
		)
		if ctx.Bool(mnemonicGenerateFlag.Name) {
			if mnemonic != "" {
				return fmt.Errorf("--%s and --%s are mutually exclusive", mnemonicFlag.Name, mnemonicGenerateFlag.Name)
			}
			if mnemonic, err = generateMnemonic(defaultMnemonicBits); err != nil {
				return err
			}
			out.Mnemonic = mnemonic
		}
		if mnemonic != "" {
			out.DerivationPath = ctx.String(hdPathFlag.Name)
			privateKey, err = deriveSponsorKey(mnemonic, ctx.String(mnemonicPassphraseFlag.Name), out.DerivationPath)
		} else {
			privateKey, err = crypto.GenerateKey()
		}
		if err != nil {
			return fmt.Errorf("failed to create key: %w", err)
		}

		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate random uuid: %w", err)
		}
		key := &keystore.Key{
			Id:         id,
			Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
			PrivateKey: privateKey,
		}

		passphrase := getPassphrase(ctx, true)
		scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
		if ctx.Bool(lightKDFFlag.Name) {
			scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
		}
		keyjson, err := keystore.EncryptKey(key, passphrase, scryptN, scryptP)
		if err != nil {
			return fmt.Errorf("error encrypting key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(keyfilepath), 0o700); err != nil {
			return fmt.Errorf("could not create directory %s: %w", filepath.Dir(keyfilepath), err)
		}
		if err := os.WriteFile(keyfilepath, keyjson, 0o600); err != nil {
			return fmt.Errorf("failed to write keyfile to %s: %w", keyfilepath, err)
		}

		out.Address = key.Address.Hex()
		if ctx.Bool(jsonFlag.Name) {
			mustPrintJSON(ctx, out)
		} else {
			fmt.Fprintln(ctx.App.Writer, "Address:", out.Address)
			if out.Mnemonic != "" {
				fmt.Fprintln(ctx.App.Writer, "Mnemonic:", out.Mnemonic)
			}
		}
		return nil
	},
}

// getPassphrase obtains a passphrase given by the user. It first checks the
// --passwordfile command line flag and ultimately prompts the user for a
// passphrase.
func getPassphrase(ctx *cli.Context, confirmation bool) string {
	if file := ctx.String(passphraseFlag.Name); file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			utils.Fatalf("Failed to read password file '%s': %v", file, err)
		}
		return strings.TrimRight(string(content), "\r\n")
	}
	passphrase := promptPassphrase("Passphrase: ")
	if confirmation && promptPassphrase("Repeat passphrase: ") != passphrase {
		utils.Fatalf("Passphrases do not match")
	}
	return passphrase
}

func promptPassphrase(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		utils.Fatalf("Failed to read passphrase: %v", err)
	}
	return string(raw)
}

// loadKey decrypts the sponsor key at keyfilepath.
func loadKey(ctx *cli.Context, keyfilepath string) (*keystore.Key, error) {
	keyjson, err := os.ReadFile(keyfilepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the keyfile at '%s': %w", keyfilepath, err)
	}
	key, err := keystore.DecryptKey(keyjson, getPassphrase(ctx, false))
	if err != nil {
		return nil, fmt.Errorf("error decrypting key: %w", err)
	}
	return key, nil
}
