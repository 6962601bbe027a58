package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/signature"
	"go.uber.org/zap"
)

// Keys generates a key file for every name in the folder the name service
// of the node loads accounts from. Existing key files are left alone.
func Keys(args []string, log *zap.SugaredLogger) error {
	if len(args) < 4 {
		return errors.New("usage: admin keys <folder> <name>...")
	}

	folder := args[2]
	if err := os.MkdirAll(folder, 0700); err != nil {
		return err
	}

	for _, name := range args[3:] {
		path := filepath.Join(folder, name+".ecdsa")
		if _, err := os.Stat(path); err == nil {
			log.Infow("keys", "status", "exists", "name", name, "path", path)
			continue
		}

		privateKey, err := signature.GenerateKey()
		if err != nil {
			return err
		}

		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		log.Infow("keys", "status", "generated", "name", name, "address", signature.Address(privateKey.PublicKey))
	}

	return nil
}
