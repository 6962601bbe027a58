// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/powledger/node/foundation/blockchain/genesis"
	"go.uber.org/zap"
)

// Genesis writes a genesis file with the default consensus parameters. Every
// node of a network must be started with the same file.
func Genesis(args []string, log *zap.SugaredLogger) error {
	path := "zblock/genesis.json"
	if len(args) > 2 {
		path = args[2]
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("genesis file %s already exists", path)
	}

	data, err := json.MarshalIndent(genesis.Default(), "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	log.Infow("genesis", "status", "written", "path", path)

	return nil
}
