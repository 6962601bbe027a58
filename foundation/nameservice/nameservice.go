// Package nameservice reads a folder of private key files and creates a name
// service lookup for the accounts. The keys are kept so the node can spend
// from those accounts.
package nameservice

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[string]string
	names    map[string]string
	keys     map[string]*ecdsa.PrivateKey
}

// New constructs a name service with accounts from the specified folder. A
// file named miner1.ecdsa registers the account under the name miner1.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[string]string),
		names:    make(map[string]string),
		keys:     make(map[string]*ecdsa.PrivateKey),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		address := signature.Address(privateKey.PublicKey)
		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		ns.accounts[address] = name
		ns.names[name] = address
		ns.keys[address] = privateKey

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.accounts[address]
	if !exists {
		return address
	}
	return name
}

// Resolve returns the account for the specified name. Anything that isn't a
// known name is returned as is.
func (ns *NameService) Resolve(name string) string {
	address, exists := ns.names[name]
	if !exists {
		return name
	}
	return address
}

// PrivateKey returns the private key held for the account.
func (ns *NameService) PrivateKey(address string) (*ecdsa.PrivateKey, bool) {
	pk, exists := ns.keys[ns.Resolve(address)]
	return pk, exists
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.accounts))
	for address, name := range ns.accounts {
		cpy[address] = name
	}
	return cpy
}
