package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"

	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay the chain of a node and compare its balances",
	Run:   verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) {
	var gen genesis.Genesis
	if err := do(http.MethodGet, "/v1/genesis/list", nil, &gen); err != nil {
		log.Fatal(err)
	}

	var blocks []database.BlockData
	if err := do(http.MethodGet, "/v1/blocks/list/1/latest", nil, &blocks); err != nil {
		log.Fatal(err)
	}

	var bals balances
	if err := do(http.MethodGet, "/v1/balances/list", nil, &bals); err != nil {
		log.Fatal(err)
	}

	mismatches, err := verify(gen, blocks, bals)
	if err != nil {
		log.Fatal(err)
	}

	for _, m := range mismatches {
		fmt.Println(m)
	}

	if len(mismatches) > 0 {
		os.Exit(1)
	}

	fmt.Printf("verified %d blocks and %d accounts\n", len(blocks), len(bals.Balances))
}

// verify replays the blocks through the consensus rules and compares the
// resulting balances with the balances reported by the node.
func verify(gen genesis.Genesis, blockData []database.BlockData, bals balances) ([]string, error) {
	blocks := make([]database.Block, len(blockData))
	for i, bd := range blockData {
		blocks[i] = database.ToBlock(bd)

		if hash := bd.Block.Hash(); hash != bd.Hash {
			return nil, fmt.Errorf("block %d: reported hash %s, computed %s", bd.Height, bd.Hash, hash)
		}
	}

	db, err := database.Replay(gen, blocks, nil)
	if err != nil {
		return nil, err
	}

	replayed := db.Balances()
	reported := make(map[string]uint64, len(bals.Balances))
	for _, bal := range bals.Balances {
		reported[bal.Account] = bal.Balance
	}

	var mismatches []string
	for account, exp := range replayed {
		got, exists := reported[account]
		switch {
		case !exists:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing from node, replayed %d", account, exp))
		case got != exp:
			mismatches = append(mismatches, fmt.Sprintf("%s: node reports %d, replayed %d", account, got, exp))
		}
	}
	for account, got := range reported {
		if _, exists := replayed[account]; !exists {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown to the chain, node reports %d", account, got))
		}
	}

	sort.Strings(mismatches)

	return mismatches, nil
}
