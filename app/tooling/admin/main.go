// This program performs administrative tasks for setting up a ledger network.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/powledger/node/app/tooling/admin/commands"
	"github.com/powledger/node/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	log.Infow("admin", "version", build)

	return processCommands(os.Args, log)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, log *zap.SugaredLogger) error {
	if len(args) < 2 {
		return errors.New("usage: admin genesis [path] | admin keys <folder> <name>...")
	}

	switch args[1] {
	case "genesis":
		if err := commands.Genesis(args, log); err != nil {
			return fmt.Errorf("writing genesis: %w", err)
		}
	case "keys":
		if err := commands.Keys(args, log); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
