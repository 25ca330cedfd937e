// Package cmd contains the wallet commands.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
)

var (
	accountName string
	accountPath string
	genesisPath string
	nodes       []string
)

const keyExtension = ".ecdsa"

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private.ecdsa", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the protocol settings the network runs with.")
	rootCmd.PersistentFlags().StringSliceVarP(&nodes, "nodes", "n", []string{"localhost:9080"}, "Host and port of every node to talk to.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "A simple minicoin wallet",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	if !strings.HasSuffix(accountName, keyExtension) {
		accountName += keyExtension
	}

	return filepath.Join(accountPath, accountName)
}

func limits() packet.Limits {
	return packet.DefaultLimits()
}

// loadGenesis reads the protocol settings the nodes run with. A transaction
// signed against different settings is rejected with a fee or chain id
// mismatch, so the wallet must use the network's actual file.
func loadGenesis() (genesis.Genesis, error) {
	return genesis.Load(genesisPath)
}
