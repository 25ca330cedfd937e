package cmd

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
)

var balanceAddress string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance of an account on every node",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceAddress, "address", "d", "", "Address to query, defaults to the configured account.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	address := balanceAddress
	if address == "" {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		address = string(database.PublicKeyToAccountID(privateKey.PublicKey))
	}

	p, err := packet.New(packet.TypeBalanceRequest, packet.BalanceRequest{AccountID: address})
	if err != nil {
		log.Fatal(err)
	}

	// Each node holds its own view of the chain, so query them all and
	// report per node.
	for _, node := range nodes {
		resp, err := packet.Roundtrip(node, p, limits())
		if err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		var payload packet.BalanceResponse
		if err := resp.Decode(&payload); err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		fmt.Printf("%s: %s: %d\n", node, payload.AccountID, payload.Balance)
	}
}
