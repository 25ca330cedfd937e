package cmd

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
)

var (
	sendTo    string
	sendValue uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit a transaction to every node",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "Address receiving the value.")
	sendCmd.Flags().Uint64VarP(&sendValue, "value", "v", 0, "Value to send.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	toID, err := database.ToAccountID(sendTo)
	if err != nil {
		log.Fatal(err)
	}

	fromID := database.PublicKeyToAccountID(privateKey.PublicKey)

	// The storage fee and chain id are part of the signed transaction,
	// derive them from the settings the network actually runs with.
	gen, err := loadGenesis()
	if err != nil {
		log.Fatal(err)
	}

	tx, err := database.NewTx(gen.ChainID, fromID, toID, sendValue, gen.StorageFeeFor(sendValue))
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	p, err := packet.New(packet.TypeSubmitTx, packet.SubmitTx{Tx: signedTx})
	if err != nil {
		log.Fatal(err)
	}

	// Submit to every node independently so the transaction survives any
	// single node being down.
	for _, node := range nodes {
		resp, err := packet.Roundtrip(node, p, limits())
		if err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		var payload packet.SubmitTxResult
		if err := resp.Decode(&payload); err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		if payload.Accepted {
			fmt.Printf("%s: accepted: tx[%s]\n", node, signedTx.ID)
			continue
		}
		fmt.Printf("%s: rejected: %s\n", node, payload.Error)
	}
}
