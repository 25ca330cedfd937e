package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/minicoin/minicoin/foundation/blockchain/packet"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the chain length reported by every node",
	Run:   chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func chainRun(cmd *cobra.Command, args []string) {
	p, err := packet.New(packet.TypeChainLenRequest, packet.ChainLenRequest{})
	if err != nil {
		log.Fatal(err)
	}

	for _, node := range nodes {
		resp, err := packet.Roundtrip(node, p, limits())
		if err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		var payload packet.ChainLenResponse
		if err := resp.Decode(&payload); err != nil {
			fmt.Printf("%s: ERROR: %s\n", node, err)
			continue
		}

		fmt.Printf("%s: blocks[%d]\n", node, payload.Length)
	}
}
