package main

import (
	"github.com/minicoin/minicoin/app/wallet/cmd"
)

func main() {
	cmd.Execute()
}
