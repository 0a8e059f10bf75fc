package main

import "github.com/vultisig/xmr-bridge/internal/cmd"

func main() {
	cmd.Execute()
}
