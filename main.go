package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kashguard/go-threshold-engine/cmd/env"
	"github.com/kashguard/go-threshold-engine/cmd/keygen"
	"github.com/kashguard/go-threshold-engine/cmd/serve"
)

func main() {
	root := &cobra.Command{
		Use:   "threshold-engine",
		Short: "Threshold Schnorr signing and ECDH coordination engine",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(
		env.New(),
		keygen.New(),
		serve.New(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
