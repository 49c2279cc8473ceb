package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func check(e error) {
	if e != nil {
		fmt.Printf("%v\n", e.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "keyturn",
	Short:   "Keyturn rotates identity signing keys without losing the attached alias and payment address",
	Long:    `Keyturn is an identity key-rotation server. It lets the holder of a signing keypair replace it while preserving the bound alias and payment address, with a bounded rollback window.`,
	Version: "0.1.0",
	Run: func(cmd *cobra.Command, args []string) {
		// empty
	},
}

func main() {
	Execute()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
