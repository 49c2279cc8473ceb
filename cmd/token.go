package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/keyturn/go-keyturn-server/api/interceptors"
	"github.com/keyturn/go-keyturn-server/types"
)

var ownerAddress string
var keyFile string

func init() {
	tokenCmd.Flags().StringVarP(&ownerAddress, "address", "a", "", "owner address to mint the token for")
	tokenCmd.Flags().StringVarP(&keyFile, "keyFile", "f", "", "json file with the server keys")
	tokenCmd.MarkFlagRequired("address")
	tokenCmd.MarkFlagRequired("keyFile")
	rootCmd.AddCommand(tokenCmd)
}

// tokenCmd mints a development bearer token; production tokens come from
// the external authentication service
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long:  "Mint a bearer JWS token for an owner address, signed with the server keys",
	Run: func(cmd *cobra.Command, args []string) {
		content, err := os.ReadFile(keyFile)
		check(err)
		var keys types.ServerKeys
		err = json.Unmarshal(content, &keys)
		check(err)
		privateKeyBytes, pkErr := base64.StdEncoding.DecodeString(keys.PrivateKey)
		check(pkErr)
		if len(privateKeyBytes) != ed25519.PrivateKeySize {
			fmt.Printf("Invalid length of private key (must be %d but is %d): %s\n", ed25519.PrivateKeySize, len(privateKeyBytes), keyFile)
			os.Exit(1)
		}
		token, tErr := interceptors.GenerateJWSToken(ed25519.PrivateKey(privateKeyBytes), ownerAddress, uuid.New().String())
		check(tErr)
		fmt.Printf("%s\n", token)
	},
}
