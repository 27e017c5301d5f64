package cmd

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/cmd/ai"
	"github.com/ValentinKolb/ahnlich-go/cmd/db"
	"github.com/ValentinKolb/ahnlich-go/cmd/serve"
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ahnlich",
		Short: "client for the ahnlich vector database",
		Long: fmt.Sprintf(`ahnlich-go (v%s)

A client for the ahnlich in-memory vector database written in Go.
Requests are sent as length-prefixed binary frames over pooled TCP
connections or as gRPC calls.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ahnlich-go",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ahnlich-go v%s (protocol v%s)\n", Version, common.ProtocolVersion)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(db.DBCommands)
	RootCmd.AddCommand(ai.AICommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "wire-format"
	RootCmd.PersistentFlags().String(key, string(common.WireFormatBincode), util.WrapString("wire format to use (bincode, grpc)"))
	key = "int-encoding"
	RootCmd.PersistentFlags().String(key, string(common.IntEncodingVarint), util.WrapString("encoding of lengths and variant tags (varint, fixint)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
