package db

import (
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/client"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/spf13/cobra"
)

var (
	dbClient *client.DBClient

	// DBCommands represents the DB command group
	DBCommands = &cobra.Command{
		Use:                "db",
		Short:              "Perform operations on an ahnlich DB server",
		PersistentPreRunE:  setupDBClient,
		PersistentPostRunE: closeDBClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the DB command
	util.SetupRPCClientFlags(DBCommands)

	// Add subcommands
	DBCommands.AddCommand(pingCmd)
	DBCommands.AddCommand(infoCmd)
	DBCommands.AddCommand(listStoresCmd)
	DBCommands.AddCommand(listClientsCmd)
	DBCommands.AddCommand(createStoreCmd)
	DBCommands.AddCommand(dropStoreCmd)
	DBCommands.AddCommand(purgeStoresCmd)
	DBCommands.AddCommand(setCmd)
	DBCommands.AddCommand(getKeyCmd)
	DBCommands.AddCommand(getSimNCmd)
	DBCommands.AddCommand(delKeyCmd)
	DBCommands.AddCommand(createPredIndexCmd)
	DBCommands.AddCommand(perfTestCmd)
}

// setupDBClient initializes the DB client
func setupDBClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return err
	}

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the DB client
	dbClient, err = client.NewDBClient(
		*config,
		t,
		s,
	)

	return err
}

func closeDBClient(_ *cobra.Command, _ []string) error {
	if dbClient == nil {
		return nil
	}
	return dbClient.Close()
}
