package ai

import (
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/client"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/spf13/cobra"
)

var (
	aiClient *client.AIClient

	// AICommands represents the AI proxy command group
	AICommands = &cobra.Command{
		Use:                "ai",
		Short:              "Perform operations on an ahnlich AI proxy",
		PersistentPreRunE:  setupAIClient,
		PersistentPostRunE: closeAIClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(AICommands)

	// the AI proxy listens on its own port
	endpoints := AICommands.PersistentFlags().Lookup("transport-endpoints")
	endpoints.DefValue = "localhost:1370"
	_ = endpoints.Value.Set(endpoints.DefValue)

	AICommands.AddCommand(pingCmd)
	AICommands.AddCommand(infoCmd)
	AICommands.AddCommand(listStoresCmd)
	AICommands.AddCommand(createStoreCmd)
	AICommands.AddCommand(dropStoreCmd)
	AICommands.AddCommand(purgeStoresCmd)
	AICommands.AddCommand(setCmd)
	AICommands.AddCommand(getKeyCmd)
	AICommands.AddCommand(getSimNCmd)
	AICommands.AddCommand(delKeyCmd)
}

func setupAIClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	aiClient, err = client.NewAIClient(*config, t, s)
	return err
}

func closeAIClient(_ *cobra.Command, _ []string) error {
	if aiClient == nil {
		return nil
	}
	return aiClient.Close()
}
