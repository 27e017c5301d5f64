package serve

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/internal/fakeserver"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/grpc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

var (
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start a local in-memory DB server (or AI proxy) for testing",
		Long: `Start a local in-memory server that speaks the ahnlich DB protocol. It keeps all stores in memory
and answers every request, but it is not the real search engine: similarity search is a linear scan.
Use it to try the CLI or to test clients without a running ahnlich instance.
With --ai it answers AI proxy requests and embeds every input by its length instead of running a model.
The configuration can be set via command line flags or environment variables.
The format of the environment variables is AHNLICH_<flag> (e.g. AHNLICH_ENDPOINT=0.0.0.0:1369)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "127.0.0.1:1369", util.WrapString("The address on which the server will listen"))

	key = "ai"
	ServeCmd.PersistentFlags().Bool(key, false, util.WrapString("Answer AI proxy requests instead of DB requests"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// run starts the server and blocks until the process is interrupted
func run(_ *cobra.Command, _ []string) error {
	encoding := common.IntEncoding(viper.GetString("int-encoding"))
	switch encoding {
	case common.IntEncodingVarint, common.IntEncodingFixint:
	default:
		return fmt.Errorf("invalid int encoding %s", encoding)
	}

	srv := fakeserver.New(encoding)
	if viper.GetBool("ai") {
		srv = fakeserver.NewAI(encoding)
	}
	endpoint := viper.GetString("endpoint")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	switch format := common.WireFormat(viper.GetString("wire-format")); format {
	case common.WireFormatBincode:
		if err := srv.Start(endpoint); err != nil {
			return err
		}
		defer srv.Close()
		fmt.Printf("serving %s (%s) on %s\n", format, encoding, srv.Addr())

	case common.WireFormatGRPC:
		ln, err := net.Listen("tcp", endpoint)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", endpoint, err)
		}
		gs := grpc.NewGRPCServer(srv.Handle, grpc.WithDisconnectHandler(srv.Disconnect))
		go func() {
			if err := gs.Serve(ln); err != nil {
				fakeserver.Logger.Errorf("gRPC server stopped: %v", err)
			}
		}()
		defer gs.GracefulStop()
		fmt.Printf("serving %s (%s) on %s\n", format, encoding, ln.Addr())

	default:
		return fmt.Errorf("invalid wire format %s", format)
	}

	<-stop
	fmt.Printf("shutting down after %d requests\n", srv.Requests())
	return nil
}

// initConfig reads ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ahnlich")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
