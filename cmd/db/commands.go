package db

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/spf13/cobra"
	"os"
	"strconv"
	"text/tabwriter"
)

var (
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that the server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.Ping(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := common.ResponseAs[common.RespPong](res); err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.InfoServer(cmd.Context())
			if err != nil {
				return err
			}
			info, err := common.ResponseAs[common.RespInfoServer](res)
			if err != nil {
				return err
			}
			fmt.Printf("address=%s, version=%s, type=%s, limit=%d, remaining=%d\n",
				info.Info.Address, info.Info.Version, info.Info.Type, info.Info.Limit, info.Info.Remaining)
			return nil
		},
	}
	listStoresCmd = &cobra.Command{
		Use:   "list-stores",
		Short: "Lists all stores of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.ListStores(cmd.Context())
			if err != nil {
				return err
			}
			list, err := common.ResponseAs[common.RespStoreList](res)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENTRIES\tSIZE (BYTES)")
			for _, s := range list.Stores {
				fmt.Fprintf(w, "%s\t%d\t%d\n", s.Name, s.Len, s.SizeInBytes)
			}
			return w.Flush()
		},
	}
	listClientsCmd = &cobra.Command{
		Use:   "list-clients",
		Short: "Lists all clients connected to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.ListClients(cmd.Context())
			if err != nil {
				return err
			}
			list, err := common.ResponseAs[common.RespClientList](res)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tCONNECTED SINCE")
			for _, c := range list.Clients {
				fmt.Fprintf(w, "%s\t%s\n", c.Address, util.FormatTime(c.TimeConnected))
			}
			return w.Flush()
		},
	}
	createStoreCmd = &cobra.Command{
		Use:   "create-store [store] [dimension]",
		Short: "Creates a store for keys of the given dimension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dimension, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("dimension must be a number: %w", err)
			}
			predicates, _ := cmd.Flags().GetStringSlice("predicates")
			errorIfExists, _ := cmd.Flags().GetBool("error-if-exists")
			kdTree, _ := cmd.Flags().GetBool("kdtree")

			q := common.QueryCreateStore{
				Store:            args[0],
				Dimension:        dimension,
				CreatePredicates: predicates,
				ErrorIfExists:    errorIfExists,
			}
			if kdTree {
				q.NonLinearIndices = []common.NonLinearAlgorithm{common.NonLinearKdTree}
			}

			res, err := dbClient.CreateStore(cmd.Context(), q)
			if err != nil {
				return err
			}
			if _, err := common.ResponseAs[common.RespUnit](res); err != nil {
				return err
			}
			fmt.Printf("store %s created\n", args[0])
			return nil
		},
	}
	dropStoreCmd = &cobra.Command{
		Use:   "drop-store [store]",
		Short: "Drops a store and all its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errorIfNotExists, _ := cmd.Flags().GetBool("error-if-not-exists")
			res, err := dbClient.DropStore(cmd.Context(), args[0], errorIfNotExists)
			if err != nil {
				return err
			}
			del, err := common.ResponseAs[common.RespDel](res)
			if err != nil {
				return err
			}
			fmt.Printf("dropped=%d\n", del.Deleted)
			return nil
		},
	}
	purgeStoresCmd = &cobra.Command{
		Use:   "purge-stores",
		Short: "Drops all stores of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.PurgeStores(cmd.Context())
			if err != nil {
				return err
			}
			del, err := common.ResponseAs[common.RespDel](res)
			if err != nil {
				return err
			}
			fmt.Printf("dropped=%d\n", del.Deleted)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [store] [key] [metadata]",
		Short: "Inserts or updates an entry. The key is a comma separated list of floats, the metadata a comma separated list of name=value pairs",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKey(args[1])
			if err != nil {
				return err
			}
			entry := common.StoreEntry{Key: key}
			if len(args) == 3 {
				if entry.Value, err = util.ParseMetadata(args[2]); err != nil {
					return err
				}
			}

			res, err := dbClient.Set(cmd.Context(), args[0], entry)
			if err != nil {
				return err
			}
			set, err := common.ResponseAs[common.RespSet](res)
			if err != nil {
				return err
			}
			fmt.Printf("inserted=%d, updated=%d\n", set.Upsert.Inserted, set.Upsert.Updated)
			return nil
		},
	}
	getKeyCmd = &cobra.Command{
		Use:   "get-key [store] [key...]",
		Short: "Reads the entries for the given keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args[1:])
			if err != nil {
				return err
			}
			res, err := dbClient.GetKey(cmd.Context(), args[0], keys...)
			if err != nil {
				return err
			}
			get, err := common.ResponseAs[common.RespGet](res)
			if err != nil {
				return err
			}
			for _, e := range get.Entries {
				fmt.Printf("key=%v, value=%s\n", []float32(e.Key), util.FormatValue(e.Value))
			}
			return nil
		},
	}
	getSimNCmd = &cobra.Command{
		Use:   "get-sim-n [store] [key]",
		Short: "Finds the entries most similar to the given key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKey(args[1])
			if err != nil {
				return err
			}
			closestN, _ := cmd.Flags().GetUint64("closest-n")
			algorithmName, _ := cmd.Flags().GetString("algorithm")
			algorithm, err := common.ParseAlgorithm(algorithmName)
			if err != nil {
				return err
			}

			res, err := dbClient.GetSimN(cmd.Context(), common.QueryGetSimN{
				Store:       args[0],
				SearchInput: key,
				ClosestN:    closestN,
				Algorithm:   algorithm,
			})
			if err != nil {
				return err
			}
			sim, err := common.ResponseAs[common.RespGetSimN](res)
			if err != nil {
				return err
			}
			for _, e := range sim.Entries {
				fmt.Printf("similarity=%f, key=%v, value=%s\n", e.Similarity, []float32(e.Key), util.FormatValue(e.Value))
			}
			return nil
		},
	}
	delKeyCmd = &cobra.Command{
		Use:   "del-key [store] [key...]",
		Short: "Deletes the entries for the given keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args[1:])
			if err != nil {
				return err
			}
			res, err := dbClient.DelKey(cmd.Context(), args[0], keys...)
			if err != nil {
				return err
			}
			del, err := common.ResponseAs[common.RespDel](res)
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d\n", del.Deleted)
			return nil
		},
	}
	createPredIndexCmd = &cobra.Command{
		Use:   "create-pred-index [store] [predicate...]",
		Short: "Creates indices for the given metadata names",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dbClient.CreatePredIndex(cmd.Context(), args[0], args[1:]...)
			if err != nil {
				return err
			}
			created, err := common.ResponseAs[common.RespCreateIndex](res)
			if err != nil {
				return err
			}
			fmt.Printf("created=%d\n", created.Created)
			return nil
		},
	}
)

func init() {
	createStoreCmd.Flags().StringSlice("predicates", nil, util.WrapString("Metadata names to create predicate indices for"))
	createStoreCmd.Flags().Bool("error-if-exists", false, util.WrapString("Fail if the store already exists"))
	createStoreCmd.Flags().Bool("kdtree", false, util.WrapString("Create a kd-tree index for the store"))

	dropStoreCmd.Flags().Bool("error-if-not-exists", false, util.WrapString("Fail if the store does not exist"))

	getSimNCmd.Flags().Uint64("closest-n", 1, util.WrapString("Number of entries to return"))
	getSimNCmd.Flags().String("algorithm", common.CosineSimilarity.String(), util.WrapString("Similarity algorithm (euclidean, dot-product, cosine, kdtree)"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseKeys(args []string) ([]common.StoreKey, error) {
	keys := make([]common.StoreKey, 0, len(args))
	for _, arg := range args {
		key, err := util.ParseKey(arg)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
