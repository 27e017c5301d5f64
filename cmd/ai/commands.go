package ai

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/spf13/cobra"
	"os"
	"text/tabwriter"
)

var (
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that the proxy answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := aiClient.Ping(cmd.Context())
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
		Short: "Prints information about the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := aiClient.InfoServer(cmd.Context())
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
		Short: "Lists all stores of the proxy with their models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := aiClient.ListStores(cmd.Context())
			if err != nil {
				return err
			}
			list, err := common.ResponseAs[common.RespAIStoreList](res)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tQUERY MODEL\tINDEX MODEL\tEMBEDDING SIZE")
			for _, s := range list.Stores {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Name, s.QueryModel, s.IndexModel, s.EmbeddingSize)
			}
			return w.Flush()
		},
	}
	createStoreCmd = &cobra.Command{
		Use:   "create-store [store]",
		Short: "Creates a store that embeds its inputs with the given models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryModelName, _ := cmd.Flags().GetString("query-model")
			indexModelName, _ := cmd.Flags().GetString("index-model")
			queryModel, err := common.ParseAIModel(queryModelName)
			if err != nil {
				return err
			}
			indexModel, err := common.ParseAIModel(indexModelName)
			if err != nil {
				return err
			}
			predicates, _ := cmd.Flags().GetStringSlice("predicates")
			errorIfExists, _ := cmd.Flags().GetBool("error-if-exists")
			storeOriginal, _ := cmd.Flags().GetBool("store-original")
			kdTree, _ := cmd.Flags().GetBool("kdtree")

			q := common.AIQueryCreateStore{
				Store:         args[0],
				QueryModel:    queryModel,
				IndexModel:    indexModel,
				Predicates:    predicates,
				ErrorIfExists: errorIfExists,
				StoreOriginal: storeOriginal,
			}
			if kdTree {
				q.NonLinearIndices = []common.NonLinearAlgorithm{common.NonLinearKdTree}
			}

			res, err := aiClient.CreateStore(cmd.Context(), q)
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
			res, err := aiClient.DropStore(cmd.Context(), args[0], errorIfNotExists)
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
		Short: "Drops all stores of the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := aiClient.PurgeStores(cmd.Context())
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
		Use:   "set [store] [input] [metadata]",
		Short: "Embeds and stores an input. With --image the input is the path of an image file, the metadata a comma separated list of name=value pairs",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(cmd, args[1])
			if err != nil {
				return err
			}
			entry := common.AIStoreEntry{Input: in}
			if len(args) == 3 {
				if entry.Value, err = util.ParseMetadata(args[2]); err != nil {
					return err
				}
			}
			preprocess, err := parsePreprocess(cmd)
			if err != nil {
				return err
			}

			res, err := aiClient.Set(cmd.Context(), args[0], preprocess, entry)
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
		Use:   "get-key [store] [input...]",
		Short: "Reads the entries for the given inputs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(cmd, args[1:])
			if err != nil {
				return err
			}
			res, err := aiClient.GetKey(cmd.Context(), args[0], inputs...)
			if err != nil {
				return err
			}
			get, err := common.ResponseAs[common.RespAIGet](res)
			if err != nil {
				return err
			}
			for _, e := range get.Entries {
				fmt.Printf("input=%s, value=%s\n", util.FormatInput(e.Input), util.FormatValue(e.Value))
			}
			return nil
		},
	}
	getSimNCmd = &cobra.Command{
		Use:   "get-sim-n [store] [input]",
		Short: "Finds the entries most similar to the given input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(cmd, args[1])
			if err != nil {
				return err
			}
			closestN, _ := cmd.Flags().GetUint64("closest-n")
			algorithmName, _ := cmd.Flags().GetString("algorithm")
			algorithm, err := common.ParseAlgorithm(algorithmName)
			if err != nil {
				return err
			}
			preprocess, err := parsePreprocess(cmd)
			if err != nil {
				return err
			}

			res, err := aiClient.GetSimN(cmd.Context(), common.AIQueryGetSimN{
				Store:       args[0],
				SearchInput: in,
				ClosestN:    closestN,
				Algorithm:   algorithm,
				Preprocess:  preprocess,
			})
			if err != nil {
				return err
			}
			sim, err := common.ResponseAs[common.RespAIGetSimN](res)
			if err != nil {
				return err
			}
			for _, e := range sim.Entries {
				fmt.Printf("similarity=%f, input=%s, value=%s\n", e.Similarity, util.FormatInput(e.Input), util.FormatValue(e.Value))
			}
			return nil
		},
	}
	delKeyCmd = &cobra.Command{
		Use:   "del-key [store] [input]",
		Short: "Deletes the entry for the given input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(cmd, args[1])
			if err != nil {
				return err
			}
			res, err := aiClient.DelKey(cmd.Context(), args[0], in)
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
)

func init() {
	createStoreCmd.Flags().String("query-model", common.AllMiniLML6V2.String(), util.WrapString("Model that embeds search inputs"))
	createStoreCmd.Flags().String("index-model", common.AllMiniLML6V2.String(), util.WrapString("Model that embeds stored inputs"))
	createStoreCmd.Flags().StringSlice("predicates", nil, util.WrapString("Metadata names to create predicate indices for"))
	createStoreCmd.Flags().Bool("error-if-exists", false, util.WrapString("Fail if the store already exists"))
	createStoreCmd.Flags().Bool("store-original", true, util.WrapString("Keep the raw inputs so reads can return them"))
	createStoreCmd.Flags().Bool("kdtree", false, util.WrapString("Create a kd-tree index for the store"))

	dropStoreCmd.Flags().Bool("error-if-not-exists", false, util.WrapString("Fail if the store does not exist"))

	for _, cmd := range []*cobra.Command{setCmd, getKeyCmd, getSimNCmd, delKeyCmd} {
		cmd.Flags().Bool("image", false, util.WrapString("Read the inputs as image files instead of text"))
	}
	for _, cmd := range []*cobra.Command{setCmd, getSimNCmd} {
		cmd.Flags().String("preprocess", common.ModelPreprocessing.String(), util.WrapString("Preprocessing of the input (none, model)"))
	}

	getSimNCmd.Flags().Uint64("closest-n", 1, util.WrapString("Number of entries to return"))
	getSimNCmd.Flags().String("algorithm", common.CosineSimilarity.String(), util.WrapString("Similarity algorithm (euclidean, dot-product, cosine, kdtree)"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseInput reads arg as text, or as the path of an image file if --image is set
func parseInput(cmd *cobra.Command, arg string) (common.StoreInput, error) {
	if image, _ := cmd.Flags().GetBool("image"); !image {
		return common.InputRawString(arg), nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	return common.InputImage(b), nil
}

func parseInputs(cmd *cobra.Command, args []string) ([]common.StoreInput, error) {
	inputs := make([]common.StoreInput, 0, len(args))
	for _, arg := range args {
		in, err := parseInput(cmd, arg)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func parsePreprocess(cmd *cobra.Command) (common.PreprocessAction, error) {
	name, _ := cmd.Flags().GetString("preprocess")
	for _, a := range []common.PreprocessAction{common.NoPreprocessing, common.ModelPreprocessing} {
		if a.String() == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown preprocess action %q", name)
}
