package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/campaignkeeper/internal/core/config"
	"github.com/solatis/campaignkeeper/internal/core/db"
	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/segment"
	"github.com/solatis/campaignkeeper/internal/types"
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Work with segment rule trees",
}

var segmentCompileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Validate a rule tree and optionally count its audience",
	Long: `Compiles a rule tree (JSON) against the configured field catalog and
prints every validation error, or the description, cost and referenced
fields. With --population (JSON array of customers) or --db-url, also
counts matching customers and lists the first --limit ids.`,
	RunE: runSegmentCompile,
}

func init() {
	segmentCompileCmd.Flags().String("tree", "", "rule tree JSON file (required)")
	segmentCompileCmd.Flags().String("population", "", "customers JSON file")
	segmentCompileCmd.Flags().Int("limit", 10, "matching customer ids to list")
	segmentCompileCmd.Flags().String("sort", "", "sort field for listed ids (prefix - for descending)")
	_ = segmentCompileCmd.MarkFlagRequired("tree")

	segmentCmd.AddCommand(segmentCompileCmd)
	rootCmd.AddCommand(segmentCmd)
}

// errInvalidTree makes the command exit non-zero after printing errors.
var errInvalidTree = errors.New("rule tree is invalid")

func runSegmentCompile(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	treePath, _ := cmd.Flags().GetString("tree")
	popPath, _ := cmd.Flags().GetString("population")
	limit, _ := cmd.Flags().GetInt("limit")
	sortBy, _ := cmd.Flags().GetString("sort")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	engine, err := cfg.NewEngine(logger)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(treePath)
	if err != nil {
		return err
	}
	tree, err := types.DecodeNode(raw)
	if err != nil {
		return err
	}

	seg, err := engine.Compile(tree)
	var verrs rules.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprintf(out, "%d validation error(s):\n", len(verrs))
		for _, v := range verrs {
			fmt.Fprintf(out, "  %s\n", v.Error())
		}
		return errInvalidTree
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "description: %s\n", seg.Description)
	fmt.Fprintf(out, "cost: %d\n", seg.Cost)
	fmt.Fprintf(out, "fields: %s\n", strings.Join(seg.Fields, ", "))

	pop, closePop, err := openPopulation(popPath)
	if err != nil || pop == nil {
		return err
	}
	defer closePop()

	sortKey, err := engine.Catalog().ParseSortKey(sortBy)
	if err != nil {
		return err
	}

	ctx := context.Background()
	evaluator := segment.NewEvaluator(cfg.Segmentation.PopulationBatchSize, logger)
	count, err := evaluator.Count(ctx, seg.Predicate, pop)
	if err != nil {
		return err
	}
	ids, err := evaluator.Select(ctx, seg.Predicate, pop, segment.SelectOptions{Limit: limit, SortKey: sortKey})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "matches: %d\n", count)
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

// openPopulation loads customers from a JSON file, or from the database when
// --db-url is set. Returns a nil population when neither is given.
func openPopulation(path string) (segment.Population, func(), error) {
	if path != "" {
		customers, err := readCustomers(path)
		if err != nil {
			return nil, nil, err
		}
		return segment.SlicePopulation(customers), func() {}, nil
	}
	if dbURL == "" {
		return nil, func() {}, nil
	}

	database, err := db.Open(dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return db.NewCustomerStore(queries), func() { database.Close() }, nil
}

func readCustomers(path string) ([]types.Customer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var customers []types.Customer
	if err := json.Unmarshal(raw, &customers); err != nil {
		return nil, fmt.Errorf("invalid customers file %s: %w", path, err)
	}
	return customers, nil
}
