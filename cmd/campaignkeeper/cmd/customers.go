package cmd

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/solatis/campaignkeeper/internal/core/db"
)

// importChunk bounds customers per upsert transaction.
const importChunk = 500

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Manage the customer population",
}

var customersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert customers from a JSON array of {id, attributes}",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if err := requireDBURL(); err != nil {
			return err
		}
		customers, err := readCustomers(path)
		if err != nil {
			return err
		}

		database, err := db.Open(dbURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		if err := db.RequireMigrated(database); err != nil {
			return err
		}
		queries, err := db.LoadQueries(database)
		if err != nil {
			return err
		}

		store := db.NewCustomerStore(queries)
		ctx := context.Background()
		for _, chunk := range lo.Chunk(customers, importChunk) {
			if err := store.Upsert(ctx, chunk); err != nil {
				return err
			}
		}
		total, err := store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d customers (%d total)\n", len(customers), total)
		return nil
	},
}

func init() {
	customersImportCmd.Flags().String("file", "", "customers JSON file (required)")
	_ = customersImportCmd.MarkFlagRequired("file")
	customersCmd.AddCommand(customersImportCmd)
	rootCmd.AddCommand(customersCmd)
}
