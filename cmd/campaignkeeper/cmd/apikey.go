package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/campaignkeeper/internal/core/auth"
	"github.com/solatis/campaignkeeper/internal/core/config"
	"github.com/solatis/campaignkeeper/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Issue and revoke campaign API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a key; the plaintext is printed once and never stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		secretID, _ := cmd.Flags().GetString("secret-id")
		name, _ := cmd.Flags().GetString("name")

		a, closeDB, err := openAuthenticator()
		if err != nil {
			return err
		}
		defer closeDB()

		key, id, err := a.IssueKey(context.Background(), secretID, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "api_key_id: %s\napi_key: %s\n", id, key)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a key by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		a, closeDB, err := openAuthenticator()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := a.RevokeKey(context.Background(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
		return nil
	},
}

func openAuthenticator() (*auth.Authenticator, func(), error) {
	if err := requireDBURL(); err != nil {
		return nil, nil, err
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RequireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return auth.NewAuthenticator(secrets, queries, logger), func() { database.Close() }, nil
}

func init() {
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret id from CK_HMAC_SECRET (required)")
	apikeyCreateCmd.Flags().String("name", "", "key name (required)")
	_ = apikeyCreateCmd.MarkFlagRequired("secret-id")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
	apikeyRevokeCmd.Flags().String("id", "", "api key id (required)")
	_ = apikeyRevokeCmd.MarkFlagRequired("id")

	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}
