package main

import (
	"context"
	"fmt"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/infrastructure/database"

	"github.com/spf13/cobra"
)

func init() {
	schemaCmd.Flags().Bool("print", false, "print the schema instead of applying it")
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the chat tables and change trigger in $DB_URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if only, _ := cmd.Flags().GetBool("print"); only {
			fmt.Fprint(cmd.OutOrStdout(), database.Schema())
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireDB(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		pool, err := database.Connect(ctx, cfg.DBURL, database.WithApplicationName("chatsync-schema"))
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}
