package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"recurring-donations/internal/audit"
	pledgepostgres "recurring-donations/internal/pledges/infrastructure/postgres"
	receiptpostgres "recurring-donations/internal/receipts/infrastructure/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the postgres schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if a.db == nil {
		return fmt.Errorf("migrate: postgres storage required")
	}

	schemas := []struct {
		name string
		ddl  string
	}{
		{"pledges", pledgepostgres.Schema},
		{"receipts", receiptpostgres.Schema},
		{"audit", audit.Schema},
	}
	for _, schema := range schemas {
		if _, err := a.db.ExecContext(cmd.Context(), schema.ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", schema.name, err)
		}
		a.logger.WithField("schema", schema.name).Info("schema applied")
	}
	return nil
}
