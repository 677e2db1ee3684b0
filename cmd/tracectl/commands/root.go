package commands

import (
	"fmt"
	"os"

	"fruittrace/cmd/tracectl/output"
	"fruittrace/internal/config"
	"fruittrace/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type globalFlags struct {
	envFile    string
	configFile string
	dbDriver   string
	dbDSN      string
	jsonOutput bool
}

// NewRootCmd builds the tracectl command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "tracectl",
		Short: "FruitTrace operator tool",
		Long: `tracectl manages a FruitTrace back office database.

Commands:
  migrate   - Create or update the schema
  seed      - Insert a demo farm and certification
  user      - Manage back-office accounts
  requests  - Inspect the approval ledger`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.envFile, "env", "configs/.env", "Path to a .env file")
	root.PersistentFlags().StringVar(&g.configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML config overlay")
	root.PersistentFlags().StringVar(&g.dbDriver, "db-driver", "", "Override the database driver (postgres or sqlite)")
	root.PersistentFlags().StringVar(&g.dbDSN, "db", "", "Override the database DSN")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(newMigrateCmd(g), newSeedCmd(g), newUserCmd(g), newRequestsCmd(g))
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		output.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.envFile, g.configFile)
	if g.dbDriver != "" || g.dbDSN != "" {
		if g.dbDriver != "" {
			cfg.DB.Driver = g.dbDriver
		}
		if g.dbDSN != "" {
			cfg.DB.DSN = g.dbDSN
		}
		err = cfg.Validate()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) open() (*gorm.DB, config.Config, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, cfg, err
	}
	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		return nil, cfg, fmt.Errorf("connect: %w", err)
	}
	return db, cfg, nil
}
