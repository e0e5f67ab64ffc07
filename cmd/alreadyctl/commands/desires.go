package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alreadydone/alreadydone-server/internal/service"
)

var jsonOutput bool

var desiresCmd = &cobra.Command{
	Use:   "desires",
	Short: "Inspect and seed the desire catalog",
}

var desiresSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create any missing desire categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(ctx context.Context, catalog *service.CatalogService) error {
			desires, err := catalog.SeedDesires(ctx, service.DefaultDesireNames)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d desire categories present\n", len(desires))
			return nil
		})
	},
}

var desiresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List desire categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(ctx context.Context, catalog *service.CatalogService) error {
			desires, err := catalog.ListDesires(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(desires)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tNAME")
			for _, d := range desires {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Category, d.Name)
			}
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(desiresCmd)
	desiresCmd.AddCommand(desiresSeedCmd, desiresListCmd)

	desiresListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func withCatalog(ctx context.Context, fn func(context.Context, *service.CatalogService) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, service.NewCatalogService(st, log.Logger))
}
