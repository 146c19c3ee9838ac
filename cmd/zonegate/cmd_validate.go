package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zonegate/internal/catalog"
	"zonegate/internal/decision"
	"zonegate/internal/dialogue"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the transition table, config and catalog dataset",
	Long: `Validates everything that can be checked without a language model:

  - the stage transition table (known stages, no cycles, every path ends)
  - the configuration file
  - the catalog dataset (unique ids, policies bound to known zones)
  - that every policy's rules evaluate for every car in the dataset`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	table := dialogue.DefaultTransitions()
	if err := dialogue.ValidateTransitions(table); err != nil {
		return err
	}
	paths := table.Paths(dialogue.StageExtractIntent)
	fmt.Fprintf(out, "transition table ok: %d path(s) from %s\n", len(paths), dialogue.StageExtractIntent)

	// Config was loaded and validated in PersistentPreRunE.
	fmt.Fprintf(out, "config ok: catalog driver %s\n", cfg.Catalog.Driver)

	ds, err := catalog.LoadDataset(cfg.Catalog.DatasetPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "dataset ok: %d fleet(s), %d zone(s), %d polic(ies)\n", len(ds.Fleets), len(ds.Zones), len(ds.Policies))

	engine, err := decision.NewEngine()
	if err != nil {
		return err
	}
	checked := 0
	for _, fleet := range ds.FleetNames() {
		for _, car := range ds.Fleets[fleet] {
			for _, p := range ds.Policies {
				if err := decision.RequireFields(car, p); err != nil {
					fmt.Fprintf(out, "  note: %s for %s\n", err, p.ZoneID)
					continue
				}
				if _, err := engine.BannedBy(car, p); err != nil {
					return fmt.Errorf("policy %s does not evaluate for %s: %w", p.ZoneID, car.ID, err)
				}
				checked++
			}
		}
	}
	fmt.Fprintf(out, "rules ok: %d decision(s) evaluated\n", checked)
	return nil
}
