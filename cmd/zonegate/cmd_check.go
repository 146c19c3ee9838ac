package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zonegate/internal/decision"
)

var (
	checkPlate string
	checkZone  string
	checkDate  string
	checkJSON  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Decide zone access for one vehicle without a language model",
	Long: `Runs the deterministic decision procedure for a plate and a zone id from
the configured catalog. No language model is involved.

Example:
  zonegate check --plate AB-123-CD --zone ams_lez_01`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPlate, "plate", "", "Licence plate or car id")
	checkCmd.Flags().StringVar(&checkZone, "zone", "", "Zone id")
	checkCmd.Flags().StringVar(&checkDate, "date", "", "Evaluate as of this date (YYYY-MM-DD, default today)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the decision as JSON")
	_ = checkCmd.MarkFlagRequired("plate")
	_ = checkCmd.MarkFlagRequired("zone")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := openSources(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	car, err := src.vehicles.FindCar(ctx, checkPlate)
	if err != nil {
		return err
	}
	if car == nil {
		return fmt.Errorf("unknown vehicle %q", checkPlate)
	}
	policy, err := src.policies.GetPolicy(ctx, checkZone)
	if err != nil {
		return err
	}
	if policy == nil {
		return fmt.Errorf("no policy published for zone %q", checkZone)
	}

	var opts []decision.Option
	if checkDate != "" {
		at, err := time.Parse("2006-01-02", checkDate)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		opts = append(opts, decision.WithClock(func() time.Time { return at }))
	}
	engine, err := decision.NewEngine(opts...)
	if err != nil {
		return err
	}
	d := engine.Decide(*car, *policy)

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	fmt.Fprintf(out, "%s in %s\n", car.Label(), policy.ZoneName)
	fmt.Fprintln(out, allowedStyles[d.Allowed].Render(fmt.Sprintf("%s (%s)", verdictLabel(d.Allowed), d.ReasonCode)))
	for _, f := range d.Factors {
		fmt.Fprintln(out, "  - "+f)
	}
	if len(d.MissingFields) > 0 {
		fmt.Fprintln(out, mutedStyle.Render("missing: "+strings.Join(d.MissingFields, ", ")))
	}
	for _, a := range d.NextActions {
		fmt.Fprintln(out, optionStyle.Render("-> "+a))
	}
	return decision.RequireFields(*car, *policy)
}

