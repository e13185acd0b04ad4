package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/risk"
)

func newRiskCmd() *cobra.Command {
	t := risk.DefaultThresholds
	cmd := &cobra.Command{
		Use:   "risk <indicator>",
		Short: "Classify a risk indicator value",
		Long: `Classify a risk indicator into its band.

Examples:
  marginterm risk 0.42
  marginterm risk 0.85 --warning 0.75`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("risk: %q is not a number", args[0])
			}
			if !(t.Warning < t.Critical && t.Critical <= t.Liquidation) {
				return fmt.Errorf("risk: thresholds must satisfy warning < critical <= liquidation")
			}
			level := t.Classify(v)
			if jsonOutput(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"indicator": v,
					"level":     level,
				})
			}
			printSuccess(cmd, "Risk level: %s", colorLevel(level))
			return nil
		},
	}
	cmd.Flags().Float64Var(&t.Warning, "warning", t.Warning, "warning threshold")
	cmd.Flags().Float64Var(&t.Critical, "critical", t.Critical, "critical threshold")
	cmd.Flags().Float64Var(&t.Liquidation, "liquidation", t.Liquidation, "liquidation threshold")
	return cmd
}

func colorLevel(level domain.RiskLevel) string {
	switch level {
	case domain.RiskHigh:
		return color.RedString(string(level))
	case domain.RiskModerate:
		return color.YellowString(string(level))
	default:
		return color.GreenString(string(level))
	}
}
