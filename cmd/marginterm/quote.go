package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/format"
	"github.com/alanyoungcy/marginterm/internal/swap"
)

type quoteFlags struct {
	in, srcReserve, dstReserve string
	srcDecimals, dstDecimals   int32
	curve                      string
	fee, slippage              float64
	amp                        uint64
}

func newQuoteCmd() *cobra.Command {
	var f quoteFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given pool reserves",
		Long: `Quote a swap offline against the given reserves, without touching the chain.

Examples:
  marginterm quote --in 10 --src-reserve 1000 --dst-reserve 25000
  marginterm quote --in 500 --src-reserve 1e6 --dst-reserve 1e6 --curve stable --amp 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := runQuote(f)
			if err != nil {
				return err
			}
			return printQuote(cmd, q)
		},
	}
	cmd.Flags().StringVar(&f.in, "in", "", "input amount in whole tokens")
	cmd.Flags().StringVar(&f.srcReserve, "src-reserve", "", "source token reserve in whole tokens")
	cmd.Flags().StringVar(&f.dstReserve, "dst-reserve", "", "destination token reserve in whole tokens")
	cmd.Flags().Int32Var(&f.srcDecimals, "src-decimals", 9, "source token decimals")
	cmd.Flags().Int32Var(&f.dstDecimals, "dst-decimals", 6, "destination token decimals")
	cmd.Flags().StringVar(&f.curve, "curve", string(domain.CurveConstantProduct), "pricing curve: constant_product or stable")
	cmd.Flags().Float64Var(&f.fee, "fee", 0.003, "trading fee as a fraction")
	cmd.Flags().Float64Var(&f.slippage, "slippage", 0.005, "slippage tolerance as a fraction")
	cmd.Flags().Uint64Var(&f.amp, "amp", 100, "amplification for the stable curve")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("src-reserve")
	_ = cmd.MarkFlagRequired("dst-reserve")
	return cmd
}

func runQuote(f quoteFlags) (swap.Quote, error) {
	in, err := domain.ParseTokenAmount(f.in, f.srcDecimals)
	if err != nil {
		return swap.Quote{}, fmt.Errorf("quote: --in: %w", err)
	}
	src, err := domain.ParseTokenAmount(f.srcReserve, f.srcDecimals)
	if err != nil {
		return swap.Quote{}, fmt.Errorf("quote: --src-reserve: %w", err)
	}
	dst, err := domain.ParseTokenAmount(f.dstReserve, f.dstDecimals)
	if err != nil {
		return swap.Quote{}, fmt.Errorf("quote: --dst-reserve: %w", err)
	}
	if f.slippage < 0 || f.slippage >= 1 {
		return swap.Quote{}, fmt.Errorf("quote: --slippage must be in [0, 1)")
	}
	return swap.Compute(swap.Params{
		Input:         in,
		SourceReserve: src,
		DestReserve:   dst,
		Curve:         domain.SwapCurve(f.curve),
		FeeRate:       decimal.NewFromFloat(f.fee),
		Slippage:      decimal.NewFromFloat(f.slippage),
		Amplification: f.amp,
	})
}

func printQuote(cmd *cobra.Command, q swap.Quote) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	f, err := format.New(language.English, "USD", nil)
	if err != nil {
		return err
	}
	pct := f.Percent(q.PriceImpact, 2)
	impact := color.GreenString(pct)
	switch size := math.Abs(q.PriceImpact); {
	case size >= 0.05:
		impact = color.RedString(pct)
	case size >= 0.01:
		impact = color.YellowString(pct)
	}
	fmt.Fprintf(out, "\n  Output:        %s\n", color.CyanString(q.Output.String()))
	fmt.Fprintf(out, "  Minimum out:   %s\n", q.MinOutput.String())
	fmt.Fprintf(out, "  Fee:           %s\n", q.Fee.String())
	fmt.Fprintf(out, "  Price impact:  %s\n\n", impact)
	return nil
}
