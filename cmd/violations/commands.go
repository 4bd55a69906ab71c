package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/traffiq/backend/internal/violations"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func newPeriodsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List loaded periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ctx.load(cmd)
			if err != nil {
				return err
			}
			periods := snap.Periods()
			if ctx.jsonOutput {
				return writeJSON(cmd, periods)
			}

			rows := make([][]string, len(periods))
			for i, p := range periods {
				rows[i] = []string{strconv.Itoa(p.Index), p.Label, strconv.FormatInt(p.Total, 10)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Period", "Violations"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newPatternCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pattern <period>",
		Short: "Show a period's violation mix, largest first",
		Long:  "Show a period's violation mix. The period is an index, a month such as 2023-01, or \"overall\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ctx.load(cmd)
			if err != nil {
				return err
			}

			var bars []violations.Bar
			if args[0] == "overall" {
				bars = snap.OverallPattern()
			} else {
				index, err := snap.Resolve(args[0])
				if err != nil {
					return err
				}
				if bars, err = snap.Pattern(index); err != nil {
					return err
				}
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, bars)
			}

			rows := make([][]string, len(bars))
			for i, b := range bars {
				rows[i] = []string{b.Label, percent(b.Percent)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Category", "Share"}, rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newSimilarCommand(ctx *commandContext) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar <period>",
		Short: "Rank the periods whose mix is closest to a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ctx.load(cmd)
			if err != nil {
				return err
			}
			index, err := snap.Resolve(args[0])
			if err != nil {
				return err
			}
			matches, err := snap.Similar(index, k)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, matches)
			}

			rows := make([][]string, len(matches))
			for i, m := range matches {
				rows[i] = []string{strconv.Itoa(i + 1), m.Label, percent(m.Percent)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Most similar to %s\n", snap.Periods()[index].Label)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Rank", "Period", "Similarity"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", violations.DefaultTopK, "Number of periods to show")
	return cmd
}

func newMatrixCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the pairwise similarity matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ctx.load(cmd)
			if err != nil {
				return err
			}
			m := snap.Matrix()
			if ctx.jsonOutput {
				return writeJSON(cmd, m)
			}

			periods := snap.Periods()
			headers := make([]string, len(periods)+1)
			aligns := make([]columnAlignment, len(periods)+1)
			for i, p := range periods {
				headers[i+1] = p.Period.Format("2006-01")
				aligns[i+1] = alignRight
			}

			rows := make([][]string, m.Len())
			for i := range rows {
				row := make([]string, m.Len()+1)
				row[0] = periods[i].Period.Format("2006-01")
				for j := 0; j < m.Len(); j++ {
					row[j+1] = strconv.FormatFloat(m.At(i, j), 'f', 3, 64)
				}
				rows[i] = row
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}

func newTrendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trend <category>",
		Short: "Show one category per month, one row per year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ctx.load(cmd)
			if err != nil {
				return err
			}
			trend, err := snap.Trend(args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, trend)
			}

			headers := []string{"Year", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
			aligns := make([]columnAlignment, len(headers))
			for i := range aligns {
				aligns[i] = alignRight
			}

			rows := make([][]string, len(trend.Series))
			for i, s := range trend.Series {
				row := []string{strconv.Itoa(s.Year)}
				for _, v := range s.Months {
					if v == nil {
						row = append(row, "-")
						continue
					}
					row = append(row, strconv.FormatInt(*v, 10))
				}
				rows[i] = row
			}
			fmt.Fprintln(cmd.OutOrStdout(), trend.Category.Label)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}
