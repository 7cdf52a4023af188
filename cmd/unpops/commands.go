package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/japaniel/unpops/pkg/anki"
	"github.com/japaniel/unpops/pkg/pipeline"
	"github.com/japaniel/unpops/pkg/snapshot"
)

type generateOptions struct {
	source string
	year   int
	output string
}

func newGenerateCmd(a *app) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the deck from the local copy or live UN data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := pipeline.ParseSource(opts.source)
			if err != nil {
				return err
			}
			return a.generate(cmd.Context(), cmd.OutOrStdout(), src, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "cache", "Data source: cache or live")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Year written on the cards (default: the data's year)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Deck file to write (default from config, ankUNpops.apkg)")
	return cmd
}

func (a *app) generate(ctx context.Context, out io.Writer, src pipeline.Source, opts generateOptions) error {
	p, err := a.pipeline(out)
	if err != nil {
		return err
	}

	if src == pipeline.SourceLive {
		fmt.Fprintf(out, "Fetching current population data from %s...\n", a.cfg.API.BaseURL)
	}
	snap, err := p.Load(ctx, src)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d countries (%s).\n", len(snap.Observations), src)
	if src == pipeline.SourceLive {
		fmt.Fprintf(out, "Local copy updated at %s\n", p.Store.Path())
	}

	output := opts.output
	if output == "" {
		output = a.cfg.Deck.Output
	}
	res, err := p.Export(ctx, snap, pipeline.ExportOptions{
		Output:    output,
		Year:      opts.year,
		Generator: a.generator(),
		Deck:      anki.Deck{ID: a.cfg.Deck.ID, Name: a.cfg.Deck.Name},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deck written to %s (%d notes).\n", res.Path, res.Notes)
	return nil
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the local copy from the UN Data Portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p, err := a.pipeline(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Fetching current population data from %s...\n", a.cfg.API.BaseURL)
			snap, err := p.FetchLive(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %d countries to %s\n", len(snap.Observations), p.Store.Path())
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show when the local copy was last refreshed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store := snapshot.NewStore(a.cfg.Data.Dir, a.cfg.Data.Dataset)
			st := (&pipeline.Pipeline{Store: store, Logger: a.log}).Status()
			fmt.Fprintf(out, "Local copy:   %s\n", st.SnapshotPath)
			fmt.Fprintf(out, "Last pulled:  %s\n", describePull(st))
			if !st.HasSnapshot {
				return nil
			}
			snap, err := store.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Countries:    %d\n", len(snap.Observations))
			fmt.Fprintf(out, "Years:        %s\n", joinYears(snap.Years()))
			return nil
		},
	}
}

func newIndicatorsCmd(a *app) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "List the indicators of a Data Portal topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			inds, err := a.client(io.Discard).Indicators(cmd.Context(), topic)
			if err != nil {
				return err
			}
			for _, ind := range inds {
				fmt.Fprintf(out, "%6d  %-22s %s\n", ind.ID, ind.ShortName, ind.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "Pop", "Topic short name")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Fetch any API path and print its records",
		Long:  "Fetch any API path (following pagination) and print the records as JSON.\nWith --jq the record array is filtered through a jq expression.",
		Example: `  unpops inspect /locations/ --jq '.[] | select(.name == "France")'
  unpops inspect /topics/ --jq '.[].shortName'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query *gojq.Query
			if expr != "" {
				q, err := gojq.Parse(expr)
				if err != nil {
					return fmt.Errorf("parse jq expression: %w", err)
				}
				query = q
			}

			raw, err := a.client(cmd.ErrOrStderr()).Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records := make([]any, len(raw))
			for i, r := range raw {
				if err := json.Unmarshal(r, &records[i]); err != nil {
					return fmt.Errorf("decode record %d: %w", i, err)
				}
			}

			out := cmd.OutOrStdout()
			if query == nil {
				return printJSON(out, records)
			}
			return runJQ(cmd.Context(), out, query, records)
		},
	}
	cmd.Flags().StringVar(&expr, "jq", "", "jq expression applied to the record array")
	return cmd
}

func runJQ(ctx context.Context, out io.Writer, query *gojq.Query, input []any) error {
	iter := query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return fmt.Errorf("jq: %w", err)
		}
		if err := printJSON(out, v); err != nil {
			return err
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
