// Command unpops builds an Anki deck of country populations from the UN
// Population Division Data Portal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/japaniel/unpops/pkg/cards"
	"github.com/japaniel/unpops/pkg/config"
	"github.com/japaniel/unpops/pkg/logger"
	"github.com/japaniel/unpops/pkg/pipeline"
	"github.com/japaniel/unpops/pkg/sigfig"
	"github.com/japaniel/unpops/pkg/snapshot"
	"github.com/japaniel/unpops/pkg/territory"
	"github.com/japaniel/unpops/pkg/unapi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newApp()
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

type globalFlags struct {
	ConfigFile string
	DataDir    string
	BaseURL    string
	Token      string
	LogLevel   string
}

// app carries what the commands share. isTerminal and promptSource are
// swapped out in tests.
type app struct {
	flags globalFlags
	cfg   *config.Config
	log   *slog.Logger

	isTerminal   func() bool
	promptSource func(st pipeline.Status) (pipeline.Source, error)
}

func newApp() *app {
	return &app{
		isTerminal:   func() bool { return term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd()) },
		promptSource: promptSource,
	}
}

func newRootCmd(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:           "unpops",
		Short:         "Generate an Anki deck of country populations from UN data",
		Long:          "unpops pulls current population estimates from the UN Population Division Data Portal\nand writes them as an Anki deck (ankUNpops.apkg).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInteractive(cmd, source)
		},
	}

	cmd.PersistentFlags().StringVar(&a.flags.ConfigFile, "config", "", "Config file (default ./unpops.yaml)")
	cmd.PersistentFlags().StringVar(&a.flags.DataDir, "data-dir", "", "Directory of the local data copy")
	cmd.PersistentFlags().StringVar(&a.flags.BaseURL, "base-url", "", "UN Data Portal API base URL")
	cmd.PersistentFlags().StringVar(&a.flags.Token, "token", "", "UN Data Portal API token")
	cmd.PersistentFlags().StringVar(&a.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&source, "source", "", "Data source: cache or live (skips the prompt)")

	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newFetchCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newIndicatorsCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	return cmd
}

// setup loads configuration, letting explicitly set flags win, and installs
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	overrides := map[string]any{}
	flagKeys := []struct {
		flag, key string
		value     *string
	}{
		{"data-dir", "data.dir", &a.flags.DataDir},
		{"base-url", "api.base_url", &a.flags.BaseURL},
		{"token", "api.token", &a.flags.Token},
		{"log-level", "log.level", &a.flags.LogLevel},
	}
	for _, f := range flagKeys {
		if cmd.Flags().Changed(f.flag) {
			overrides[f.key] = *f.value
		}
	}

	cfg, err := config.Load(config.Options{File: a.flags.ConfigFile, Overrides: overrides})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.SetupWriter(cmd.ErrOrStderr(), logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return nil
}

func (a *app) client(out io.Writer) *unapi.Client {
	return unapi.NewClient(a.cfg.API.BaseURL,
		unapi.WithHTTPClient(&http.Client{Timeout: a.cfg.API.Timeout}),
		unapi.WithToken(a.cfg.API.Token),
		unapi.WithMaxPages(a.cfg.API.MaxPages),
		unapi.WithLogger(a.log),
		unapi.WithProgress(func(page int) {
			fmt.Fprintf(out, "  fetched page %d\n", page)
		}),
	)
}

func (a *app) pipeline(out io.Writer) (*pipeline.Pipeline, error) {
	filter := territory.Default()
	if path := a.cfg.Filter.DenylistFile; path != "" {
		d, err := territory.Load(path)
		if err != nil {
			return nil, err
		}
		filter = d
	}
	return &pipeline.Pipeline{
		API:    a.client(out),
		Filter: filter,
		Store:  snapshot.NewStore(a.cfg.Data.Dir, a.cfg.Data.Dataset),
		Query: unapi.Query{
			IndicatorID: a.cfg.Query.Indicator,
			StartYear:   a.cfg.Query.StartYear,
			EndYear:     a.cfg.Query.EndYear,
		},
		Logger: a.log,
	}, nil
}

func (a *app) generator() *cards.Generator {
	return &cards.Generator{
		Policy: sigfig.Policy{
			Sig:             a.cfg.Rounding.SigFigs,
			LeadingOneAbove: a.cfg.Rounding.LeadingOneAbove,
		},
		IncludeLocationID: a.cfg.Deck.IncludeLocationID,
		Tags:              a.cfg.Deck.Tags,
	}
}

// describeError adds a hint to errors a user can act on.
func describeError(err error) string {
	var te *unapi.TransportError
	switch {
	case errors.As(err, &te) && (te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden):
		return err.Error() + "\n  The Data Portal requires an API token: set UNPOPS_API_TOKEN or pass --token."
	case errors.Is(err, unapi.ErrTransport):
		return err.Error() + "\n  Check your network connection, or use the local copy with --source cache."
	case errors.Is(err, sigfig.ErrNumericDomain):
		return err.Error() + "\n  The data contains a value that cannot be rounded; no deck was written."
	}
	return err.Error()
}
