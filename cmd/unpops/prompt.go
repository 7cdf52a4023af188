package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/japaniel/unpops/pkg/pipeline"
	"github.com/japaniel/unpops/pkg/snapshot"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#32936F")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7A8FE1"))
)

// describePull renders the last pull date with its age, or "never".
func describePull(st pipeline.Status) string {
	if !st.HasSnapshot {
		return st.LastPulled()
	}
	return fmt.Sprintf("%s (%s)", st.LastPulled(), humanize.Time(st.LastModified))
}

func printWelcome(out io.Writer, st pipeline.Status) {
	lines := []string{
		titleStyle.Render("Welcome to the Anki Country Population (ankUNpops) deck generator"),
		"The last time data was pulled from the UN Population Division database was " + describePull(st) + ".",
		`The UN releases their report "World Population Prospects" generally every 2 years.`,
	}
	fmt.Fprintln(out, bannerStyle.Render(strings.Join(lines, "\n")))
	fmt.Fprintln(out, "\nBefore your Anki deck is created, you must choose the data source.")
}

// promptSource asks which data source to use. The local option is only
// offered when a local copy exists.
func promptSource(st pipeline.Status) (pipeline.Source, error) {
	var options []huh.Option[string]
	if st.HasSnapshot {
		options = append(options, huh.NewOption("1. Generate Anki deck with existing data (stored locally)", "cache"))
	}
	options = append(options, huh.NewOption("2. Use data directly from the UN Population Division database (this will also update the local copy)", "live"))

	var choice string
	err := huh.NewSelect[string]().
		Title("Would you like to:").
		Options(options...).
		Value(&choice).
		Run()
	if err != nil {
		return 0, err
	}
	return pipeline.ParseSource(choice)
}

// runInteractive is the default command: banner, source choice, deck.
func (a *app) runInteractive(cmd *cobra.Command, source string) error {
	out := cmd.OutOrStdout()
	store := snapshot.NewStore(a.cfg.Data.Dir, a.cfg.Data.Dataset)
	st := (&pipeline.Pipeline{Store: store, Logger: a.log}).Status()
	printWelcome(out, st)

	var src pipeline.Source
	switch {
	case source != "":
		s, err := pipeline.ParseSource(source)
		if err != nil {
			return err
		}
		src = s
	case a.isTerminal():
		s, err := a.promptSource(st)
		if err != nil {
			return err
		}
		src = s
	default:
		return fmt.Errorf("not running in a terminal; pass --source cache or --source live")
	}
	return a.generate(cmd.Context(), out, src, generateOptions{})
}
