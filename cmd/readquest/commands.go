package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"readquest/core"
	"readquest/progression"
	"readquest/rules"
)

func newRootCmd() *cobra.Command {
	var rulesPath string
	root := &cobra.Command{
		Use:           "readquest",
		Short:         "Inspect reading reward rules and simulate progression",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule table YAML file (default: built-in tables)")

	engine := func() (*progression.Engine, error) {
		tables, err := rules.LoadOrDefault(rulesPath)
		if err != nil {
			return nil, err
		}
		return progression.New(tables), nil
	}

	root.AddCommand(newRulesCmd(&rulesPath), newLevelCmd(engine), newSimulateCmd(engine))
	return root
}

func newRulesCmd(rulesPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate or print rule tables",
	}

	validate := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a rule table file and report its contents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *rulesPath
			if len(args) == 1 {
				path = args[0]
			}
			tables, err := rules.LoadOrDefault(path)
			if err != nil {
				return err
			}
			source := path
			if source == "" {
				source = "built-in"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (version %s, %d categories, %d skills, %d achievements)\n",
				source, tables.Version, len(tables.Categories), len(tables.Skills), len(tables.Achievements))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective rule tables as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := rules.LoadOrDefault(*rulesPath)
			if err != nil {
				return err
			}
			out, err := rules.Marshal(tables)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.AddCommand(validate, show)
	return cmd
}

func newLevelCmd(engine func() (*progression.Engine, error)) *cobra.Command {
	var (
		exp   int64
		table int
	)
	cmd := &cobra.Command{
		Use:   "level",
		Short: "Resolve total exp to a level, or print the threshold table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if table > 0 {
				fmt.Fprintln(out, "level\trequired_exp")
				for lvl := 1; lvl <= table; lvl++ {
					fmt.Fprintf(out, "%d\t%d\n", lvl, eng.RequiredExpForLevel(lvl))
				}
				return nil
			}
			if exp < 0 {
				return fmt.Errorf("--exp must be >= 0")
			}
			return writeJSON(out, eng.ApplyExpGain(1, 0, exp))
		},
	}
	cmd.Flags().Int64Var(&exp, "exp", 0, "total exp earned from level 1")
	cmd.Flags().IntVar(&table, "table", 0, "print thresholds for the first N levels")
	return cmd
}

func newSimulateCmd(engine func() (*progression.Engine, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run reward calculations on hypothetical input",
	}

	var (
		category  string
		title     string
		from, to  int
		completed int
		level     int
		exp       int64
	)
	progress := &cobra.Command{
		Use:   "progress",
		Short: "Simulate a progress update on a fresh or given reader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine()
			if err != nil {
				return err
			}
			stats := core.NewStats()
			stats.Level = max(level, 1)
			stats.Exp = max(exp, 0)
			res := eng.ApplyProgressReward(progression.ProgressInput{
				Stats:                stats,
				Book:                 core.Book{ID: "simulated", Title: title, Category: core.Category(category), Progress: from},
				PreviousProgress:     from,
				NextProgress:         to,
				CompletedCountBefore: completed,
				CategoryCountsBefore: map[core.Category]int{},
				FinishedTitlesBefore: []string{},
			})
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	progress.Flags().StringVar(&category, "category", string(core.CategoryOther), "book category")
	progress.Flags().StringVar(&title, "title", "", "book title, matched exactly against title rules")
	progress.Flags().IntVar(&from, "from", 0, "previous progress percent")
	progress.Flags().IntVar(&to, "to", 100, "next progress percent")
	progress.Flags().IntVar(&completed, "completed", 0, "books completed before this update")
	progress.Flags().IntVar(&level, "level", 1, "starting level")
	progress.Flags().Int64Var(&exp, "exp", 0, "starting exp within the level")

	var (
		history, daily int
		isNew          bool
	)
	entry := &cobra.Command{
		Use:   "entry",
		Short: "Compute the entry reward for adding a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eng.CalculateEntryReward(history, daily, isNew))
		},
	}
	entry.Flags().IntVar(&history, "history", 1, "1-based index of the book in the reader's history")
	entry.Flags().IntVar(&daily, "daily", 1, "1-based index of the book among today's additions")
	entry.Flags().BoolVar(&isNew, "new", false, "book was never read before")

	cmd.AddCommand(progress, entry)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
