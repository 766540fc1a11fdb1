package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the audit journal",
	Long: `Query and display audit records from the SQLite journal.

Subcommands:
  transitions - Position lifecycle history for a symbol
  actions     - Intent outcomes for a symbol
  drift       - Reconciliation drift across symbols
  modes       - Verified/unverified history for a symbol

Examples:
  perptrader journal transitions BTC-USDT --db perptrader.db
  perptrader journal drift --db perptrader.db --since 24h`,
}

var (
	journalDBPath string
	journalSince  string
	journalLimit  int
)

var journalTransitionsCmd = &cobra.Command{
	Use:   "transitions <symbol>",
	Short: "Position lifecycle history for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTransitions,
}

var journalActionsCmd = &cobra.Command{
	Use:   "actions <symbol>",
	Short: "Intent outcomes for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalActions,
}

var journalDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Reconciliation drift across symbols",
	Args:  cobra.NoArgs,
	RunE:  runJournalDrift,
}

var journalModesCmd = &cobra.Command{
	Use:   "modes <symbol>",
	Short: "Verified/unverified history for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalModes,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTransitionsCmd, journalActionsCmd, journalDriftCmd, journalModesCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "perptrader.db", "path to SQLite journal")
	journalCmd.PersistentFlags().StringVar(&journalSince, "since", "24h", "look-back window (e.g. 1h, 24h, 168h)")
	journalTransitionsCmd.Flags().IntVar(&journalLimit, "limit", 0, "max rows (0 for all)")
}

func openJournalDB() (*journal.SQLite, error) {
	j, err := journal.OpenSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", journalDBPath, err)
	}
	return j, nil
}

func sinceTime() (time.Time, error) {
	d, err := time.ParseDuration(journalSince)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since: %w", err)
	}
	return time.Now().Add(-d), nil
}

func runJournalTransitions(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Transitions(args[0], journalLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no transitions recorded")
		return nil
	}
	for _, r := range records {
		from := r.From
		if from == "" {
			from = "-"
		}
		fmt.Printf("%s  %-10s %-8s -> %-8s units=%-10.4f %s\n",
			r.Time.Format(time.RFC3339), r.Symbol, from, r.To, r.Units, r.Reason)
	}
	return nil
}

func runJournalActions(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	since, err := sinceTime()
	if err != nil {
		return err
	}
	records, err := j.Actions(args[0], since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no actions recorded in window")
		return nil
	}
	for _, r := range records {
		flags := ""
		if r.Protective {
			flags += " [protective]"
		}
		if r.Degraded {
			flags += " [degraded]"
		}
		fmt.Printf("%s  %-10s %-9s %-10s %s%s %s\n",
			r.Time.Format(time.RFC3339), r.Symbol, r.Action, r.Outcome, r.Origin, flags, r.Detail)
	}
	return nil
}

func runJournalDrift(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	since, err := sinceTime()
	if err != nil {
		return err
	}
	records, err := j.DriftSince(since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no drift recorded in window")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-10s %-14s local=%-12.6f remote=%-12.6f %s\n",
			r.Time.Format(time.RFC3339), r.Symbol, r.Field, r.Local, r.Remote, r.Resolution)
	}
	return nil
}

func runJournalModes(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Modes(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no mode changes recorded")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-10s %-11s %s\n", r.Time.Format(time.RFC3339), r.Symbol, r.Mode, r.Reason)
	}
	return nil
}
