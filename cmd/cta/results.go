package main

import (
	"context"
	"fmt"

	"github.com/newthinker/cta/internal/storage/archive"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse archived backtest results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list [strategy]",
	Short: "List archived results, optionally for one strategy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show an archived result",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsShow,
}

var resultsShowTrades bool

func init() {
	resultsShowCmd.Flags().BoolVar(&resultsShowTrades, "trades", false, "Print every fill")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	rootCmd.AddCommand(resultsCmd)
}

func openArchive() (archive.Storage, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	defer log.Sync()

	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive is disabled in config")
	}
	return archive.New(cfg.Archive.Config)
}

func runResultsList(cmd *cobra.Command, args []string) error {
	st, err := openArchive()
	if err != nil {
		return err
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	keys, err := archive.ListResults(context.Background(), st, name)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	st, err := openArchive()
	if err != nil {
		return err
	}

	result, err := archive.LoadResult(context.Background(), st, args[0])
	if err != nil {
		return err
	}
	printResult(result, resultsShowTrades)
	return nil
}
