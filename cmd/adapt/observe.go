package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/observer"
)

func newObserveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Fetch fresh data for every query recorded in the observations file",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindLoopFlags(cmd.Flags())
		},
		RunE: runObserve,
	}
	addLoopFlags(cmd.Flags())
	return cmd
}

func runObserve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	path := viper.GetString(observationsFlag)
	obs, err := observer.ReadFile(path)
	if err != nil {
		return err
	}
	fresh, err := newLoop(newRegistry(), log, eventbus.New()).ObserveAll(ctx, obs.Observer)
	if err != nil {
		return err
	}
	obs.Observer = fresh
	if err := observer.WriteFile(path, obs); err != nil {
		return err
	}
	log.Info("observations written", zap.String("path", path))

	for _, name := range sortedObservers(fresh) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d queries\n", name, len(fresh[name].Queries))
	}
	return nil
}

func sortedObservers(obs observer.Observations) []string {
	names := make([]string, 0, len(obs))
	for n := range obs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
