package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/compile"
	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/executor"
	"github.com/unboundedsystems/adapt/internal/observer"
)

const (
	variablesFlag = "variables"
	observeFlag   = "observe"
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <observer> <query>",
		Short: "Execute a query against the persisted observations",
		Long: `Execute a query against the data persisted in the observations file.

With --observe, the observer is asked to fetch whatever data the query needs
and the query is executed again until it no longer needs data. The fetched
data is written back to the observations file.`,
		Args: cobra.ExactArgs(2),
		PreRun: func(cmd *cobra.Command, args []string) {
			bindLoopFlags(cmd.Flags())
		},
		RunE: runQuery,
	}
	flags := cmd.Flags()
	flags.String(variablesFlag, "", "query variables as a JSON object")
	flags.Bool(observeFlag, false, "observe the data the query needs and persist it")
	addLoopFlags(flags)
	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	name, query := args[0], args[1]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	reg := newRegistry()
	p, err := reg.Lookup(name)
	if err != nil {
		return err
	}

	var vars map[string]any
	if raw, _ := cmd.Flags().GetString(variablesFlag); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return fmt.Errorf("parse --%s: %w", variablesFlag, err)
		}
	}

	c, err := compile.New(p.Schema().Schema)
	if err != nil {
		return err
	}
	defer c.Close()
	doc, err := c.Compile(query)
	if err != nil {
		return err
	}

	path := viper.GetString(observationsFlag)
	obs, err := observer.ReadFile(path)
	if err != nil {
		return err
	}

	var res *executor.ExecutionResult
	if observe, _ := cmd.Flags().GetBool(observeFlag); observe {
		loop := newLoop(reg, log, eventbus.New())
		result, err := loop.Run(ctx, obs.Observer, func(ctx context.Context) error {
			m, _ := observer.ManagerFromContext(ctx)
			r, qerr := m.ExecuteQuery(ctx, observer.Name(name), doc, vars)
			res = r
			return qerr
		})
		if err != nil {
			return err
		}
		for n, o := range result.Observations {
			obs.Observer[n] = o
		}
		if err := observer.WriteFile(path, obs); err != nil {
			return err
		}
		log.Info("observations written", zap.String("path", path), zap.Int("passes", result.Passes))
	} else {
		m, err := observer.NewManagerFromRegistry(reg, obs.Observer, observer.WithLogger(log))
		if err != nil {
			return err
		}
		if res, err = m.ExecuteQuery(ctx, observer.Name(name), doc, vars); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
