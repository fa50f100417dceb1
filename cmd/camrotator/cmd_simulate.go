/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/camrotator/internal/catalog"
	"github.com/friendsincode/camrotator/internal/clock"
	"github.com/friendsincode/camrotator/internal/config"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/server"
	"github.com/friendsincode/camrotator/internal/vote"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <catalog>",
	Short: "Print an offline rotation timeline",
	Long: `Runs the rotation engine on a simulated clock against a YAML catalog and prints
the timeline. Rotation tunables come from the CAMROTATOR_* environment when it
holds a loadable server config, otherwise the stock defaults apply.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var (
	simDuration    time.Duration
	simStep        time.Duration
	simSeed        int64
	simFailureRate float64
	simBroken      []string
	simVoters      int
	simStayShare   float64
	simNoVotes     bool
)

func init() {
	simulateCmd.Flags().DurationVar(&simDuration, "duration", time.Hour, "Simulated horizon")
	simulateCmd.Flags().DurationVar(&simStep, "step", 500*time.Millisecond, "Engine tick on the simulated clock")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed for failures and ballots")
	simulateCmd.Flags().Float64Var(&simFailureRate, "failure-rate", 0, "Share of playback attempts that fail (0-1)")
	simulateCmd.Flags().StringSliceVar(&simBroken, "broken", nil, "Source ids that always fail")
	simulateCmd.Flags().IntVar(&simVoters, "voters", 0, "Ballots cast per vote window")
	simulateCmd.Flags().Float64Var(&simStayShare, "stay-share", 0.5, "Share of voters choosing stay (0-1)")
	simulateCmd.Flags().BoolVar(&simNoVotes, "no-votes", false, "Disable automatic votes")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sources, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}
	for _, warn := range catalog.Warnings(sources) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
	}

	rc := rotation.DefaultConfig()
	if envCfg, err := config.Load(); err == nil {
		rc = server.RotationConfig(envCfg)
	}
	if simNoVotes {
		rc.Vote.Enabled = false
	}

	report, err := clock.NewPlanner(rc, sources, zerolog.Nop()).Compile(clock.Options{
		Horizon:     simDuration,
		Step:        simStep,
		Seed:        simSeed,
		FailureRate: simFailureRate,
		Broken:      simBroken,
		Voters:      simVoters,
		StayShare:   simStayShare,
	})
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), report)
}

func printReport(out io.Writer, report clock.Report) error {
	if len(report.Segments) == 0 {
		_, err := fmt.Fprintln(out, "no playable sources: the rotation stayed idle")
		return err
	}
	start := report.Segments[0].StartsAt

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tSOURCE\tKIND\tON AIR\tENDED BY")
	for _, seg := range report.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			seg.StartsAt.Sub(start).Truncate(time.Second),
			seg.SourceID,
			seg.Kind,
			seg.Duration.Truncate(100*time.Millisecond),
			seg.EndReason,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stays := 0
	for _, v := range report.Votes {
		if v.Decision == vote.DecisionStay {
			stays++
		}
	}
	_, err := fmt.Fprintf(out, "\n%d segments, %d failures, %d votes (%d stay)\n",
		len(report.Segments), len(report.Failures), len(report.Votes), stays)
	return err
}
