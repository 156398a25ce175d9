package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stenolearn/backend/core/scoring"
)

// notNegative is a vala checker for float flags, which vala.GreaterThan does not cover.
func notNegative(param float64, paramName string) vala.Checker {
	return func() (bool, string) {
		if param >= 0 {
			return true, ""
		}
		return false, fmt.Sprintf("Parameter must be 0 or greater: %s(%g)", paramName, param)
	}
}

func (cli *commandLine) scoreCmd() *cobra.Command {
	var (
		refPath, typedPath string
		elapsed            float64
		lookahead          int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a typed text against its reference, without saving anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refPath == "" || typedPath == "" {
				_ = cmd.Usage()
				return errHelp
			}
			if !cmd.Flags().Changed("lookahead") {
				lookahead = cli.lookahead
			}
			return cli.score(refPath, typedPath, elapsed, lookahead)
		},
	}
	cmd.Flags().StringVar(&refPath, "reference", "", "file holding the reference text")
	cmd.Flags().StringVar(&typedPath, "typed", "", "file holding the typed text")
	cmd.Flags().Float64Var(&elapsed, "elapsed", 0, "seconds spent typing; the WPM is 0 when unknown")
	cmd.Flags().IntVar(&lookahead, "lookahead", scoring.DefaultLookahead, "size of the window searched for skipped or extra characters")
	return cmd
}

func (cli *commandLine) score(refPath, typedPath string, elapsed float64, lookahead int) error {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(refPath, "reference"),
		vala.StringNotEmpty(typedPath, "typed"),
		vala.GreaterThan(lookahead, 0, "lookahead"),
		notNegative(elapsed, "elapsed"),
	).Check(); err != nil {
		return err
	}

	reference, err := os.ReadFile(refPath)
	if err != nil {
		return errors.Wrap(err, "reading reference text")
	}
	typed, err := os.ReadFile(typedPath)
	if err != nil {
		return errors.Wrap(err, "reading typed text")
	}

	res := scoring.Evaluate(strings.TrimSpace(string(reference)), strings.TrimSpace(string(typed)), elapsed, lookahead)
	correct, wrong, pending := scoring.Count(res.Statuses)
	fmt.Fprintf(cli.out, "Accuracy:      %d%%\n", res.Accuracy)
	fmt.Fprintf(cli.out, "Word accuracy: %d%%\n", res.WordAccuracy)
	fmt.Fprintf(cli.out, "Progress:      %d%%\n", res.Progress)
	fmt.Fprintf(cli.out, "WPM:           %d\n", res.WPM)
	fmt.Fprintf(cli.out, "Characters:    %d correct, %d wrong, %d pending\n", correct, wrong, pending)
	fmt.Fprintf(cli.out, "Mistakes:      %d\n", len(res.Mistakes))
	for _, m := range res.Mistakes {
		fmt.Fprintf(cli.out, "  #%d: expected %q, typed %q\n", m.Position+1, m.Expected, m.Actual)
	}
	return nil
}
