package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/rahul/operator/internal/report"
	"github.com/rahul/operator/internal/runner"
)

var errCaseFailed = errors.New("case failed")

func newRunCmd() *cobra.Command {
	var (
		stepsFile string
		headless  bool
		jsonOut   bool
		cleanup   bool
	)
	cmd := &cobra.Command{
		Use:   "run <url> [instruction...]",
		Short: "Run one case against a URL",
		Example: `  operator run https://shop.test "click Login" "fill the email field with a@b.test"
  operator run https://shop.test --steps-file login.txt
  echo "click Login" | operator run https://shop.test --steps-file -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := readSteps(args[1:], stepsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			var h *bool
			if cmd.Flags().Changed("headless") {
				h = &headless
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res := a.cases.RunCase(ctx, args[0], steps, h)
			if jsonOut {
				if err := report.JSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printer(cmd).Case(res)
			}
			if cleanup {
				removeArtifacts(a.log, res)
			}
			if !res.Success {
				return errCaseFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&stepsFile, "steps-file", "f", "", "read instructions from a file, one per line (- for stdin)")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete step screenshots after reporting")
	return cmd
}

// readSteps joins instruction arguments into lines, or reads them from file.
func readSteps(args []string, file string, stdin io.Reader) (string, error) {
	var steps string
	switch {
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		steps = string(b)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		steps = string(b)
	default:
		steps = strings.Join(args, "\n")
	}
	if strings.TrimSpace(steps) == "" {
		return "", errors.New("no instructions given")
	}
	return steps, nil
}

func printer(cmd *cobra.Command) report.Printer {
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return report.Printer{Out: out, Color: color}
}

func removeArtifacts(log *zap.Logger, results ...runner.CaseResult) {
	for _, side := range runner.CleanupArtifacts(results...) {
		if !side.OK() {
			log.Warn("Failed to remove artifact", zap.String("op", side.Op), zap.Error(side.Err))
		}
	}
}
