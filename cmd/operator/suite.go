package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rahul/operator/internal/report"
	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/pkg/config"
)

// suiteFile is the YAML layout accepted by the suite command:
//
//	concurrency: 2
//	cases:
//	  - name: login
//	    url: https://shop.test
//	    steps: |
//	      click Login
//	      fill the email field with a@b.test
type suiteFile struct {
	Concurrency int                  `yaml:"concurrency"`
	Cases       []runner.CaseRequest `yaml:"cases"`
}

func loadSuite(path string) (*suiteFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s suiteFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, errors.New("suite has no cases")
	}
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("case-%d", i+1)
		}
		if c.URL == "" {
			return nil, fmt.Errorf("case %s: url is required", c.Name)
		}
		if strings.TrimSpace(c.Steps) == "" {
			return nil, fmt.Errorf("case %s: steps are required", c.Name)
		}
	}
	return &s, nil
}

func newSuiteCmd() *cobra.Command {
	var (
		concurrency int
		jsonOut     bool
		cleanup     bool
	)
	cmd := &cobra.Command{
		Use:   "suite <file.yaml>",
		Short: "Run every case in a suite file, each in its own browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSuite(args[0])
			if err != nil {
				return err
			}
			if concurrency == 0 {
				concurrency = s.Concurrency
			}
			a, err := newApp(true, func(c *config.Config) {
				if concurrency > 0 {
					c.Runner.SuiteConcurrency = concurrency
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := a.cases.RunSuite(ctx, s.Cases)
			if jsonOut {
				if err := report.JSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				p := printer(cmd)
				for _, res := range result.Results {
					p.Case(res)
				}
				p.Suite(result)
			}
			if cleanup {
				removeArtifacts(a.log, result.Results...)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", result.Failed, result.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "cases in flight at once (overrides the suite file and config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete step screenshots after reporting")
	return cmd
}
