package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"abm-playbook-workers/internal/common/config"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/export"
	"abm-playbook-workers/internal/normalize"

	"github.com/spf13/cobra"
)

type normalizeFlags struct {
	schema    string
	maxDepth  int
	csvOut    string
	emailsOut string
	quiet     bool
	verbose   bool
}

func NormalizeCmd() *cobra.Command {
	var f normalizeFlags
	cmd := &cobra.Command{
		Use:   "normalize <response-file|->",
		Short: "Normalize a captured agent response into a canonical playbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return runNormalize(cmd.OutOrStdout(), cmd.ErrOrStderr(), raw, f)
		},
	}
	cmd.Flags().StringVar(&f.schema, "schema", string(normalize.SchemaMultiReport), "payload variant: multi_report or single_report")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", normalize.DefaultMaxDepth, "recursion limit for the payload locator")
	cmd.Flags().StringVar(&f.csvOut, "csv", "", "write the contacts CSV to this path")
	cmd.Flags().StringVar(&f.emailsOut, "emails", "", "write the email sequences Markdown to this path")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "print only the strategy, not the playbook")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log every strategy attempt to stderr")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func runNormalize(stdout, stderr io.Writer, raw []byte, f normalizeFlags) error {
	opts, err := normalize.OptionsFromConfig(config.PlaybookConfig{Schema: f.schema, MaxDepth: f.maxDepth})
	if err != nil {
		return err
	}

	log := logger.NewNoOpLogger()
	if f.verbose {
		log, err = logger.FromConfig(config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
		defer logger.Sync(log)
	}

	outcome, err := normalize.NewNormalizer(opts, log).Normalize(raw)
	if err != nil {
		var nerr *normalize.NormalizationError
		if errors.As(err, &nerr) {
			fmt.Fprintf(stderr, "tried: %v\n", nerr.Tried)
			if nerr.ProseOnly {
				fmt.Fprintf(stderr, "agent said: %s\n", nerr.ProseExcerpt)
			} else {
				fmt.Fprintf(stderr, "preview: %s\n", nerr.Preview)
			}
		}
		return err
	}

	pb := outcome.Playbook
	fmt.Fprintf(stderr, "strategy: %s\n", outcome.Strategy)

	if f.csvOut != "" {
		if err := os.WriteFile(f.csvOut, export.ContactsCSV(pb.EnrichedContacts), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.csvOut, err)
		}
	}
	if f.emailsOut != "" {
		if err := os.WriteFile(f.emailsOut, export.EmailsMarkdown(pb.EmailSequences), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.emailsOut, err)
		}
	}

	if f.quiet {
		fmt.Fprintln(stdout, outcome.Strategy)
		return nil
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pb)
}
