package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/wellness-hub/internal/infrastructure/ingest"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

type importOptions struct {
	strict bool
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	iopts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Load a JSON export of students, indicators and interventions",
		Long: `Load a batch exported by the signal collaborator.

Out-of-range scores are clamped and reported. Records with missing or
malformed fields are skipped and listed in the report. A database failure
aborts the import.

Exit Codes:
  0 = Import finished
  1 = Import failed, or --strict and some records were rejected`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, iopts, args[0])
		},
	}
	cmd.Flags().BoolVar(&iopts.strict, "strict", false,
		"Fail when any record is rejected")
	return cmd
}

func runImport(cmd *cobra.Command, opts *rootOptions, iopts *importOptions, path string) error {
	batch, err := readBatch(cmd, path)
	if err != nil {
		return err
	}

	log := opts.logger(cmd)
	defer log.Sync()

	conn, err := opts.connect(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer conn.Close()

	importer := ingest.NewImporter(
		postgres.NewRiskRepository(conn),
		postgres.NewInterventionRepository(conn),
		log,
	)
	report, err := importer.Import(cmd.Context(), batch)
	if report != nil {
		if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
			log.Warn("report output failed", logger.Err(werr))
		}
	}
	if err != nil {
		return err
	}
	if iopts.strict && len(report.Rejected) > 0 {
		return fmt.Errorf("%d record(s) rejected", len(report.Rejected))
	}
	return nil
}

// readBatch decodes path, or stdin when path is "-".
func readBatch(cmd *cobra.Command, path string) (ingest.Batch, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return ingest.Batch{}, err
		}
		defer f.Close()
		r = f
	}
	return ingest.Decode(r)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
