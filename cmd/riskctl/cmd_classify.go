package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alem-hub/wellness-hub/internal/domain/population"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/ingest"
)

type classifyOptions struct {
	band    string
	query   string
	jsonOut bool
}

// classifiedStudent is one row of the classify output.
type classifiedStudent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Score          int       `json:"risk_score"`
	Band           risk.Band `json:"band"`
	Label          string    `json:"label"`
	Trend          string    `json:"trend"`
	PredictedDelta int       `json:"predicted_delta"`
}

// classifyResult is the --json output of classify.
type classifyResult struct {
	Students []classifiedStudent   `json:"students"`
	Summary  population.Summary    `json:"summary"`
	Clamped  []risk.InputViolation `json:"clamped,omitempty"`
	Rejected []ingest.RecordError  `json:"rejected,omitempty"`
}

func newClassifyCmd(_ *rootOptions) *cobra.Command {
	copts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify <file|->",
		Short: "Classify the students of an export without touching the database",
		Long: `Run the risk classifier over the students of an export and print them
by descending score, followed by the population summary.

Examples:
  riskctl classify export.json
  riskctl classify export.json --band high
  riskctl classify - --query morgan --json < export.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			band, err := population.ParseBand(copts.band)
			if err != nil {
				return err
			}
			batch, err := readBatch(cmd, args[0])
			if err != nil {
				return err
			}
			res := classify(batch, copts.query, band)
			if copts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printClassification(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&copts.band, "band", "all",
		"Only show one band: all, high, medium, low")
	cmd.Flags().StringVar(&copts.query, "query", "",
		"Only show students whose name contains this text")
	cmd.Flags().BoolVar(&copts.jsonOut, "json", false,
		"Output as JSON")
	return cmd
}

// classify converts the batch students and filters them. The summary covers
// every valid student regardless of the filter.
func classify(b ingest.Batch, query string, band population.BandFilter) classifyResult {
	var res classifyResult
	students := make([]risk.Student, 0, len(b.Students))
	for idx, rec := range b.Students {
		s, violations, err := ingest.ToStudent(rec)
		if err != nil {
			res.Rejected = append(res.Rejected, ingest.RecordError{Kind: "student", Index: idx, ID: rec.ID, Err: err.Error()})
			continue
		}
		res.Clamped = append(res.Clamped, violations...)
		students = append(students, s)
	}

	res.Summary = population.Summarize(students)
	res.Students = make([]classifiedStudent, 0, len(students))
	for _, s := range risk.SortByRisk(population.Filter(students, query, band)) {
		c := risk.Classify(s)
		res.Students = append(res.Students, classifiedStudent{
			ID:             s.ID,
			Name:           s.Name,
			Score:          int(s.RiskScore),
			Band:           c.Band,
			Label:          c.Label,
			Trend:          risk.TrendLabel(s.Trend),
			PredictedDelta: risk.PredictedDelta(s),
		})
	}
	return res
}

func printClassification(out io.Writer, res classifyResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCORE\tBAND\tTREND\tPREDICTED")
	for _, s := range res.Students {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%+d\n", s.ID, s.Name, s.Score, s.Label, s.Trend, s.PredictedDelta)
	}
	_ = w.Flush()

	sum := res.Summary
	fmt.Fprintf(out, "\n%d students: %d high, %d medium, %d low, %d rising, average %.1f\n",
		sum.Total, sum.High, sum.Medium, sum.Low, sum.Rising, sum.AverageScore)

	for _, v := range res.Clamped {
		fmt.Fprintf(out, "clamped: %s\n", v.Error())
	}
	for _, r := range res.Rejected {
		fmt.Fprintf(out, "rejected: student #%d %q: %s\n", r.Index, r.ID, r.Err)
	}
}
