package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/spf13/cobra"

	"github.com/resolveco/resolveco/internal/jobs"
	"github.com/resolveco/resolveco/internal/model"
)

// newBatchCommand drives the Orchestrator (C9) over every row in an input
// file, persists each row to the jobs database as it completes, and
// writes JSON/CSV/PDF summaries per §6's external interfaces.
func newBatchCommand() *cobra.Command {
	var (
		inputPath, jsonOut, csvOut, pdfOut string
		reviewThreshold                    float64
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Resolve every row in a CSV or JSON-lines batch file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if inputPath == "" {
				return fmt.Errorf("%w (--input is required)", errConfig)
			}

			inputs, err := readBatchInputs(inputPath)
			if err != nil {
				return fmt.Errorf("%w (%v)", errConfig, err)
			}

			pipe, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			store, err := jobs.Open(cfg.JobsDBPath)
			if err != nil {
				return fmt.Errorf("open jobs store: %w", err)
			}
			defer store.Close()

			jobID := uuid.NewString()
			if err := store.CreateJob(cmd.Context(), jobID, len(inputs)); err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			if err := store.MarkProcessing(cmd.Context(), jobID); err != nil {
				return fmt.Errorf("mark job processing: %w", err)
			}
			pipe.Orchestrator.Deps.Store = store.WithJob(jobID)

			recs := pipe.Orchestrator.Run(cmd.Context(), inputs)

			reviewCount := 0
			for _, r := range recs {
				if r.NeedsManualReview {
					reviewCount++
				}
			}

			if err := writeJSONOutput(jsonOut, recs); err != nil {
				_ = store.MarkFailed(cmd.Context(), jobID, truncateError(err))
				return fmt.Errorf("write json output: %w", err)
			}
			if csvOut != "" {
				if err := writeCSVOutput(csvOut, recs); err != nil {
					_ = store.MarkFailed(cmd.Context(), jobID, truncateError(err))
					return fmt.Errorf("write csv output: %w", err)
				}
			}
			if pdfOut != "" {
				if err := writeAuditPDF(pdfOut, jobID, recs); err != nil {
					_ = store.MarkFailed(cmd.Context(), jobID, truncateError(err))
					return fmt.Errorf("write audit pdf: %w", err)
				}
			}

			if err := store.MarkCompleted(cmd.Context(), jobID); err != nil {
				return fmt.Errorf("mark job completed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s: %d rows, %d flagged for manual review\n", jobID, len(recs), reviewCount)

			if len(recs) > 0 && float64(reviewCount)/float64(len(recs)) > reviewThreshold {
				return fmt.Errorf("%w (%d/%d rows, threshold %.2f)", errPartialFailure, reviewCount, len(recs), reviewThreshold)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "path to a .csv or .jsonl batch file (required)")
	cmd.Flags().StringVar(&jsonOut, "output", "resolveco-results.json", "path to write the JSON results array")
	cmd.Flags().StringVar(&csvOut, "csv", "", "optional path to write the §6 CSV summary")
	cmd.Flags().StringVar(&pdfOut, "audit-pdf", "", "optional path to write a PDF audit summary")
	cmd.Flags().Float64Var(&reviewThreshold, "review-threshold", 0.25, "fraction of rows needing manual review above which the command exits with partial-failure status")
	return cmd
}

// readBatchInputs loads a batch file, dispatching on extension: .csv uses
// §6's input columns (name, city, phone, address, context); anything else
// is read as JSON-lines, one CompanyInput per line.
func readBatchInputs(path string) ([]model.CompanyInput, error) {
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return readCSVInputs(path)
	}
	return readJSONLInputs(path)
}

func readCSVInputs(path string) ([]model.CompanyInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}

	var inputs []model.CompanyInput
	for {
		row, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		inputs = append(inputs, model.CompanyInput{
			ID:       uuid.NewString(),
			Name:     field(row, col, "name"),
			City:     field(row, col, "city"),
			Phone:    field(row, col, "phone"),
			Address:  field(row, col, "address"),
			Context:  field(row, col, "context"),
			Domain:   field(row, col, "domain"),
			State:    field(row, col, "state"),
			Category: field(row, col, "category"),
		})
	}
	return inputs, nil
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func readJSONLInputs(path string) ([]model.CompanyInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var inputs []model.CompanyInput
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var in model.CompanyInput
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			return nil, fmt.Errorf("parse jsonl row: %w", err)
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		inputs = append(inputs, in)
	}
	return inputs, scanner.Err()
}

func writeJSONOutput(path string, recs []model.ResolvedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// writeCSVOutput writes §6's CSV columns, one row per top contact, with
// an additional boolean column flagging whether other contacts exist.
func writeCSVOutput(path string, recs []model.ResolvedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"company_name", "domain", "confidence", "source", "needs_manual_review",
		"contact_name", "contact_title", "contact_email", "contact_phone", "linkedin_url",
		"is_valid", "additional_contacts", "stages_completed", "error_message",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range recs {
		top := r.TopContact()
		var name, title, email, phone, linkedin string
		var isValid bool
		if top != nil {
			name, title, email, phone, linkedin, isValid = top.Name, top.Title, top.Email, top.Phone, top.LinkedInURL, top.IsValid
		}
		row := []string{
			r.InputID, r.Domain, fmt.Sprintf("%d", r.DomainConfidence), r.DomainSource, fmt.Sprintf("%t", r.NeedsManualReview),
			name, title, email, phone, linkedin,
			fmt.Sprintf("%t", isValid), fmt.Sprintf("%t", len(r.Contacts) > 1),
			strings.Join(r.StagesCompleted, ";"), firstErrorMessage(r.Errors),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func firstErrorMessage(errs []model.StructuredError) string {
	if len(errs) == 0 {
		return ""
	}
	msg := errs[0].Detail
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

// writeAuditPDF renders a one-line-per-row audit trail, grounded on the
// teacher's writeSimplePDF Markdown-to-PDF renderer but laid out as a
// plain tabular summary instead of rendered Markdown.
func writeAuditPDF(path, jobID string, recs []model.ResolvedRecord) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.AddPage()
	pdf.CellFormat(0, 8, fmt.Sprintf("resolveco batch audit: job %s", jobID), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(4)

	for _, r := range recs {
		top := r.TopContact()
		contactLine := "no contact found"
		if top != nil {
			contactLine = fmt.Sprintf("%s <%s>", top.Name, top.Email)
		}
		line := fmt.Sprintf("%s  domain=%s (%d%%, %s)  review=%t  %s",
			r.InputID, r.Domain, r.DomainConfidence, r.DomainSource, r.NeedsManualReview, contactLine)
		pdf.MultiCell(0, 5, line, "", "L", false)
		if len(r.Errors) > 0 {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 5, "  error: "+firstErrorMessage(r.Errors), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
		}
		pdf.Ln(2)
	}
	return pdf.OutputFileAndClose(path)
}
