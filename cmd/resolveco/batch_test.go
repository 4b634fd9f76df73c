package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/resolveco/resolveco/internal/model"
)

func TestReadCSVInputsMapsSpecColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.csv")
	content := "name,city,phone,address,context\nAcme Plumbing,Reno,+1 775 555 0100,123 Main St,emergency repair\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	inputs, err := readCSVInputs(path)
	if err != nil {
		t.Fatalf("readCSVInputs: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(inputs))
	}
	in := inputs[0]
	if in.Name != "Acme Plumbing" || in.City != "Reno" || in.Context != "emergency repair" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.ID == "" {
		t.Fatalf("expected a generated ID")
	}
}

func TestReadJSONLInputsSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.jsonl")
	content := `{"id":"row-1","name":"Acme Plumbing"}

{"id":"row-2","name":"Beta Electric"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	inputs, err := readJSONLInputs(path)
	if err != nil {
		t.Fatalf("readJSONLInputs: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(inputs))
	}
	if inputs[0].ID != "row-1" || inputs[1].ID != "row-2" {
		t.Fatalf("unexpected ids: %+v", inputs)
	}
}

func TestReadBatchInputsDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "rows.csv")
	_ = os.WriteFile(csvPath, []byte("name\nAcme\n"), 0o644)
	jsonlPath := filepath.Join(dir, "rows.jsonl")
	_ = os.WriteFile(jsonlPath, []byte(`{"id":"x","name":"Acme"}`+"\n"), 0o644)

	if _, err := readBatchInputs(csvPath); err != nil {
		t.Fatalf("csv dispatch: %v", err)
	}
	if _, err := readBatchInputs(jsonlPath); err != nil {
		t.Fatalf("jsonl dispatch: %v", err)
	}
}

func TestWriteCSVOutputEmitsSpecColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	recs := []model.ResolvedRecord{
		{
			InputID: "row-1", Domain: "acme.com", DomainConfidence: 82, DomainSource: "places_name_match",
			Contacts: []model.Contact{
				{Name: "Jane Doe", Title: "Owner", Email: "jane@acme.com", IsValid: true, Confidence: 90},
				{Name: "John Roe", Email: "john@acme.com", Confidence: 40},
			},
			StagesCompleted: []string{"normalize", "resolve_domain", "discover_contacts"},
		},
		{InputID: "row-2", NeedsManualReview: true, Errors: []model.StructuredError{{Kind: model.ErrNoCandidate, Detail: "no usable search results"}}},
	}

	if err := writeCSVOutput(path, recs); err != nil {
		t.Fatalf("writeCSVOutput: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	out := string(data)
	if !bytes.Contains(data, []byte("company_name,domain,confidence,source,needs_manual_review")) {
		t.Fatalf("missing expected header, got: %s", out)
	}
	if !bytes.Contains(data, []byte("jane@acme.com")) {
		t.Fatalf("expected the top contact's email in output, got: %s", out)
	}
	if !bytes.Contains(data, []byte("true")) {
		t.Fatalf("expected an additional_contacts=true row, got: %s", out)
	}
	if !bytes.Contains(data, []byte("no usable search results")) {
		t.Fatalf("expected row-2's error message, got: %s", out)
	}
}

func TestWriteJSONOutputRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	recs := []model.ResolvedRecord{{InputID: "row-1", Domain: "acme.com"}}

	if err := writeJSONOutput(path, recs); err != nil {
		t.Fatalf("writeJSONOutput: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out []model.ResolvedRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Domain != "acme.com" {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func TestFirstErrorMessageTruncatesAndHandlesEmpty(t *testing.T) {
	if firstErrorMessage(nil) != "" {
		t.Fatalf("expected empty string for no errors")
	}
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	msg := firstErrorMessage([]model.StructuredError{{Detail: string(long)}})
	if len(msg) != 1000 {
		t.Fatalf("expected truncation to 1000 chars, got %d", len(msg))
	}
}
