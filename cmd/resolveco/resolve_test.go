package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd(stdin string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetIn(bytes.NewBufferString(stdin))
	return cmd
}

func TestReadSingleInputFromFlagsRequiresName(t *testing.T) {
	cmd := newTestCmd("")
	if _, err := readSingleInput(cmd, false, "", "", "", "", "", "", "", ""); err == nil {
		t.Fatalf("expected an error when --name is empty")
	}
}

func TestReadSingleInputFromFlagsGeneratesID(t *testing.T) {
	cmd := newTestCmd("")
	in, err := readSingleInput(cmd, false, "Acme Plumbing", "acme.com", "Reno", "NV", "+17755550100", "123 Main St", "plumbing", "24/7 emergency service")
	if err != nil {
		t.Fatalf("readSingleInput: %v", err)
	}
	if in.Name != "Acme Plumbing" || in.Domain != "acme.com" || in.City != "Reno" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.ID == "" {
		t.Fatalf("expected a generated ID")
	}
}

func TestReadSingleInputFromJSONStdin(t *testing.T) {
	cmd := newTestCmd(`{"id":"row-1","name":"Beta Electric","city":"Sparks"}`)
	in, err := readSingleInput(cmd, true, "", "", "", "", "", "", "", "")
	if err != nil {
		t.Fatalf("readSingleInput: %v", err)
	}
	if in.ID != "row-1" || in.Name != "Beta Electric" || in.City != "Sparks" {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestReadSingleInputFromJSONStdinGeneratesMissingID(t *testing.T) {
	cmd := newTestCmd(`{"name":"Beta Electric"}`)
	in, err := readSingleInput(cmd, true, "", "", "", "", "", "", "", "")
	if err != nil {
		t.Fatalf("readSingleInput: %v", err)
	}
	if in.ID == "" {
		t.Fatalf("expected a generated ID when stdin omits one")
	}
}

func TestReadSingleInputFromJSONStdinRejectsInvalidJSON(t *testing.T) {
	cmd := newTestCmd("not json")
	if _, err := readSingleInput(cmd, true, "", "", "", "", "", "", "", ""); err == nil {
		t.Fatalf("expected an error for invalid JSON")
	}
}
