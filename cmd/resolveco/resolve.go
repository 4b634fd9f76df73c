package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/resolveco/resolveco/internal/model"
)

// newResolveCommand runs the full C1-C8 pipeline synchronously over a
// single row, either built from flags or read as one JSON CompanyInput
// from stdin with --json.
func newResolveCommand() *cobra.Command {
	var (
		name, domain, city, state, phone, address, category, bizCtx string
		fromJSON                                                    bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one company's canonical domain and contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			in, err := readSingleInput(cmd, fromJSON, name, domain, city, state, phone, address, category, bizCtx)
			if err != nil {
				return fmt.Errorf("%w (%v)", errConfig, err)
			}

			pipe, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			recs := pipe.Orchestrator.Run(cmd.Context(), []model.CompanyInput{in})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(recs[0])
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "business name (required unless --json)")
	cmd.Flags().StringVar(&domain, "domain", "", "known or suspected domain")
	cmd.Flags().StringVar(&city, "city", "", "city")
	cmd.Flags().StringVar(&state, "state", "", "state or region")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&address, "address", "", "street address")
	cmd.Flags().StringVar(&category, "category", "", "business category")
	cmd.Flags().StringVar(&bizCtx, "context", "", "free-text context the customer supplied")
	cmd.Flags().BoolVar(&fromJSON, "json", false, "read one CompanyInput as JSON from stdin instead of flags")
	return cmd
}

func readSingleInput(cmd *cobra.Command, fromJSON bool, name, domain, city, state, phone, address, category, bizCtx string) (model.CompanyInput, error) {
	if fromJSON {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return model.CompanyInput{}, fmt.Errorf("read stdin: %w", err)
		}
		var in model.CompanyInput
		if err := json.Unmarshal(data, &in); err != nil {
			return model.CompanyInput{}, fmt.Errorf("parse stdin CompanyInput: %w", err)
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		return in, nil
	}
	if name == "" {
		return model.CompanyInput{}, fmt.Errorf("--name is required (or pass --json)")
	}
	return model.CompanyInput{
		ID: uuid.NewString(), Name: name, Domain: domain, City: city, State: state,
		Phone: phone, Address: address, Category: category, Context: bizCtx,
	}, nil
}
