package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/spf13/cobra"
)

func (c *CLI) agreementsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agreements",
		Aliases: []string{"ag"},
		Short:   "List, download and submit service agreements",
	}
	cmd.AddCommand(c.agreementsListCommand(), c.agreementsPDFCommand(), c.agreementsSubmitCommand())
	return cmd
}

func (c *CLI) agreementsListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List agreements",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.app.Agreements.List(cmd.Context())
			if err != nil {
				if domain.IsKind(err, domain.KindUnauthorized) {
					return err
				}
				c.Printer().Warning("%s", err.Error())
			}
			if asJSON {
				return c.writeJSON(nonNilSummaries(list))
			}
			return c.printAgreements(list)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *CLI) printAgreements(list []domain.AgreementSummary) error {
	if len(list) == 0 {
		c.Printer().Print("No agreements found.")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.PayerName,
			a.RecipientLast,
			a.BranchCode,
			fmt.Sprintf("$%.2f", a.HourlyRate),
			a.Status,
		})
	}
	return c.Printer().Table([]string{"ID", "PAYER", "CARE RECIPIENT", "BRANCH", "RATE", "STATUS"}, rows)
}

func (c *CLI) agreementsPDFCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "pdf ID",
		Short: "Download an agreement's PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return domain.Validation(fmt.Sprintf("invalid agreement id %q", args[0]))
			}
			// The list supplies the care-recipient name used for the file name.
			if _, err := c.app.Agreements.List(cmd.Context()); err != nil && domain.IsKind(err, domain.KindUnauthorized) {
				return err
			}
			doc, err := c.app.Agreements.FetchDocument(cmd.Context(), id)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, doc.Name)
			if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			c.Printer().Success("Saved %s (%d bytes)", path, len(doc.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "output-dir", "o", ".", "directory to save the PDF in")
	return cmd
}

func (c *CLI) agreementsSubmitCommand() *cobra.Command {
	var (
		from      string
		sets      []string
		signature string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new agreement",
		Long: `Submit a new agreement built from a JSON object of form fields, with
--set overrides, and a PNG of the client's signature.

Fields use the backend names, for example clt_first_name or branch_code.
Run with --fields to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list, _ := cmd.Flags().GetBool("fields"); list {
				for _, name := range domain.DraftFieldNames() {
					c.Printer().Print("%s", name)
				}
				return nil
			}
			fields, err := draftFields(from, sets)
			if err != nil {
				return err
			}
			return c.submit(cmd.Context(), fields, signature)
		},
	}
	cmd.Flags().StringVarP(&from, "from", "f", "", "JSON file with draft fields")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value override (repeatable)")
	cmd.Flags().StringVar(&signature, "signature", "", "PNG image of the client's signature")
	cmd.Flags().Bool("fields", false, "list accepted field names and exit")
	return cmd
}

func (c *CLI) submit(ctx context.Context, fields map[string]string, signaturePath string) error {
	// Branch validation checks against the cached lookup.
	c.app.Agreements.Branches(ctx)

	c.app.Drafts.Open()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.app.Drafts.Update(name, fields[name]); err != nil {
			return err
		}
	}

	if signaturePath != "" {
		data, err := os.ReadFile(signaturePath)
		if err != nil {
			return fmt.Errorf("reading signature: %w", err)
		}
		if err := c.app.Drafts.LoadSignature("data:image/png;base64," + base64.StdEncoding.EncodeToString(data)); err != nil {
			return err
		}
	}

	res, err := c.app.Drafts.Submit(ctx)
	if err != nil {
		return err
	}
	c.Printer().Success("%s (id %d)", res.Message, res.Created.ID)
	return nil
}

// draftFields merges the JSON file with --set overrides.
func draftFields(from string, sets []string) (map[string]string, error) {
	fields := map[string]string{}
	if from != "" {
		data, err := os.ReadFile(from)
		if err != nil {
			return nil, fmt.Errorf("reading draft: %w", err)
		}
		raw := map[string]interface{}{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, domain.Validation(fmt.Sprintf("draft file %s: %v", from, err))
		}
		for k, v := range raw {
			switch v := v.(type) {
			case nil:
			case string:
				fields[k] = v
			default:
				fields[k] = fmt.Sprint(v)
			}
		}
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, domain.Validation(fmt.Sprintf("--set %q: expected field=value", kv))
		}
		fields[k] = v
	}
	return fields, nil
}

func (c *CLI) branchesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List branch offices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			branches := c.app.Agreements.Branches(cmd.Context())
			if asJSON {
				if branches == nil {
					branches = []domain.Branch{}
				}
				return c.writeJSON(branches)
			}
			if len(branches) == 0 {
				c.Printer().Warning("Branch lookup is unavailable.")
				return nil
			}
			rows := make([][]string, 0, len(branches))
			for _, b := range branches {
				rows = append(rows, []string{b.Code, b.Name, b.StateCode})
			}
			return c.Printer().Table([]string{"CODE", "NAME", "STATE"}, rows)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *CLI) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.app.Config.Timeout.HealthCheck)
			defer cancel()

			online := c.app.Agreements.HealthCheck(ctx)
			c.Printer().Print("Backend %s %s", c.app.Config.BackendURL, c.Printer().Badge(online))
			if !online {
				return &domain.Failure{Kind: domain.KindTransport, Message: domain.MsgConnectionFailed}
			}
			return nil
		},
	}
}

func (c *CLI) writeJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNilSummaries(list []domain.AgreementSummary) []domain.AgreementSummary {
	if list == nil {
		return []domain.AgreementSummary{}
	}
	return list
}
