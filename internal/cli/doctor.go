package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ucmodeler/modelstore/internal/doctor"
	"github.com/ucmodeler/modelstore/pkg/color"
)

var errUnhealthy = errors.New("models directory is unhealthy")

func newDoctorCmd(o *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the models directory for problems",
		Long: `Check the models directory for problems.

Reports corrupted records, invalid or mismatched names, schema version
mismatches, stale leases and leftover temporary files. Nothing is changed.
Use --strict to also report records not stored in canonical form.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				result, err := doctor.NewDoctor(a.leases, a.cfg.ModelVersion).Check(strict)
				if err != nil {
					return fmt.Errorf("doctor: %w", err)
				}

				out := cmd.OutOrStdout()
				if o.jsonOutput {
					if err := outputJSON(out, result); err != nil {
						return err
					}
				} else if len(result.Findings) == 0 {
					fmt.Fprintf(out, "%s (%d models)\n", color.Success("Models directory is healthy."), result.Models)
				} else {
					fmt.Fprintf(out, "Findings (%d):\n", len(result.Findings))
					for _, f := range result.Findings {
						subject := f.Category
						if f.Model != "" {
							subject += " " + color.ModelName(f.Model)
						}
						fmt.Fprintf(out, "  [%s] %s: %s\n", severity(f.Severity), subject, f.Description)
					}
				}

				if !result.Healthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also check that records are in canonical form")
	return cmd
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return color.Info(s)
	}
}
