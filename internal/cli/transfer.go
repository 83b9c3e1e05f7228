package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ucmodeler/modelstore/pkg/color"
	"github.com/ucmodeler/modelstore/pkg/fsutil"
)

func newExportCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <name> [-o file]",
		Short: "Write a model record to a file",
		Long: `Write the stored record of a model, including its lease and
modification time, to a file or stdout. Exporting does not check the model out.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: o.completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				data, err := a.transfer.Export(args[0])
				if err != nil {
					return o.explain(a, args[0], err)
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := fsutil.AtomicWrite(output, data, 0644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s to %s\n", color.Success("Exported"), color.ModelName(args[0]), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

type importOutput struct {
	OriginalName string `json:"original_name"`
	AssignedName string `json:"assigned_name"`
	Renamed      bool   `json:"renamed"`
}

func newImportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an exported model record",
		Long: `Import a model record written by export. The model comes in unleased.
If a model of the same name exists, a timestamp suffix is added to the name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return o.withApp(func(a *app) error {
				res, err := a.transfer.Import(raw)
				if err != nil {
					return err
				}
				if o.jsonOutput {
					return outputJSON(cmd.OutOrStdout(), importOutput{
						OriginalName: res.OriginalName,
						AssignedName: res.AssignedName,
						Renamed:      res.Renamed(),
					})
				}
				out := cmd.OutOrStdout()
				if res.Renamed() {
					fmt.Fprintf(out, "%s %s as %s (name was taken)\n",
						color.Success("Imported"), color.ModelName(res.OriginalName), color.ModelName(res.AssignedName))
					return nil
				}
				fmt.Fprintf(out, "%s %s\n", color.Success("Imported"), color.ModelName(res.AssignedName))
				return nil
			})
		},
	}
}
