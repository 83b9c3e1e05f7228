package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucmodeler/modelstore/internal/watch"
	"github.com/ucmodeler/modelstore/pkg/color"
)

func newWatchCmd(o *options) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print model changes as they happen",
		Long: `Print a line for every model that is changed or removed, by this or
any other process, until interrupted. With --json each line is a JSON object.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			w, err := watch.New(cfg.ModelsDir, watch.WithDebounce(debounce))
			if err != nil {
				return fmt.Errorf("watch %s: %w", cfg.ModelsDir, err)
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			return w.Run(cmd.Context(), func(c watch.Change) {
				if o.jsonOutput {
					_ = enc.Encode(c)
					return
				}
				kind := color.Info(string(c.Kind))
				if c.Kind == watch.KindRemoved {
					kind = color.Warning(string(c.Kind))
				}
				fmt.Fprintf(out, "%s  %-8s %s\n", color.Dim(c.Time.Format(time.TimeOnly)), kind, color.ModelName(c.Model))
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "collect events for this long before reporting")
	return cmd
}
