package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ucmodeler/modelstore/pkg/color"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/jsonutil"
	"github.com/ucmodeler/modelstore/pkg/model"
)

// withApp opens the service graph, runs fn and closes it.
func (o *options) withApp(fn func(a *app) error) error {
	a, err := o.open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models with their lease holders",
		Long: `List every model in the models directory.

Leases idle for longer than the lease window are released while listing.
Corrupted records are shown with the CORRUPTED marker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				list, err := a.registry.List()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if o.jsonOutput {
					return outputJSON(out, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(out, "No models.")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					modified := color.Dim("-")
					if s.LastModified != nil && !s.LastModified.IsZero() {
						modified = humanize.Time(s.LastModified.Time)
					}
					rows = append(rows, []string{color.ModelName(s.Name), color.Holder(s.ReadOnly), modified})
				}
				fmt.Fprint(out, color.Table([]string{"NAME", "HOLDER", "MODIFIED"}, rows))
				return nil
			})
		},
	}
}

func newGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Check out a model and print it",
		Long: `Print a model. If nobody holds it, it is checked out to you.
If someone else holds it, the printed copy carries their lease in readOnly.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: o.completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				view, err := a.leases.Checkout(args[0], o.requester(a.cfg))
				if err != nil {
					return o.explain(a, args[0], err)
				}
				if view.ReadOnly != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), color.Warningf("read-only: held by %s", view.ReadOnly))
				}
				return outputJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func readPayload(cmd *cobra.Command, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var payload map[string]any
	if err := jsonutil.Decode(data, &payload); err != nil || payload == nil {
		return nil, errclass.ErrBadRequest.WithMessagef("%s does not contain a JSON object", path)
	}
	return payload, nil
}

func (o *options) printView(cmd *cobra.Command, verb string, view *model.View) error {
	if o.jsonOutput {
		return outputJSON(cmd.OutOrStdout(), view)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.Success(verb), color.ModelName(view.Name()))
	return nil
}

func newCreateCmd(o *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create <name> -f <file>",
		Short: "Create a model from a JSON file",
		Long: `Create a model from a JSON object. The model is checked out to you.

Examples:
  modelstore create Payment -f payment.json
  cat payment.json | modelstore create Payment -f -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}
			return o.withApp(func(a *app) error {
				view, err := a.leases.Create(args[0], payload, o.requester(a.cfg))
				if err != nil {
					return err
				}
				return o.printView(cmd, "Created", view)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", `JSON file, or "-" for stdin`)
	return cmd
}

func newUpdateCmd(o *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <name> -f <file>",
		Short: "Replace a model's contents",
		Long: `Replace a model's contents. If the new contents declare a different
name, the model is renamed; an existing model of that name is never overwritten.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: o.completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}
			return o.withApp(func(a *app) error {
				view, err := a.leases.Update(cmd.Context(), args[0], payload, o.requester(a.cfg))
				if err != nil {
					return o.explain(a, args[0], err)
				}
				return o.printView(cmd, "Updated", view)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", `JSON file, or "-" for stdin`)
	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <name>",
		Aliases:           []string{"rm"},
		Short:             "Delete a model nobody holds",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: o.completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				if err := a.leases.Delete(args[0]); err != nil {
					return o.explain(a, args[0], err)
				}
				if o.jsonOutput {
					return outputJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.Success("Deleted"), color.ModelName(args[0]))
				return nil
			})
		},
	}
}

func newReleaseCmd(o *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release <name>",
		Short: "Release your lease on a model",
		Long: `Release the lease on a model. Only the holder may release it unless
--force is given.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: o.completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				claim := ""
				if !force {
					rec, err := a.store.Read(args[0])
					if err != nil {
						return o.explain(a, args[0], err)
					}
					claim = rec.ViewFor(o.requester(a.cfg)).ReadOnly
				}
				if err := a.leases.Release(args[0], claim); err != nil {
					return err
				}
				if o.jsonOutput {
					return outputJSON(cmd.OutOrStdout(), map[string]string{"released": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.Success("Released"), color.ModelName(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release even if someone else holds the model")
	return cmd
}

func newReturnCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "return",
		Short: "Release every model held by your session",
		Long: `Release every model checked out by any tab of the current session
(the part of --session before the slash).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				me := o.requester(a.cfg)
				count, err := a.leases.ReleaseAll(me.Owner, sessionOf(o.v.GetString("session")))
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("%d model(s) returned!", count)
				if o.jsonOutput {
					return outputJSON(cmd.OutOrStdout(), map[string]any{"message": msg, "count": count})
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

// explain adds a suggestion to not-found errors.
func (o *options) explain(a *app, name string, err error) error {
	if !errors.Is(err, errclass.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w\n%s", err, suggestModels(a.store, name))
}

func (o *options) completeModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	_ = o.withApp(func(a *app) error {
		var err error
		names, err = a.store.Names()
		return err
	})
	return names, cobra.ShellCompDirectiveNoFileComp
}
