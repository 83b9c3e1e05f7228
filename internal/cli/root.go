// Package cli implements the modelstore command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ucmodeler/modelstore/pkg/color"
	"github.com/ucmodeler/modelstore/pkg/config"
)

// Environment variables read in addition to MODELSTORE_*.
const (
	envModelVersion = "MODEL_VERSION"
	envAuthEnabled  = "BACKEND_AUTH_ENABLED"
	envPublicKeyURI = "KC_PUBLIC_KEY_URI"
)

// options holds the state shared by every command of one invocation.
type options struct {
	v          *viper.Viper
	jsonOutput bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "modelstore",
		Short: "modelstore - collaborative model storage with checkout leases",
		Long: `modelstore keeps JSON models in a shared directory and coordinates
editing through checkout leases. Reading an unleased model checks it out to
the reader; other readers get a read-only copy until the lease is released,
returned with the session, or expires after a period of inactivity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			color.Init(o.v.GetBool("no-color"))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&o.jsonOutput, "json", false, "output in JSON format")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("config", config.FileName, "config file")
	flags.String("dir", "", "models directory (overrides config)")
	flags.String("user", "", "username recorded in leases (default from config)")
	flags.String("session", "cli/local", `lease session as "session/tab"`)
	flags.String("log-level", "", "log level: debug, info, warn, error")

	o.v.SetEnvPrefix("MODELSTORE")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	for _, name := range []string{"no-color", "config", "dir", "user", "session", "log-level"} {
		mustBindFlag(o.v, name, "", flags.Lookup(name))
	}
	mustBindEnv(o.v, "model-version", "MODELSTORE_MODEL_VERSION", envModelVersion)
	mustBindEnv(o.v, "auth-enabled", "MODELSTORE_AUTH_ENABLED", envAuthEnabled)
	mustBindEnv(o.v, "public-key-uri", "MODELSTORE_PUBLIC_KEY_URI", envPublicKeyURI)

	cmd.AddCommand(
		newListCmd(o),
		newGetCmd(o),
		newCreateCmd(o),
		newUpdateCmd(o),
		newDeleteCmd(o),
		newReleaseCmd(o),
		newReturnCmd(o),
		newExportCmd(o),
		newImportCmd(o),
		newDoctorCmd(o),
		newWatchCmd(o),
		newServeCmd(o),
		newConfigCmd(o),
		newCompletionCmd(),
	)
	return cmd
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		mustBindEnv(v, key, env)
	}
}

func mustBindEnv(v *viper.Viper, key string, envs ...string) {
	if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
		panic(err)
	}
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmtErr(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(w io.Writer, format string, args ...any) {
	prefix := "modelstore: "
	if color.Enabled() {
		prefix = color.Error("modelstore:") + " "
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}
