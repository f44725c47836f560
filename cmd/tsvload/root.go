package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TSVLOAD"

// NewRootCommand builds the tsvload command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "tsvload",
		Short: "Load TSV datasets into a document store.",
		Long: `tsvload reads a primary TSV dataset, left-joins enrichment datasets onto it
by identifier, converts each row into a typed document and bulk-writes the
documents to a document store using a fixed pool of workers.

Flags can also be set through TSVLOAD_* environment variables (dashes become
underscores, e.g. TSVLOAD_BATCH_SIZE). A .env file in the working directory
is read first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setAllConfig(viper.New(), cmd.Flags())
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Pipeline file (JSON, or YAML by .yaml/.yml extension).")

	rc.AddCommand(newIngestCommand(stdout))
	rc.AddCommand(newValidateCommand(stdout))
	rc.AddCommand(newSortCommand(stdout))
	rc.AddCommand(newMergeCommand(stdout))
	rc.AddCommand(newKindsCommand(stdout))
	rc.AddCommand(newProbeCommand(stdout))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// setAllConfig fills every flag that was not given on the command line from
// the matching TSVLOAD_* environment variable, if set. Command-line flags win
// over the environment, which wins over the pipeline file.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		var value string
		switch f.Value.Type() {
		case "stringSlice":
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		case "stringToString":
			// Maps only come from the command line.
			return
		default:
			value = v.GetString(f.Name)
		}
		if err := f.Value.Set(value); err != nil {
			flagErr = fmt.Errorf("flag --%s from environment: %w", f.Name, err)
		}
	})
	return flagErr
}
