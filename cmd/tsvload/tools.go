package main

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"tsvload/internal/errors"
	"tsvload/internal/join"
	"tsvload/internal/parser/tsv"
	"tsvload/internal/probe"
	"tsvload/internal/sorter"
	"tsvload/internal/storage"
	"tsvload/internal/transformer"
)

func newValidateCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline file given by --config and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(cmd)
			if err != nil {
				return err
			}
			if err := checkIssues(stdout, p); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "configuration is valid")
			return nil
		},
	}
}

func newKindsCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the available document store kinds.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range storage.ListKinds() {
				fmt.Fprintln(stdout, k)
			}
		},
	}
}

func newSortCommand(stdout io.Writer) *cobra.Command {
	var (
		key   string
		comma string
		check bool
	)
	cmd := &cobra.Command{
		Use:   "sort IN [OUT]",
		Short: "Sort a dataset file by the numeric part of its identifier.",
		Long: `sort writes the rows of IN to OUT ordered by the numeric part of the
identifier column. With --check it only reports whether IN is already sorted,
and fails when it is not.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if check {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := tsvOptions(comma)
			if err != nil {
				return err
			}
			fopt := sorter.FileOptions{KeyColumn: key, TSV: opt}
			if check {
				ok, err := sorter.CheckFile(cmd.Context(), args[0], fopt)
				if err != nil {
					return err
				}
				if !ok {
					return errors.Newf(errors.ErrInput, "%s is not sorted", args[0])
				}
				fmt.Fprintf(stdout, "%s is sorted\n", args[0])
				return nil
			}
			n, err := sorter.SortFile(cmd.Context(), args[0], args[1], fopt)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "sorted %d rows into %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Identifier column (default: first column).")
	cmd.Flags().StringVar(&comma, "comma", "\t", "Field delimiter.")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether IN is sorted; write nothing.")
	return cmd
}

func newMergeCommand(stdout io.Writer) *cobra.Command {
	var (
		e     join.Enrichment
		types map[string]string
		comma string
	)
	cmd := &cobra.Command{
		Use:   "merge LEFT RIGHT OUT",
		Short: "Left-join two sorted dataset files into OUT.",
		Long: `merge keeps every LEFT row, appends the matching RIGHT columns, and fills
columns of unmatched rows with defaults ("0" for int, "0.0" for double, empty
otherwise, unless --default says otherwise). Both inputs must be sorted by
identifier; see 'tsvload sort'.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := tsvOptions(comma)
			if err != nil {
				return err
			}
			kinds := transformer.DefaultTypes
			if len(types) > 0 {
				if kinds, err = transformer.ParseKinds(types); err != nil {
					return err
				}
			}
			n, err := join.MergeFiles(cmd.Context(), args[0], args[1], args[2], join.FileOptions{
				Enrichment: e,
				Kinds:      kinds,
				TSV:        opt,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "merged %d rows into %s\n", n, args[2])
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&e.LeftKey, "left-key", "tconst", "Identifier column of LEFT.")
	f.StringVar(&e.RightKey, "right-key", "tconst", "Identifier column of RIGHT.")
	f.StringSliceVar(&e.Columns, "columns", nil, "RIGHT columns to copy (default: all but the key).")
	f.StringToStringVar(&e.Defaults, "default", nil, "Default for an unmatched column, e.g. numVotes=0.")
	f.StringToStringVar(&types, "types", nil, "Column types used for defaults, e.g. numVotes=int.")
	f.StringVar(&comma, "comma", "\t", "Field delimiter.")
	return cmd
}

func newProbeCommand(stdout io.Writer) *cobra.Command {
	var (
		opt   probe.Options
		comma string
	)
	cmd := &cobra.Command{
		Use:   "probe LOCATION",
		Short: "Sample a dataset and print a draft pipeline file for it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opt.TSV, err = tsvOptions(comma); err != nil {
				return err
			}
			opt.Location = args[0]
			res, err := probe.Probe(cmd.Context(), opt)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(res.Pipeline, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\n", b)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&opt.MaxRows, "max-rows", probe.DefaultMaxRows, "Data rows to sample.")
	f.StringVar(&opt.Name, "name", "", "Job and collection name (default: from the file name).")
	f.StringVar(&opt.Backend, "backend", "", "Storage kind for the draft (default: memory).")
	f.StringVar(&comma, "comma", "\t", "Field delimiter.")
	return cmd
}

func tsvOptions(comma string) (tsv.Options, error) {
	if utf8.RuneCountInString(comma) != 1 {
		return tsv.Options{}, errors.Newf(errors.ErrConfig, "--comma must be a single character, got %q", comma)
	}
	r, _ := utf8.DecodeRuneInString(comma)
	return tsv.Options{Comma: r}, nil
}
