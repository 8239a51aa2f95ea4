package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw965/texplore/policyio"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect stored policy files",
	}
	var filename string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print every state and its Q values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(filename)
			if err != nil {
				return err
			}
			defer f.Close()
			pol, err := policyio.ReadPolicy(f)
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "features=%d actions=%d states=%d\n", pol.FeatureSize, pol.NumActions, len(pol.Records))
			for _, rec := range pol.Records {
				fmt.Fprintf(out, "%s\t%s\n", join(rec.State), join(rec.Q))
			}
			return nil
		},
	}
	dump.Flags().StringVar(&filename, "filename", "", "policy file")
	_ = dump.MarkFlagRequired("filename")
	cmd.AddCommand(dump)
	return cmd
}

func join(xs []float32) string {
	ss := make([]string, len(xs))
	for i, x := range xs {
		ss[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(ss, " ")
}
