package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kiln-ml/kiln/internal/epctx"
)

func newVerifyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "verify <cache.bin> [cache.bin...]",
		Short: "Check external cache binaries against their digest manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g := new(errgroup.Group)
			g.SetLimit(limit)
			for _, path := range args {
				path := path
				g.Go(func() error {
					if err := epctx.VerifyCacheBinary(path); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&limit, "concurrency", 4, "Maximum files verified in parallel")

	return cmd
}
