// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/seedlink/internal/config"
	"github.com/ManuGH/seedlink/internal/daemon"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/log"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "scan <category>",
		Short: "Index one category and print its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := library.ParseCategory(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			lib, err := openLibrary(cfg)
			if err != nil {
				return err
			}

			entries, err := lib.Entries(cmd.Context(), cat, query)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tTITLE\tFORMAT\tSIZE\tPATH")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Group, e.DisplayTitle(), e.Extension, e.SizeBytes, e.RemotePath)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			log.WithComponent("scan").Info().
				Str(log.FieldCategory, string(cat)).
				Int("entries", len(entries)).
				Msg("scan complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only list entries whose group or title matches")
	return cmd
}

func openLibrary(cfg config.AppConfig) (*library.Library, error) {
	src, err := daemon.NewSource(cfg.Remote, log.Base())
	if err != nil {
		return nil, err
	}
	return daemon.NewLibrary(src, cfg, log.Base())
}
