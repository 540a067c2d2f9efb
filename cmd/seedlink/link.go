// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/seedlink/internal/daemon"
	"github.com/ManuGH/seedlink/internal/gateway"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
)

func newLinkCmd(opts *rootOptions) *cobra.Command {
	var (
		action string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "link <category> <group> <title>",
		Short: "Issue a signed link for a library entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := library.ParseCategory(args[0])
			if err != nil {
				return err
			}
			act := linksign.Action(strings.ToLower(action))
			if !act.Valid() {
				return fmt.Errorf("unknown action %q", action)
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.HTTP.PublicBaseURL == "" {
				return fmt.Errorf("PUBLIC_BASE_URL is required to print links")
			}
			if ttl <= 0 {
				ttl = cfg.Links.TTL
			}

			lib, err := openLibrary(cfg)
			if err != nil {
				return err
			}
			e, err := lib.Preferred(cmd.Context(), cat, args[1], args[2])
			if err != nil {
				return err
			}
			signer, err := daemon.NewSigner(cfg.Links)
			if err != nil {
				return err
			}
			tok, err := signer.Issue(e.Ref(), act, ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, gateway.PageURL(cfg.HTTP.PublicBaseURL, tok))
			fmt.Fprintln(out, gateway.DirectURL(cfg.HTTP.PublicBaseURL, tok))
			fmt.Fprintf(out, "expires %s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", string(linksign.ActionDownload), "link action: download or stream")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "link lifetime (default from config)")
	return cmd
}
