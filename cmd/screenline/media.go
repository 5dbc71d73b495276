// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/media"
)

// newMediaCmd creates the "screenline media" command group.
func newMediaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage media on the signage platform",
	}
	cmd.AddCommand(newMediaUploadCmd(opts))
	return cmd
}

func newMediaUploadCmd(opts *rootOptions) *cobra.Command {
	var (
		name      string
		tags      []string
		workspace int
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a local video and wait until it is playable",
		Long: "Creates a local video on the platform, uploads the file to its signed URL\n" +
			"and waits until the platform has finished processing it. The media is\n" +
			"printed as JSON; its id is the asset_media_id of a placement plan.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			if !info.Mode().IsRegular() || info.Size() == 0 {
				return fmt.Errorf("upload: %s is not a non-empty file", path)
			}

			ext := filepath.Ext(path)
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), ext)
			}
			contentType := mime.TypeByExtension(ext)
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			a, err := openSignage(opts.cfg, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			platform, err := a.provider.Platform(cmd.Context())
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			m, err := media.NewResolver(platform, mediaOptions(opts.cfg.Media)).UploadLocalVideo(cmd.Context(), media.UploadInput{
				Name:        name,
				Tags:        tags,
				Workspace:   workspace,
				Format:      strings.TrimPrefix(strings.ToLower(ext), "."),
				ContentType: contentType,
				Size:        info.Size(),
				Body:        f,
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "media name (default: file name without extension)")
	flags.StringSliceVar(&tags, "tag", nil, "media tag, repeatable")
	flags.IntVar(&workspace, "workspace", 0, "workspace id")
	return cmd
}
