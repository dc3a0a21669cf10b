/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package main

import (
	"context"

	"github.com/spf13/cobra"
)

// newRootCmd creates the base command when called without any subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zoo-server",
		Short: "GraphQL API for animals kept by a zoo",
		Long: `
zoo-server keeps animal records in memory and serves them over a GraphQL API.
Animals can be listed, looked up by id, created, modified and deleted by name.
`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the command selected by command line arguments. Commands that block stop when ctx
// is done.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
