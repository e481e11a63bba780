// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Inspect the effective configuration.
//
// Command: config [show|path]
// Short:   Show the configuration or where it is read from
//
// Examples:
//   squidops config show
//   squidops config show --json
//   squidops config path

package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the configuration or its path",
		Args:  cobra.NoArgs,
		RunE:  a.runConfigShow,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as TOML",
			Long:  "Prints the configuration after file, environment and flag overrides.",
			Args:  cobra.NoArgs,
			RunE:  a.runConfigShow,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE:  a.runConfigPath,
		},
	)
	return cmd
}

func (a *App) runConfigShow(cmd *cobra.Command, args []string) error {
	if a.JSON {
		return NewJSONResponse("config show", a.cfg).Write(a.Out)
	}
	fmt.Fprint(a.Out, a.cfg.String())
	return nil
}

func (a *App) runConfigPath(cmd *cobra.Command, args []string) error {
	_, err := os.Stat(a.cfgPath)
	data := ConfigPathData{Path: a.cfgPath, Exists: err == nil}
	if a.JSON {
		return NewJSONResponse("config path", data).Write(a.Out)
	}
	fmt.Fprintln(a.Out, data.Path)
	if !data.Exists {
		fmt.Fprintln(a.Err, DimStyle.Render("(not created yet; defaults are in use)"))
	}
	return nil
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := VersionData{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if a.JSON {
				return NewJSONResponse("version", data).Write(a.Out)
			}
			fmt.Fprintf(a.Out, "squidops %s (%s, built %s)\n", data.Version, data.GitCommit, data.BuildDate)
			fmt.Fprintf(a.Out, "%s %s\n", data.GoVersion, data.Platform)
			return nil
		},
	}
}
