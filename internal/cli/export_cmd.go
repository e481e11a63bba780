// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Write a marketplace report to a file.
//
// Command: export <transactions|skills|agents|reviews>
// Short:   Export a collection as CSV, JSON or Markdown
//
// Examples:
//   squidops export transactions
//   squidops export skills --format json --out ./reports

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/session"
)

// exportKinds maps the export argument to the fetch that builds its document.
var exportKinds = map[string]func(ctx context.Context, b market.Backend) (*export.Document, error){
	"transactions": func(ctx context.Context, b market.Backend) (*export.Document, error) {
		txs, _, err := market.FetchTransactions(ctx, b)
		if err != nil {
			return nil, err
		}
		return market.TransactionsDocument(txs), nil
	},
	"skills": func(ctx context.Context, b market.Backend) (*export.Document, error) {
		skills, err := market.FetchSkills(ctx, b)
		if err != nil {
			return nil, err
		}
		return market.SkillsDocument(skills), nil
	},
	"agents": func(ctx context.Context, b market.Backend) (*export.Document, error) {
		agents, err := market.FetchAgents(ctx, b)
		if err != nil {
			return nil, err
		}
		return market.AgentsDocument(agents), nil
	},
	"reviews": func(ctx context.Context, b market.Backend) (*export.Document, error) {
		reviews, err := market.FetchReviews(ctx, b)
		if err != nil {
			return nil, err
		}
		return market.ReviewsDocument(reviews), nil
	},
}

var exportKindNames = []string{"transactions", "skills", "agents", "reviews"}

func (a *App) exportCommand() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:       "export <" + strings.Join(exportKindNames, "|") + ">",
		Short:     "Export a collection to a file",
		Long:      "Fetches the whole collection and writes squidbay-<kind>-<date>.<ext> to the output directory.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: exportKindNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, args[0], format, out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv, json or md (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default from config)")
	return cmd
}

func (a *App) runExport(cmd *cobra.Command, kind, format, out string) error {
	build, ok := exportKinds[kind]
	if !ok {
		return NewValidationError("collection", kind, "one of "+strings.Join(exportKindNames, ", "))
	}
	if format == "" {
		format = a.cfg.Export.Format
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	exporter, err := export.ExporterFor(f)
	if err != nil {
		return err
	}
	if out == "" {
		out = a.cfg.Export.Dir
	}

	var data ExportData
	err = a.withSession(cmd.Context(), func(ctrl *session.Controller) error {
		doc, err := build(cmd.Context(), ctrl)
		if err != nil {
			return NewCommandError("export", "fetch "+kind, err)
		}
		path, err := export.ExportToFile(doc, exporter, &export.Options{
			OutputDir:       out,
			OpenAfterExport: a.cfg.Export.OpenAfterExport,
		})
		if err != nil {
			return NewCommandError("export", "write", err)
		}
		ctrl.Audit("export_"+kind, fmt.Sprintf("%d rows as %s", len(doc.Rows), f))
		a.logger.Info("EXPORT_WRITTEN", zap.String("kind", kind), zap.String("path", path), zap.Int("rows", len(doc.Rows)))
		data = ExportData{Kind: kind, Format: string(f), Path: path, Rows: len(doc.Rows)}
		return nil
	})
	if err != nil {
		return err
	}

	if a.JSON {
		return NewJSONResponse("export", data).Write(a.Out)
	}
	fmt.Fprintf(a.Out, "%s Saved %s (%d rows)\n", RenderStatus("ok"), data.Path, data.Rows)
	return nil
}
