// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// skills_cmd.go - List skills from the command line.
//
// Command: skills
// Short:   List marketplace skills with search, filter and sort
//
// Examples:
//   squidops skills
//   squidops skills --filter inactive
//   squidops skills --search tide --sort trust-desc --json

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/session"
)

type skillsFlags struct {
	search   string
	filter   string
	sort     string
	category string
}

func (a *App) skillsCommand() *cobra.Command {
	var f skillsFlags
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List marketplace skills",
		Long: `Lists every skill, including inactive ones, with the same search,
filter and sort the console's Skills tab offers.

Filters: all, active, inactive
Sorts:   name-asc, name-desc, trust-desc, trust-asc, jobs-desc, created-desc, created-asc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSkills(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "case-insensitive search over name, agent, category and description")
	cmd.Flags().StringVar(&f.filter, "filter", "all", "all, active or inactive")
	cmd.Flags().StringVar(&f.sort, "sort", "name-asc", "sort order")
	cmd.Flags().StringVar(&f.category, "category", "", "only skills in this category")
	return cmd
}

func (a *App) runSkills(cmd *cobra.Command, f skillsFlags) error {
	var skills *market.Skills
	err := a.withSession(cmd.Context(), func(ctrl *session.Controller) error {
		skills = market.NewSkills(ctrl, market.WithLogger(a.logger.Logger))
		if err := skills.SetFilter(f.filter); err != nil {
			return NewValidationError("filter", f.filter, "one of "+choiceNames(skills.Filters()))
		}
		if err := skills.SetSort(f.sort); err != nil {
			return NewValidationError("sort", f.sort, "one of "+choiceNames(skills.Sorts()))
		}
		skills.SetSearch(f.search)
		skills.SetFacet(f.category)
		return NewCommandError("skills", "load", skills.Load(cmd.Context()))
	})
	if err != nil {
		return err
	}

	visible := skills.Visible()
	if a.JSON {
		data := SkillsData{Filter: f.filter, Sort: f.sort, Total: skills.Len(), Skills: make([]SkillEntry, len(visible))}
		for i, s := range visible {
			data.Skills[i] = SkillEntry{
				ID:       s.ID,
				Name:     s.Name,
				Agent:    s.AgentName,
				Category: s.Category,
				Active:   s.Active,
				Trust:    s.Trust(),
				Jobs:     s.SuccessCount,
			}
		}
		return NewJSONResponse("skills", data).Write(a.Out)
	}

	if len(visible) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No skills match."))
		return nil
	}
	doc := market.SkillsDocument(visible)
	fmt.Fprintln(a.Out, RenderTable(doc.Headers, doc.Rows, 0))
	fmt.Fprintln(a.Out, DimStyle.Render(fmt.Sprintf("%d of %d skills", len(visible), skills.Len())))
	return nil
}

func choiceNames(cs []listview.Choice) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
