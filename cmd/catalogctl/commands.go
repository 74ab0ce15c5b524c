package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shopbot-api/internal/app"
	"shopbot-api/internal/catalog"
	"shopbot-api/internal/model"
	"shopbot-api/internal/repository"
)

const stampLayout = "2006-01-02 15:04"

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored catalog without contacting upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				doc, err := comps.Store.Load(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if doc == nil {
					fmt.Fprintln(out, "No catalog stored")
					return nil
				}

				staleAfter := comps.Config.Catalog.PriceStaleAfter
				rows := [][]string{
					{"Format version", formatVersion(doc.FormatVersion)},
					{"Catalog version", doc.CatalogVersion},
					{"Items", strconv.Itoa(len(doc.Items))},
					{"Rarities", strconv.Itoa(len(doc.Rarities))},
					{"Prices", strconv.Itoa(len(doc.Prices.Prices))},
					{"Prices refreshed", stamp(doc.Prices.LastRefreshedAt)},
					{"Prices stale", strconv.FormatBool(doc.Prices.Stale(time.Now(), staleAfter))},
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search items by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				results, err := comps.Catalog.Search(c, query)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(out, "No items match %q\n", query)
					return nil
				}
				if limit > 0 && len(results) > limit {
					results = results[:limit]
				}
				printItems(out, results)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum results to show (0 for all)")
	return cmd
}

func newItemCommand(ctx *commandContext) *cobra.Command {
	var identity string

	cmd := &cobra.Command{
		Use:   "item <id>",
		Short: "Show one item, with its price when an identity is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				view, err := comps.Catalog.GetItem(c, args[0], identity)
				if err != nil {
					return fmt.Errorf("item %s: %w", args[0], err)
				}
				printItems(cmd.OutOrStdout(), []model.ItemView{*view})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Identity to fetch prices with")
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Check the upstream version and rebuild the catalog if it changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				before := comps.Catalog.Stats().CatalogVersion
				if err := comps.Catalog.EnsureFresh(c, true); err != nil {
					return err
				}
				stats := comps.Catalog.Stats()
				out := cmd.OutOrStdout()
				if before != "" && before == stats.CatalogVersion {
					fmt.Fprintf(out, "Catalog %s is current\n", stats.CatalogVersion)
				} else {
					fmt.Fprintf(out, "Catalog updated to %s\n", stats.CatalogVersion)
				}
				printStats(out, stats)
				return nil
			})
		},
	}
}

func newPricesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Refresh the price table using the stored identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				if err := comps.Catalog.EnsureFresh(c, false); err != nil {
					return err
				}
				refreshed, err := comps.Catalog.RefreshPrices(c)
				if err != nil {
					return err
				}
				stats := comps.Catalog.Stats()
				out := cmd.OutOrStdout()
				if refreshed {
					fmt.Fprintf(out, "Refreshed %d prices using %s\n", stats.Prices, stats.LastPriceIdentity)
				} else {
					fmt.Fprintf(out, "Prices not refreshed: %s\n", stats.LastPriceOutcome)
				}
				return nil
			})
		},
	}
}

func newIdentitiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "identities",
		Short: "List stored identities in price refresh order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(c context.Context, comps *app.Components) error {
				ids, err := comps.Identities.ListIdentities(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "No identities stored")
					return nil
				}

				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					identity, err := comps.Identities.GetIdentity(c, id)
					if err != nil {
						return err
					}
					if identity == nil {
						continue
					}
					usable, err := comps.Identities.Authenticate(c, id)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						identity.ID,
						identity.Username,
						identity.Region,
						tokenExpiry(identity.AccessToken),
						strconv.FormatBool(usable),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Username", "Region", "Token expires", "Usable"}, rows, nil))
				return nil
			})
		},
	}
}

func printItems(out io.Writer, items []model.ItemView) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rarity := "-"
		if item.Rarity != nil {
			rarity = item.Rarity.Name
		}
		price := "-"
		if item.Price != nil {
			price = strconv.Itoa(*item.Price)
		}
		rows = append(rows, []string{item.ID, item.DisplayName, rarity, price})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Rarity", "Price"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
}

func printStats(out io.Writer, stats catalog.Stats) {
	rows := [][]string{
		{"Items", strconv.Itoa(stats.Items)},
		{"Prices", strconv.Itoa(stats.Prices)},
		{"Prices refreshed", stamp(stats.PricesRefreshedAt)},
		{"Last rebuild", stamp(stats.LastRebuildAt)},
	}
	if stats.LastPriceOutcome != "" {
		rows = append(rows, []string{"Last price refresh", stats.LastPriceOutcome})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}

func formatVersion(v int) string {
	s := strconv.Itoa(v)
	if v != model.CatalogFormatVersion {
		s += " (outdated, rebuilt on next refresh)"
	}
	return s
}

func tokenExpiry(token string) string {
	exp, err := repository.TokenExpiry(token)
	if err != nil {
		return "invalid"
	}
	if exp.IsZero() {
		return "never"
	}
	return exp.Local().Format(stampLayout)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(stampLayout)
}
