package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/erpctl/internal/app"
	"github.com/florianilch/erpctl/internal/customers"
	"github.com/florianilch/erpctl/internal/session"
)

// maxNameWidth truncates long names in table output.
const maxNameWidth = 32

func customersCommand() *cli.Command {
	return &cli.Command{
		Name:  "customers",
		Usage: "work with the customer directory",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list customers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "page number; 0 lists all customers",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "page size",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print raw JSON",
					},
				},
				Action: customersListAction,
			},
		},
	}
}

func customersListAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		var (
			list   []customers.Customer
			footer string
		)
		if page := cmd.Int("page"); page > 0 {
			p, err := a.Customers().Page(ctx, page, cmd.Int("limit"))
			if err != nil {
				return err
			}
			list = p.Customers
			footer = fmt.Sprintf("Page %d of %d (%d customers)", p.Pagination.Page, p.Pagination.TotalPages, p.Pagination.Total)
		} else {
			all, err := a.Customers().List(ctx)
			if err != nil {
				return err
			}
			list = all
		}

		w := cmd.Root().Writer
		if cmd.Bool("json") {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if err := writeCustomerTable(w, list); err != nil {
			return err
		}
		if footer != "" {
			_, err := fmt.Fprintln(w, footer)
			return err
		}
		return nil
	})
}

func writeCustomerTable(w io.Writer, list []customers.Customer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tBUSINESS NAME\tREPRESENTATIVE\tRNC\tEMAIL\tACTIVE")
	for _, c := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			customers.TruncateText(c.BusinessName, maxNameWidth),
			customers.TruncateText(customers.FormatName(c.RepresentativeName), maxNameWidth),
			customers.FormatRNC(deref(c.RNC)),
			deref(c.Email),
			yesNo(c.IsActive),
		)
	}
	return tw.Flush()
}

func joinRoles(roles []session.Role) string {
	s := make([]string, len(roles))
	for i, r := range roles {
		s[i] = string(r)
	}
	return strings.Join(s, ", ")
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
