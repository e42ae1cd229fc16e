package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dentdesk/dentdesk/internal/domain/catalog"
)

func printCatalog(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tPRICE\tMINUTES\tSUPPLIES")
	for _, p := range catalog.All() {
		supplies := make([]string, len(p.Supplies))
		for i, s := range p.Supplies {
			supplies[i] = fmt.Sprintf("%s x%d", s.SKU, s.Qty)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Key, p.Name, p.Price.StringFixed(2), p.DurationMinutes, strings.Join(supplies, ", "))
	}
	return w.Flush()
}
