package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/olekukonko/tablewriter"
)

func defaultTable(writer io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetRowLine(true)
	return table
}

// renderCampaign writes the aggregate as indented JSON or as a table of its
// rows followed by a one-line summary.
func renderCampaign(w io.Writer, c fleet.DistributedQueryCampaign, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	table := defaultTable(w)
	table.SetHeader([]string{"hostname", "feature", "value"})
	for _, row := range c.QueryResults {
		table.Append([]string{row.Hostname, row.Feature, row.Value})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "%d rows from %d hosts%s\n", len(c.QueryResults), len(c.Hosts), totalsSummary(c.Totals))
	return err
}

func totalsSummary(totals *fleet.CampaignTotals) string {
	if totals == nil {
		return ""
	}
	return fmt.Sprintf(" (%d targeted, %d online)", totals.Count, totals.Online)
}

// progressLine summarises how far along the campaign is.
func progressLine(c fleet.DistributedQueryCampaign, status *fleet.CampaignStatus) string {
	var percentTotal, percentOnline float64
	var total, online uint
	responded := uint(len(c.Hosts))
	if c.Totals != nil {
		total = c.Totals.Count
		online = c.Totals.Online
		if total > 0 {
			percentTotal = 100 * float64(responded) / float64(total)
		}
		if online > 0 {
			percentOnline = 100 * float64(responded) / float64(online)
		}
	}
	line := fmt.Sprintf("  %.f%% responded (%.f%% online) | %d/%d targeted hosts (%d/%d online) | %d rows",
		percentTotal, percentOnline, responded, total, responded, online, len(c.QueryResults))
	if status != nil && status.Status == fleet.CampaignStatusFinished {
		line += " | finished"
	}
	return line
}
