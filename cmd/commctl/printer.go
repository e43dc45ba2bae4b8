package main

import (
	"comm-rendezvous/domain"
	"comm-rendezvous/internal"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type printer struct {
	w       io.Writer
	colours bool
}

func newPrinter(w io.Writer, colours bool) *printer {
	return &printer{w: w, colours: colours}
}

func (p *printer) header(text string) {
	text = fmt.Sprintf("  ====== %s ======", text)
	if p.colours {
		text = color.New(color.BgBlack, color.FgGreen).Render(text)
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) info(text string) {
	if p.colours {
		text = color.FgCyan.Render(text)
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) warn(text string) {
	if p.colours {
		text = color.FgYellow.Render(text)
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) workers(health []domain.WorkerHealth) {
	table := p.table([]string{"Worker", "Status", "PID", "PID Status", "CPU", "RAM", "Sessions", "Last seen"})
	for _, w := range health {
		status := string(w.Status)
		if p.colours && w.Status == domain.GHOST {
			status = color.FgRed.Render(status)
		}
		table.Append([]string{
			string(w.ID),
			status,
			strconv.FormatInt(w.Stats.PID, 10),
			string(w.Stats.PIDStatus),
			fmt.Sprintf("%.1f%%", w.Stats.CPU),
			fmt.Sprintf("%.1f MiB", float64(w.Stats.RAM)/(1<<20)),
			strconv.Itoa(w.Stats.Sessions),
			w.LastSeen.Format(time.TimeOnly),
		})
	}
	table.Render()
}

func (p *printer) sessions(snapshot map[domain.SessionID]domain.Entry) {
	table := p.table([]string{"Session", "Rank", "Size", "Group", "Endpoints"})
	for _, row := range internal.ToSessionRows(snapshot) {
		addresses := make([]string, 0, len(row.Endpoints))
		for _, ep := range row.Endpoints {
			addresses = append(addresses, ep.Address)
		}
		table.Append([]string{
			string(row.SessionID),
			strconv.Itoa(row.Rank),
			strconv.Itoa(row.Size),
			row.Group,
			strings.Join(addresses, " "),
		})
	}
	table.Render()
}

func (p *printer) ranks(participants []domain.Identity, handles map[domain.Identity]domain.HandleInfo) {
	table := p.table([]string{"Rank", "Worker", "Handle", "Group"})
	for rank, id := range participants {
		h := handles[id]
		table.Append([]string{
			strconv.Itoa(rank),
			string(id),
			fmt.Sprintf("%d/%d", h.Rank, h.Size),
			h.Fingerprint,
		})
	}
	table.Render()
}

func (p *printer) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(p.w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
