package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/datallboy/gotrack/internal/domain"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func renderOutcomes(outcomes []domain.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for i, o := range outcomes {
		detail := o.Path
		if o.Status != domain.OutcomeDone {
			detail = o.Reason
		}
		size := ""
		if o.Bytes > 0 {
			size = humanize.Bytes(uint64(o.Bytes))
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			o.Artist,
			o.Title,
			string(o.Status),
			o.Quality,
			size,
			detail,
		})
	}
	return renderTable(
		[]string{"#", "Artist", "Title", "Status", "Quality", "Size", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func summaryLine(b *domain.Batch) string {
	c := b.Counts()
	return fmt.Sprintf("%s: %d done, %d skipped, %d failed, %s written",
		b.Name, c[domain.OutcomeDone], c[domain.OutcomeSkipped], c[domain.OutcomeFailed],
		humanize.Bytes(uint64(b.BytesWritten.Load())))
}
