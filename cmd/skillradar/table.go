package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// table buffers rows and renders them borderless and left aligned.
type table struct {
	t      *tablewriter.Table
	header []string
	rows   [][]string
}

func newTable(w io.Writer, header ...string) *table {
	t := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	return &table{t: t, header: header}
}

func (t *table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) Render() error {
	t.t.Header(t.header)
	if err := t.t.Bulk(t.rows); err != nil {
		return err
	}
	return t.t.Render()
}
