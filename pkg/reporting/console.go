package reporting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteConsole renders the summary as rounded tables.
func WriteConsole(w io.Writer, s *Summary) {
	header := table.NewWriter()
	header.SetOutputMirror(w)
	header.SetStyle(table.StyleRounded)
	header.SetTitle("📊 Trade Summary")
	header.AppendRows([]table.Row{
		{"Total PnL", fmt.Sprintf("$%.2f", s.TotalPnl)},
		{"Trades", s.Trades},
		{"Closing Orders", s.Orders},
		{"Winning", s.WinningTrades},
		{"Losing", s.LosingTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate()*100)},
	})
	header.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 12, Align: text.AlignRight},
	})
	header.Render()

	if len(s.BySymbol) > 0 {
		symbols := table.NewWriter()
		symbols.SetOutputMirror(w)
		symbols.SetStyle(table.StyleRounded)
		symbols.SetTitle("By Symbol")
		symbols.AppendHeader(table.Row{"Symbol", "Orders", "PnL"})
		for _, sym := range s.BySymbol {
			symbols.AppendRow(table.Row{sym.Symbol, sym.Orders, fmt.Sprintf("$%.2f", sym.Pnl)})
		}
		symbols.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
		})
		symbols.Render()
	}

	if len(s.ByTrade) > 0 {
		trades := table.NewWriter()
		trades.SetOutputMirror(w)
		trades.SetStyle(table.StyleRounded)
		trades.SetTitle("Trades")
		trades.AppendHeader(table.Row{"Closed", "Trade", "Symbol", "TF", "Side", "Orders", "PnL"})
		for _, trade := range s.ByTrade {
			tf := trade.Timeframe
			if tf == "" {
				tf = "-"
			}
			trades.AppendRow(table.Row{
				trade.ClosedAt.Format("2006-01-02 15:04"),
				trade.TradeID,
				trade.Symbol,
				tf,
				trade.Side,
				trade.Orders,
				fmt.Sprintf("$%.2f", trade.Pnl),
			})
		}
		trades.SetColumnConfigs([]table.ColumnConfig{
			{Number: 7, Align: text.AlignRight},
		})
		trades.Render()
	}
}
