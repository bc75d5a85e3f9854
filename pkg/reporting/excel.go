package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/zeedohq/reversal-bot/internal/storage"
)

const (
	tradesSheet  = "Trades"
	summarySheet = "Summary"
)

// WriteXLSX exports the ledger and its summary to a workbook.
func WriteXLSX(ledger []storage.LedgerEntry, s *Summary, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := writeTrades(fx, ledger, headerStyle); err != nil {
		return err
	}
	if err := writeSummary(fx, s, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeTrades(fx *excelize.File, ledger []storage.LedgerEntry, headerStyle int) error {
	headers := []string{"Time", "Symbol", "Timeframe", "Side", "Trade ID", "Order ID", "Fills", "PnL USD"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(tradesSheet, cell, h); err != nil {
			return err
		}
		fx.SetCellStyle(tradesSheet, cell, cell, headerStyle)
	}

	for row, entry := range ledger {
		values := []interface{}{
			entry.Time.Format("2006-01-02 15:04:05"),
			entry.Symbol,
			entry.Timeframe,
			entry.Side,
			entry.TradeID,
			entry.OID,
			entry.NumFills,
			entry.PnlUSD,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(tradesSheet, cell, v); err != nil {
				return err
			}
		}
	}

	fx.SetColWidth(tradesSheet, "A", "A", 20)
	fx.SetColWidth(tradesSheet, "E", "F", 24)
	return nil
}

func writeSummary(fx *excelize.File, s *Summary, headerStyle int) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total PnL", s.TotalPnl},
		{"Trades", s.Trades},
		{"Closing Orders", s.Orders},
		{"Winning Trades", s.WinningTrades},
		{"Losing Trades", s.LosingTrades},
		{"Win Rate", s.WinRate()},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := fx.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
			if r == 0 {
				fx.SetCellStyle(summarySheet, cell, cell, headerStyle)
			}
		}
	}

	start := len(rows) + 2
	perSymbolHeader := []interface{}{"Symbol", "Orders", "PnL"}
	for c, v := range perSymbolHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, start)
		if err := fx.SetCellValue(summarySheet, cell, v); err != nil {
			return err
		}
		fx.SetCellStyle(summarySheet, cell, cell, headerStyle)
	}
	for i, sym := range s.BySymbol {
		values := []interface{}{sym.Symbol, sym.Orders, sym.Pnl}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, start+1+i)
			if err := fx.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
		}
	}

	fx.SetColWidth(summarySheet, "A", "A", 18)
	return nil
}
