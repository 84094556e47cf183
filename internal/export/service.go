package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"receiptbot/internal/repository"
)

// Service produces XLSX bytes from a user's payment history.
type Service struct {
	payments repository.PaymentRepository
	logger   *slog.Logger
}

func NewService(payments repository.PaymentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{payments: payments, logger: logger}
}

// PaymentsXLSX returns a workbook with one row per payment, newest first,
// plus a total row.
func (s *Service) PaymentsXLSX(ctx context.Context, userID string) ([]byte, error) {
	start := time.Now()

	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Payments"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// drop the default sheet excelize creates
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Date", "Company", "Price (₪)"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	total := decimal.Zero
	row := 2
	for _, p := range payments {
		write(1, row, p.Date.Format("02/01/2006"))
		write(2, row, p.Company)
		write(3, row, p.Price.StringFixed(2))
		total = total.Add(p.Price)
		row++
	}
	write(2, row, "Total")
	write(3, row, total.StringFixed(2))

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID,
		"rows", len(payments),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
