package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	gridSheet   = "Загрузка"
	ledgerSheet = "Бронирования"

	// MaxPeriodDays ограничивает ширину сетки загрузки
	MaxPeriodDays = 62

	pageSize = 500
)

// BookingLister pages through the booking ledger.
type BookingLister interface {
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}

// Period is an inclusive range of calendar days.
type Period struct {
	From time.Time
	To   time.Time
}

// ParsePeriod validates a YYYY-MM-DD range.
func ParsePeriod(from, to string) (Period, error) {
	start, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return Period{}, domain.Invalid("date_from", "expected YYYY-MM-DD, got %q", from)
	}
	end, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return Period{}, domain.Invalid("date_to", "expected YYYY-MM-DD, got %q", to)
	}
	if end.Before(start) {
		return Period{}, domain.Invalid("date_to", "must not be before date_from")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxPeriodDays {
		return Period{}, domain.Invalid("date_to", "period of %d days exceeds %d", days, MaxPeriodDays)
	}
	return Period{From: start, To: end}, nil
}

func (p Period) days() []string {
	var out []string
	for d := p.From; !d.After(p.To); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(models.DateLayout))
	}
	return out
}

// LoadBookings reads every booking of the period, page by page.
func LoadBookings(ctx context.Context, lister BookingLister, p Period) ([]models.Booking, error) {
	var all []models.Booking
	for offset := 0; ; offset += pageSize {
		page, err := lister.ListBookings(ctx, models.BookingFilter{
			DateFrom: p.From.Format(models.DateLayout),
			DateTo:   p.To.Format(models.DateLayout),
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// WriteBookings renders an occupancy grid (resources x days) and a flat ledger sheet as XLSX.
func WriteBookings(w io.Writer, p Period, loc *time.Location, resources []models.Resource, bookings []models.Booking) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(gridSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(ledgerSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	days := p.days()
	writeGrid(f, styles, p, loc, days, resources, bookings)
	if err := writeLedger(f, styles, loc, bookings); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

type styles struct {
	title, dateHeader, rowHeader, money  int
	free, full, unconfirmed, allConfirmed int
}

func newStyles(f *excelize.File) (styles, error) {
	var (
		s   styles
		err error
	)
	cell := func(color string) (int, error) {
		return f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		})
	}
	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.dateHeader, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.rowHeader, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	}); err != nil {
		return s, err
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: ptr("#,##0.00")}); err != nil {
		return s, err
	}
	if s.free, err = cell("#FFFFFF"); err != nil {
		return s, err
	}
	if s.full, err = cell("#FFC7CE"); err != nil {
		return s, err
	}
	if s.unconfirmed, err = cell("#FFEB9C"); err != nil {
		return s, err
	}
	s.allConfirmed, err = cell("#C6EFCE")
	return s, err
}

func ptr[T any](v T) *T { return &v }

func writeGrid(f *excelize.File, st styles, p Period, loc *time.Location, days []string, resources []models.Resource, bookings []models.Booking) {
	_ = f.SetCellValue(gridSheet, "A1", fmt.Sprintf("Период: %s - %s", p.From.Format("02.01.2006"), p.To.Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(days) + 1)
	_ = f.MergeCell(gridSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(gridSheet, "A1", "A1", st.title)

	cols := make(map[string]int, len(days))
	for i, day := range days {
		col := i + 2
		cols[day] = col
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		d, _ := time.Parse(models.DateLayout, day)
		_ = f.SetCellValue(gridSheet, cell, d.Format("02.01"))
		_ = f.SetCellStyle(gridSheet, cell, cell, st.dateHeader)
	}

	// resource -> date -> bookings
	byCell := make(map[string]map[string][]models.Booking)
	for _, b := range bookings {
		if byCell[b.ResourceID] == nil {
			byCell[b.ResourceID] = make(map[string][]models.Booking)
		}
		byCell[b.ResourceID][b.Date] = append(byCell[b.ResourceID][b.Date], b)
	}

	for i, r := range resources {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(gridSheet, cell, fmt.Sprintf("%s (%d)", r.Name, r.Capacity()))
		_ = f.SetCellStyle(gridSheet, cell, cell, st.rowHeader)

		for _, day := range days {
			cell, _ := excelize.CoordinatesToCellName(cols[day], row)
			dayBookings := byCell[r.ID][day]
			_ = f.SetCellValue(gridSheet, cell, cellText(r, dayBookings, loc))
			_ = f.SetCellStyle(gridSheet, cell, cell, cellStyle(st, r, dayBookings))
		}
	}

	_ = f.SetColWidth(gridSheet, "A", "A", 25)
	if len(days) > 0 {
		_ = f.SetColWidth(gridSheet, "B", lastCol, 24)
	}
}

func cellText(r models.Resource, bookings []models.Booking, loc *time.Location) string {
	if len(bookings) == 0 {
		return "Свободно"
	}
	var text string
	for _, b := range bookings {
		slot := b.StartAt.In(loc).Format(models.TimeLayout)
		if b.SlotLabel != "" {
			slot = b.SlotLabel
		}
		text += fmt.Sprintf("%s %s %s (%s)\n", statusIcon(b.Status), slot, b.CustomerName, b.CustomerPhone)
	}
	return text + fmt.Sprintf("\nАктивных: %d, лодок: %d", activeCount(bookings), r.Capacity())
}

func cellStyle(st styles, r models.Resource, bookings []models.Booking) int {
	active := activeCount(bookings)
	switch {
	case active == 0:
		return st.free
	case active >= r.Capacity():
		return st.full
	}
	for _, b := range bookings {
		if b.Status == models.StatusPendingPayment {
			return st.unconfirmed
		}
	}
	return st.allConfirmed
}

func activeCount(bookings []models.Booking) int {
	n := 0
	for _, b := range bookings {
		if b.Status.HoldsCapacity() {
			n++
		}
	}
	return n
}

func statusIcon(s models.BookingStatus) string {
	switch s {
	case models.StatusConfirmed, models.StatusCompleted:
		return "✅"
	case models.StatusPendingPayment:
		return "⏳"
	case models.StatusCancelled:
		return "❌"
	case models.StatusNoShow:
		return "🚫"
	default:
		return "❓"
	}
}

func writeLedger(f *excelize.File, st styles, loc *time.Location, bookings []models.Booking) error {
	headers := []string{
		"Номер", "Дата", "Начало", "Лодка", "Клиент", "Телефон",
		"Статус", "Оплата", "Итого", "К оплате", "Возврат",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ledgerSheet, cell, h)
	}
	_ = f.SetCellStyle(ledgerSheet, "A1", "K1", st.dateHeader)

	for i, b := range bookings {
		row := i + 2
		var refund int64
		if b.Cancellation != nil {
			refund = b.Cancellation.RefundAmount
		}
		values := []any{
			b.BookingNumber,
			b.Date,
			b.StartAt.In(loc).Format(models.TimeLayout),
			b.ResourceID,
			b.CustomerName,
			b.CustomerPhone,
			string(b.Status),
			string(b.PaymentStatus),
			major(b.Pricing.FinalAmount),
			major(b.Pricing.PayableAmount()),
			major(refund),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(ledgerSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		from, _ := excelize.CoordinatesToCellName(9, row)
		to, _ := excelize.CoordinatesToCellName(11, row)
		_ = f.SetCellStyle(ledgerSheet, from, to, st.money)
	}

	_ = f.SetColWidth(ledgerSheet, "A", "A", 18)
	_ = f.SetColWidth(ledgerSheet, "B", "H", 16)
	_ = f.SetColWidth(ledgerSheet, "I", "K", 14)
	return nil
}

// major converts minor units to a spreadsheet number.
func major(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}
