package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hallbook/internal/availability"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	gridSheet = "Calendar"
	listSheet = "Bookings"

	// MaxDays ограничивает ширину сетки отчета
	MaxDays = 92
)

var (
	ErrInvalidRange = errors.New("export range is invalid")
	ErrRangeTooLong = errors.New("export range is too long")
)

// Report is the input of one bookings export.
type Report struct {
	From     time.Time
	To       time.Time
	Halls    []models.Hall
	Bookings []*models.Booking
}

// Exporter renders booking reports into xlsx workbooks.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger}
}

// FileName is the name Save uses for the range.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", availability.DateKey(from), availability.DateKey(to))
}

// Save writes the report into the export directory and returns the file path.
func (e *Exporter) Save(r Report) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := e.Build(r)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(r.From, r.To))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("bookings", len(r.Bookings)).Msg("Excel file created")
	return path, nil
}

// Write streams the report as xlsx into w.
func (e *Exporter) Write(w io.Writer, r Report) error {
	f, err := e.Build(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build lays out two sheets: a hall by date occupancy grid and a flat list
// of the bookings. The caller closes the returned file.
func (e *Exporter) Build(r Report) (*excelize.File, error) {
	from := r.From.UTC().Truncate(24 * time.Hour)
	to := r.To.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, availability.DateKey(to), availability.DateKey(from))
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxDays {
		return nil, fmt.Errorf("%w: %d days, max %d", ErrRangeTooLong, days, MaxDays)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(gridSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(listSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	snap := availability.NewSnapshot(r.Bookings, e.logger)
	e.writeGrid(f, from, to, hallNames(r), snap)
	e.writeList(f, r.Bookings)

	return f, nil
}

// hallNames returns registry halls first, then any hall only seen in bookings.
func hallNames(r Report) []string {
	seen := make(map[string]bool)
	var names []string
	for _, h := range r.Halls {
		key := strings.ToLower(strings.TrimSpace(h.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, h.Name)
	}

	var extra []string
	for _, b := range r.Bookings {
		key := strings.ToLower(strings.TrimSpace(b.Hall))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		extra = append(extra, strings.TrimSpace(b.Hall))
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func (e *Exporter) writeGrid(f *excelize.File, from, to time.Time, halls []string, snap *availability.Snapshot) {
	days := int(to.Sub(from).Hours()/24) + 1

	_ = f.SetCellValue(gridSheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(days + 1)
	_ = f.MergeCell(gridSheet, "A1", lastCol+"1")
	if style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(gridSheet, "A1", "A1", style)
	}

	dateStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i := 0; i < days; i++ {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		_ = f.SetCellValue(gridSheet, cell, from.AddDate(0, 0, i).Format("02.01"))
		_ = f.SetCellStyle(gridSheet, cell, cell, dateStyle)
	}

	hallStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	busyStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	freeStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "top"},
	})

	for row, hall := range halls {
		cell, _ := excelize.CoordinatesToCellName(1, row+3)
		_ = f.SetCellValue(gridSheet, cell, hall)
		_ = f.SetCellStyle(gridSheet, cell, cell, hallStyle)

		filter := availability.ForHall(hall)
		for i := 0; i < days; i++ {
			cell, _ := excelize.CoordinatesToCellName(i+2, row+3)
			occupants := snap.OccupantsOn(filter, from.AddDate(0, 0, i))
			if len(occupants) == 0 {
				_ = f.SetCellValue(gridSheet, cell, "Free")
				_ = f.SetCellStyle(gridSheet, cell, cell, freeStyle)
				continue
			}
			_ = f.SetCellValue(gridSheet, cell, describe(occupants))
			_ = f.SetCellStyle(gridSheet, cell, cell, busyStyle)
		}
	}

	_ = f.SetColWidth(gridSheet, "A", "A", 25)
	if days > 0 {
		_ = f.SetColWidth(gridSheet, "B", lastCol, 20)
	}
	_ = f.SetPanes(gridSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      2,
		TopLeftCell: "B3",
		ActivePane:  "bottomRight",
	})
}

func describe(occupants []availability.Occupant) string {
	lines := make([]string, 0, len(occupants))
	for _, o := range occupants {
		when := "full day"
		if !o.Window.FullDay {
			when = o.Window.StartClock() + "-" + o.Window.EndClock()
		}
		name := o.Booking.BookingName
		if name == "" {
			name = fmt.Sprintf("#%d", o.Booking.ID)
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s)", when, name, o.Booking.Status))
	}
	return strings.Join(lines, "\n")
}

var listHeader = []any{
	"ID", "Hall", "Status", "Name", "Email", "Phone", "Department", "Title",
	"Date", "Start", "End", "Start date", "End date", "Slot", "Remarks", "Applied at",
}

func (e *Exporter) writeList(f *excelize.File, bookings []*models.Booking) {
	_ = f.SetSheetRow(listSheet, "A1", &listHeader)
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		lastCol, _ := excelize.ColumnNumberToName(len(listHeader))
		_ = f.SetCellStyle(listSheet, "A1", lastCol+"1", style)
	}

	sorted := append([]*models.Booking(nil), bookings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, b := range sorted {
		var applied string
		if !b.AppliedAt.IsZero() {
			applied = b.AppliedAt.Format(time.RFC3339)
		}
		row := []any{
			b.ID, b.Hall, b.Status, b.BookingName, b.Email, b.Phone, b.Department, b.SlotTitle,
			b.Date, b.StartTime, b.EndTime, b.StartDate, b.EndDate, b.Slot, b.Remarks, applied,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			e.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("write export row")
		}
	}
	_ = f.AutoFilter(listSheet, fmt.Sprintf("A1:%s%d", mustColumn(len(listHeader)), len(sorted)+1), nil)
}

func mustColumn(n int) string {
	name, _ := excelize.ColumnNumberToName(n)
	return name
}
