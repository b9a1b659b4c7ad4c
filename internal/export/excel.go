package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"bairro/internal/config"
	"bairro/internal/models"
)

// DirectoryReader is the slice of the read path the exporter needs.
type DirectoryReader interface {
	Categories(ctx context.Context) ([]models.Category, error)
	Businesses(ctx context.Context, filter models.BusinessFilter) ([]models.Business, error)
}

// Exporter writes Excel snapshots of the directory, grouped by category.
type Exporter struct {
	directory DirectoryReader
	cfg       config.ExportConfig
	logger    zerolog.Logger
}

func NewExporter(directory DirectoryReader, cfg config.ExportConfig, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		directory: directory,
		cfg:       cfg,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// ExportDirectory writes the current directory to an .xlsx file and
// returns its path. Offline writes still pending sync are flagged in
// the status column.
func (e *Exporter) ExportDirectory(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.cfg.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	categories, err := e.directory.Categories(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting categories: %v", err)
	}
	businesses, err := e.directory.Businesses(ctx, models.BusinessFilter{})
	if err != nil {
		return "", fmt.Errorf("error getting businesses: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Directory"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Local businesses, exported %s",
		time.Now().Format("02.01.2006 15:04")))
	_ = f.MergeCell(sheetName, "A1", "G1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	row := e.writeColumnHeaders(f, sheetName)
	for _, category := range orderedCategories(categories, businesses) {
		row = e.writeCategoryBlock(f, sheetName, category, businesses, row)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 30)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "C", 40)
	_ = f.SetColWidth(sheetName, "D", "D", 35)
	_ = f.SetColWidth(sheetName, "E", "E", 18)
	_ = f.SetColWidth(sheetName, "F", "F", 10)
	_ = f.SetColWidth(sheetName, "G", "G", 14)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("directory_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	filePath := filepath.Join(e.cfg.Path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().
		Str("file_path", filePath).
		Int("businesses", len(businesses)).
		Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeColumnHeaders(f *excelize.File, sheetName string) int {
	headers := []string{"Name", "Subcategory", "Description", "Address", "Phone", "Rating", "Status"}
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
	return 3
}

func (e *Exporter) writeCategoryBlock(f *excelize.File, sheetName string, category models.Category, businesses []models.Business, row int) int {
	inCategory := make([]models.Business, 0)
	for _, b := range businesses {
		if b.Category == category.Name || b.Category == category.ID {
			inCategory = append(inCategory, b)
		}
	}
	if len(inCategory) == 0 {
		return row
	}
	sort.Slice(inCategory, func(i, j int) bool { return inCategory[i].Name < inCategory[j].Name })

	cell, _ := excelize.CoordinatesToCellName(1, row)
	title := category.Name
	if category.Icon != "" {
		title = category.Icon + " " + title
	}
	_ = f.SetCellValue(sheetName, cell, title)
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	_ = f.SetCellStyle(sheetName, cell, cell, style)
	row++

	for _, b := range inCategory {
		values := []interface{}{b.Name, b.Subcategory, b.Description, b.Address, b.Phone, b.Rating, statusLabel(&b)}
		for i, v := range values {
			c, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheetName, c, v)
		}
		row++
	}
	return row + 1
}

func statusLabel(b *models.Business) string {
	if b.SyncStatus == models.SyncStatusPendingSync {
		return "pending sync"
	}
	return "synced"
}

// orderedCategories keeps the server ordering and appends any category
// that only exists on local businesses.
func orderedCategories(categories []models.Category, businesses []models.Business) []models.Category {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.Name] = true
		known[c.ID] = true
	}
	out := append([]models.Category(nil), categories...)
	seen := make(map[string]bool)
	for _, b := range businesses {
		if b.Category == "" || known[b.Category] || seen[b.Category] {
			continue
		}
		seen[b.Category] = true
		out = append(out, models.Category{ID: b.Category, Name: b.Category})
	}
	return out
}
