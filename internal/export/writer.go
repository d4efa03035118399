package export

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	// Registered so excelize can size embedded pictures.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"storefront/exporter/internal/domain"
)

// ImageResolver turns an image reference into raw bytes. The coordinator
// wires one that prefers the preview cache over a fresh download.
type ImageResolver func(ctx context.Context, url string) ([]byte, error)

const sheetName = "Products"

var columns = []string{"Title", "Brand", "SKU", "Price", "Rating", "Reviews", "Image", "Category", "URL"}

const (
	imageColumn    = 7 // "G"
	imageColWidth  = 18.0
	imageRowHeight = 96.0
)

// Writer serializes detail rows plus embedded images into an xlsx
// workbook.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write builds the workbook: a styled header, one row per input record,
// and the resolved image anchored to each row's image cell. A row whose
// image cannot be resolved keeps all its cell data; partial image
// failure never drops a row.
func (w *Writer) Write(ctx context.Context, rows []domain.DetailRow, resolve ImageResolver, progress domain.ProgressFunc) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := w.writeHeader(f); err != nil {
		return nil, err
	}

	embedded := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rowNum := i + 2
		values := []any{
			row.Title, row.Brand, row.SKU, row.Price,
			row.Rating, row.ReviewCount, "", row.CategoryLabel, row.URL,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return nil, fmt.Errorf("failed to address cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}

		if row.ImageURL != "" && resolve != nil {
			if w.embedImage(ctx, f, rowNum, row.ImageURL, resolve) {
				embedded++
			}
		}

		if progress != nil {
			progress(i+1, len(rows))
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	log.Infof("✅ Exported %d rows with %d embedded images", len(rows), embedded)
	return buf.Bytes(), nil
}

func (w *Writer) writeHeader(f *excelize.File) error {
	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to address header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("failed to write header cell %s: %w", cell, err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, styleID); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	if err := f.SetColWidth(sheetName, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to size title column: %w", err)
	}
	imageCol, _ := excelize.ColumnNumberToName(imageColumn)
	if err := f.SetColWidth(sheetName, imageCol, imageCol, imageColWidth); err != nil {
		return fmt.Errorf("failed to size image column: %w", err)
	}
	return nil
}

// embedImage resolves and anchors one image, enlarging the row to the
// thumbnail footprint. Returns false when the row stays image-less.
func (w *Writer) embedImage(ctx context.Context, f *excelize.File, rowNum int, imageURL string, resolve ImageResolver) bool {
	data, err := resolve(ctx, imageURL)
	if err != nil || len(data) == 0 {
		log.Warnf("Row %d exported without image (%s): %v", rowNum, imageURL, err)
		return false
	}

	cell, err := excelize.CoordinatesToCellName(imageColumn, rowNum)
	if err != nil {
		return false
	}

	if err := f.SetRowHeight(sheetName, rowNum, imageRowHeight); err != nil {
		log.Warnf("Failed to enlarge row %d: %v", rowNum, err)
	}

	err = f.AddPictureFromBytes(sheetName, cell, &excelize.Picture{
		Extension: extensionFor(imageURL),
		File:      data,
		Format: &excelize.GraphicOptions{
			AutoFit:     true,
			Positioning: "oneCell",
		},
	})
	if err != nil {
		log.Warnf("Failed to embed image for row %d: %v", rowNum, err)
		return false
	}
	return true
}

func extensionFor(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ".jpg"
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".png":
		return ".png"
	case ".gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
