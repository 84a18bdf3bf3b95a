package datasource

import (
	"context"
	"fmt"
	"math"

	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads the same table layout as CSVSource from a workbook sheet.
type XLSXSource struct {
	Config *models.MDataSourceConfig
	Path   string
	Sheet  string // empty means the first sheet
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewXLSXSource(cfg *models.MDataSourceConfig, log *logger.Logger) *XLSXSource {
	return &XLSXSource{Config: cfg, Path: cfg.Path, Sheet: cfg.Sheet, Logger: log}
}

func (s *XLSXSource) Name() string {
	return "xlsx:" + s.Path
}

// -----------------------------------------------------------------------------

func (s *XLSXSource) Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", s.Path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, s.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := buildMatrices(s.Config, rows, symbols)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Loaded %d symbol(s) from %s [%s]", len(out), s.Path, sheet)
	return out, nil
}

// -----------------------------------------------------------------------------

// WriteXLSX exports grids in the layout XLSXSource reads, one row per cell.
func WriteXLSX(path, sheet string, data []*models.MVolumeMatrix) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "volumes"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	row := 1
	set := func(values ...interface{}) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	if err := set("symbol", "day", "bin", "volume"); err != nil {
		return err
	}
	for _, m := range data {
		for t := 0; t < m.NDay(); t++ {
			for i := 0; i < m.NBin(); i++ {
				var cell interface{} = m.Values[i][t]
				if math.IsNaN(m.Values[i][t]) {
					cell = ""
				}
				if err := set(m.Symbol, m.DayLabel(t), i+1, cell); err != nil {
					return err
				}
			}
		}
	}
	return f.SaveAs(path)
}
