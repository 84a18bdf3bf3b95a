package datasource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"volume-observer/src/logger"
	"volume-observer/src/models"
)

// CSVSource reads a long-format volume table (or raw ticks) from a CSV file.
type CSVSource struct {
	Config *models.MDataSourceConfig
	Path   string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewCSVSource(cfg *models.MDataSourceConfig, log *logger.Logger) *CSVSource {
	return &CSVSource{Config: cfg, Path: cfg.Path, Logger: log}
}

func (s *CSVSource) Name() string {
	return "csv:" + s.Path
}

// -----------------------------------------------------------------------------

func (s *CSVSource) Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()

	rows, err := readCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}

	out, err := buildMatrices(s.Config, rows, symbols)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Loaded %d symbol(s) from %s", len(out), s.Path)
	return out, nil
}

// readCSV reads every record, checking for cancellation between rows.
func readCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}
