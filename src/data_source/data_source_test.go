package datasource

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	l := logger.NewLogger(nil, "test")
	l.SetOutput(io.Discard)
	return l
}

const volumeCSV = `Symbol,Day,Bin,Volume
AAPL,2024-05-07,1,1300
AAPL,2024-05-06,1,1200
AAPL,2024-05-06,2,800
AAPL,2024-05-07,2,
MSFT,2024-05-06,1,500
MSFT,2024-05-06,2,450
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVSourceLoad(t *testing.T) {
	cfg := &models.MDataSourceConfig{Format: "csv", Path: writeFile(t, "v.csv", volumeCSV), BinsPerDay: 2}
	src := NewCSVSource(cfg, quietLogger())

	out, err := src.Load(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	aapl := out["AAPL"]
	assert.Equal(t, []string{"2024-05-06", "2024-05-07"}, aapl.DayLabels)
	assert.Equal(t, 1200.0, aapl.Values[0][0])
	assert.Equal(t, 1300.0, aapl.Values[0][1])
	assert.True(t, math.IsNaN(aapl.Values[1][1]))

	only, err := src.Load(context.Background(), []string{"MSFT"})
	require.NoError(t, err)
	assert.Len(t, only, 1)
	assert.Contains(t, only, "MSFT")
}

func TestCSVSourceErrors(t *testing.T) {
	cfg := &models.MDataSourceConfig{Format: "csv", Path: writeFile(t, "bad.csv", "symbol,day,volume\nA,1,2\n")}
	_, err := NewCSVSource(cfg, quietLogger()).Load(context.Background(), nil)
	assert.ErrorContains(t, err, `missing column "bin"`)

	cfg.Path = writeFile(t, "bad2.csv", "symbol,day,bin,volume\nA,d,x,2\n")
	_, err = NewCSVSource(cfg, quietLogger()).Load(context.Background(), nil)
	assert.ErrorContains(t, err, "row 2")

	cfg.Path = filepath.Join(t.TempDir(), "missing.csv")
	_, err = NewCSVSource(cfg, quietLogger()).Load(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.Path = writeFile(t, "ok.csv", volumeCSV)
	_, err = NewCSVSource(cfg, quietLogger()).Load(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestXLSXRoundTrip(t *testing.T) {
	grid := &models.MVolumeMatrix{
		Symbol:    "VOD.L",
		DayLabels: []string{"2024-05-06", "2024-05-07", "2024-05-08"},
		Values: [][]float64{
			{1000, 1100, 1200},
			{500, math.NaN(), 650.5},
		},
	}
	path := filepath.Join(t.TempDir(), "volumes.xlsx")
	require.NoError(t, WriteXLSX(path, "", []*models.MVolumeMatrix{grid}))

	cfg := &models.MDataSourceConfig{Format: "xlsx", Path: path, BinsPerDay: 2}
	out, err := NewXLSXSource(cfg, quietLogger()).Load(context.Background(), nil)
	require.NoError(t, err)

	got := out["VOD.L"]
	require.NotNil(t, got)
	assert.Equal(t, grid.DayLabels, got.DayLabels)
	assert.Equal(t, 650.5, got.Values[1][2])
	assert.True(t, math.IsNaN(got.Values[1][1]))

	cfg.Sheet = "nope"
	_, err = NewXLSXSource(cfg, quietLogger()).Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestTickSource(t *testing.T) {
	// 2024-05-06 09:31 and 10:35 New York (EDT, UTC-4)
	body := "symbol,timestamp,volume\nAAPL,2024-05-06T13:31:00Z,100\nAAPL,2024-05-06T14:35:00Z,40\nAAPL,1714988000,10\n"
	cfg := &models.MDataSourceConfig{
		Format: "ticks", Path: writeFile(t, "t.csv", body),
		SessionOpen: "09:30", SessionMinutes: 390, BinsPerDay: 6,
	}

	out, err := NewCSVSource(cfg, quietLogger()).Load(context.Background(), nil)
	require.NoError(t, err)

	got := out["AAPL"]
	require.NotNil(t, got)
	require.Equal(t, 6, got.NBin())
	assert.Equal(t, []string{"2024-05-06"}, got.DayLabels)
	assert.Equal(t, 100.0, got.Values[0][0])
	assert.Equal(t, 40.0, got.Values[1][0])
	assert.True(t, math.IsNaN(got.Values[5][0]))
}

type stubSource struct {
	name string
	data map[string]*models.MVolumeMatrix
	err  error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Load(context.Context, []string) (map[string]*models.MVolumeMatrix, error) {
	return s.data, s.err
}

func TestMultiSourceManagerMerges(t *testing.T) {
	a := &models.MVolumeMatrix{Symbol: "A"}
	b1 := &models.MVolumeMatrix{Symbol: "B"}
	b2 := &models.MVolumeMatrix{Symbol: "B", DayLabels: []string{"x"}}

	m := NewMultiSourceManager([]interfaces.IVolumeSource{
		stubSource{name: "1", data: map[string]*models.MVolumeMatrix{"A": a, "B": b1}},
		stubSource{name: "2", data: map[string]*models.MVolumeMatrix{"B": b2}},
		stubSource{name: "3", err: errors.New("offline")},
	}, quietLogger())

	out, err := m.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, a, out["A"])
	assert.Same(t, b2, out["B"])

	require.NoError(t, m.RemoveSource("1"))
	require.NoError(t, m.RemoveSource("2"))
	_, err = m.Load(context.Background(), nil)
	assert.Error(t, err)

	assert.Error(t, m.AddSource(stubSource{name: "3"}))
}

func TestNewSourceFromConfig(t *testing.T) {
	src, err := NewSourceFromConfig(&models.MDataSourceConfig{Format: "xlsx", Path: "a.xlsx"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "xlsx:a.xlsx", src.Name())

	_, err = NewSourceFromConfig(&models.MDataSourceConfig{Format: "parquet"}, quietLogger())
	assert.Error(t, err)
}
