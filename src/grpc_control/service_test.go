package grpc_control

import (
	"context"
	"io"
	"math"
	"net"
	"path/filepath"
	"testing"

	"volume-observer/src/config"
	"volume-observer/src/helpers"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubAnalyzer struct {
	lastFit models.MFitRequest
}

func (a *stubAnalyzer) Fit(ctx context.Context, req models.MFitRequest) (*models.MFitResult, error) {
	a.lastFit = req
	if req.Symbol == "BAD" {
		return nil, helpers.NewConfigurationError("burn_in_days too large")
	}
	if req.Symbol == "FLAT" {
		return &models.MFitResult{Status: models.FitExhausted, LogLikelihood: math.Inf(-1)}, nil
	}
	return &models.MFitResult{
		Model:         &models.MVolumeModel{ID: "m-1", Symbol: req.Symbol, NBin: 2, Par: models.MParameterSet{AMu: 0.5, Phi: []float64{0.1, -0.1}}},
		Status:        models.FitConverged,
		Iterations:    7,
		LogLikelihood: -12.5,
		Estimated:     true,
	}, nil
}

func (a *stubAnalyzer) Model(symbol string) (*models.MVolumeModel, error) {
	if symbol != "AAPL" {
		return nil, helpers.NewEmptyResultError("no model for %s", symbol)
	}
	return &models.MVolumeModel{ID: "m-1", Symbol: "AAPL", NBin: 2}, nil
}

func (a *stubAnalyzer) Symbols() []string { return []string{"AAPL"} }

type stubSource struct{ name string }

func (s stubSource) Name() string { return s.name }
func (s stubSource) Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	return nil, nil
}

type stubSources []interfaces.IVolumeSource

func (s stubSources) GetAllSources() []interfaces.IVolumeSource { return s }

func startControl(t *testing.T, cfgPath string) (*ControlService, *stubAnalyzer, *grpc.ClientConn) {
	t.Helper()
	cfg, err := config.Parse([]byte("data_source:\n  symbols: [AAPL]\n"))
	require.NoError(t, err)

	log := logger.NewLogger(nil, "grpc")
	log.SetOutput(io.Discard)
	a := &stubAnalyzer{}
	svc := NewControlService(cfg, cfgPath, a, stubSources{stubSource{"csv:a.csv"}}, log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	svc.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return svc, a, conn
}

// -----------------------------------------------------------------------------

func TestControlFitRoundTrip(t *testing.T) {
	_, a, conn := startControl(t, "")
	client := NewControlClient(conn)

	res, err := client.Fit(context.Background(), models.MFitRequest{
		Symbol:  "AAPL",
		Fixed:   map[string]interface{}{"r": 0.05},
		Control: &models.MFitControl{MaxIt: 20, AbsTol: 1e-3},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FitConverged, res.Status)
	assert.Equal(t, 7, res.Iterations)
	require.NotNil(t, res.Model)
	assert.Equal(t, []float64{0.1, -0.1}, res.Model.Par.Phi)

	assert.Equal(t, "AAPL", a.lastFit.Symbol)
	assert.Equal(t, 0.05, a.lastFit.Fixed["r"])
	assert.Equal(t, 20, a.lastFit.Control.MaxIt)
}

func TestControlFitNonFiniteLogLikelihood(t *testing.T) {
	_, _, conn := startControl(t, "")

	res, err := NewControlClient(conn).Fit(context.Background(), models.MFitRequest{Symbol: "FLAT"})
	require.NoError(t, err)
	assert.Equal(t, models.FitExhausted, res.Status)
	assert.Equal(t, -math.MaxFloat64, res.LogLikelihood)
}

func TestControlErrorCodes(t *testing.T) {
	_, _, conn := startControl(t, "")
	client := NewControlClient(conn)

	_, err := client.Fit(context.Background(), models.MFitRequest{Symbol: "BAD"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Fit(context.Background(), models.MFitRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetModel(context.Background(), "MSFT")
	assert.Equal(t, codes.NotFound, status.Code(err))

	m, err := client.GetModel(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
}

func TestControlListings(t *testing.T) {
	_, _, conn := startControl(t, "")
	client := NewControlClient(conn)

	symbols, err := client.ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)

	sources, err := client.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"csv:a.csv"}, sources)
}

func TestControlUpdateSymbolsPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	svc, _, conn := startControl(t, path)
	client := NewControlClient(conn)

	n, err := client.UpdateSymbols(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"AAPL", "MSFT"}, svc.Config.DataSource.Symbols)

	reloaded, err := config.NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, reloaded.DataSource.Symbols)

	_, err = client.UpdateSymbols(context.Background(), []string{"AAPL", " "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, []string{"AAPL", "MSFT"}, svc.Config.DataSource.Symbols)

	_, err = client.UpdateSymbols(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthTracksFitOutcome(t *testing.T) {
	svc, _, conn := startControl(t, "")
	hc := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "AAPL"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	svc.Broadcast(models.MFitProgress{Type: "PROGRESS", Symbol: "AAPL", Status: models.FitIterating})
	_, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "AAPL"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	svc.Broadcast(&models.MFitProgress{Type: "DONE", Symbol: "AAPL", Status: models.FitConverged})
	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	svc.Broadcast(models.MFitProgress{Type: "DONE", Symbol: "MSFT", Status: models.FitExhausted})
	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
