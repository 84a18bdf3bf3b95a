package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"

	"volume-observer/src/config"
	"volume-observer/src/helpers"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Analyzer is what the control plane needs from the analysis facade.
type Analyzer interface {
	Fit(ctx context.Context, req models.MFitRequest) (*models.MFitResult, error)
	Model(symbol string) (*models.MVolumeModel, error)
	Symbols() []string
}

// SourceLister exposes the configured volume sources.
type SourceLister interface {
	GetAllSources() []interfaces.IVolumeSource
}

// ControlService implements the Control service and the standard gRPC
// health service. Each fitted symbol is reported as its own health entry:
// SERVING once its model converged, NOT_SERVING when the estimator ran out
// of iterations.
type ControlService struct {
	Config     *config.Config
	ConfigPath string
	Analysis   Analyzer
	DataSource SourceLister // optional
	Logger     *logger.Logger

	health *health.Server
	server *grpc.Server
	mu     sync.Mutex
}

// NewControlService creates a new instance of ControlService
func NewControlService(cfg *config.Config, cfgPath string, a Analyzer, ds SourceLister, log *logger.Logger) *ControlService {
	s := &ControlService{
		Config:     cfg,
		ConfigPath: cfgPath,
		Analysis:   a,
		DataSource: ds,
		Logger:     log,
		health:     health.NewServer(),
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Register attaches the control and health services to srv.
func (s *ControlService) Register(srv grpc.ServiceRegistrar) {
	srv.RegisterService(&ControlServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start listens on the configured gRPC address and serves until Stop.
func (s *ControlService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, s.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.server = grpc.NewServer()
	s.Register(s.server)
	srv := s.server
	s.mu.Unlock()

	s.Logger.Info("gRPC control listening on %s", addr)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) Stop() error {
	s.health.Shutdown()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		s.server.GracefulStop()
		s.server = nil
	}
	return nil
}

// -----------------------------------------------------------------------------

// Broadcast receives fit progress and updates the per-symbol health entry
// when a fit finishes.
func (s *ControlService) Broadcast(payload interface{}) {
	var p models.MFitProgress
	switch m := payload.(type) {
	case models.MFitProgress:
		p = m
	case *models.MFitProgress:
		if m == nil {
			return
		}
		p = *m
	default:
		return
	}
	if p.Type != "DONE" || p.Symbol == "" {
		return
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if p.Status == models.FitConverged {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(p.Symbol, st)
}

// -----------------------------------------------------------------------------
// RPC Handlers
// -----------------------------------------------------------------------------

func (s *ControlService) ListSymbols(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	symbols := s.Analysis.Symbols()
	return toStruct(map[string]interface{}{"symbols": symbols})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSources(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := []string{}
	if s.DataSource != nil {
		for _, src := range s.DataSource.GetAllSources() {
			names = append(names, src.Name())
		}
	}
	return toStruct(map[string]interface{}{"sources": names})
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetModel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := req.GetFields()["symbol"].GetStringValue()
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	model, err := s.Analysis.Model(symbol)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(model)
}

// -----------------------------------------------------------------------------

func (s *ControlService) Fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var fitReq models.MFitRequest
	if err := fromStruct(req, &fitReq); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad fit request: %v", err)
	}
	if fitReq.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	res, err := s.Analysis.Fit(ctx, fitReq)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Logger.Info("gRPC: fit %s finished with status %s after %d iterations", fitReq.Symbol, res.Status, res.Iterations)

	// Struct values cannot hold NaN or Inf
	out := *res
	if math.IsNaN(out.LogLikelihood) || math.IsInf(out.LogLikelihood, 0) {
		out.LogLikelihood = -math.MaxFloat64
	}
	return toStruct(&out)
}

// -----------------------------------------------------------------------------

// UpdateSymbols replaces the configured symbol list and persists the config.
func (s *ControlService) UpdateSymbols(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body struct {
		Symbols []string `json:"symbols"`
	}
	if err := fromStruct(req, &body); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	if len(body.Symbols) == 0 {
		return nil, status.Error(codes.InvalidArgument, "symbols list cannot be empty")
	}

	s.mu.Lock()
	previous := s.Config.DataSource.Symbols
	s.Config.DataSource.Symbols = body.Symbols
	if err := s.Config.Validate(); err != nil {
		s.Config.DataSource.Symbols = previous
		s.mu.Unlock()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var saveErr error
	if s.ConfigPath != "" {
		saveErr = s.Config.Save(s.ConfigPath)
	}
	s.mu.Unlock()

	if saveErr != nil {
		s.Logger.Error("gRPC: Failed to persist symbols: %v", saveErr)
		return nil, status.Errorf(codes.Internal, "failed to persist config: %v", saveErr)
	}

	s.Logger.Info("gRPC: UpdateSymbols success. Count: %d", len(body.Symbols))
	return toStruct(map[string]interface{}{
		"success":      true,
		"symbol_count": len(body.Symbols),
	})
}

// -----------------------------------------------------------------------------

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var (
		empty      *helpers.EmptyResultError
		invalid    *helpers.InvalidInputError
		validation *helpers.ValidationError
		cfgErr     *helpers.ConfigurationError
		incomplete *helpers.ModelIncompleteError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &empty):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &invalid), errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &cfgErr), errors.As(err, &incomplete):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
