package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"volume-observer/src/analysis"
	"volume-observer/src/config"
	datasource "volume-observer/src/data_source"
	"volume-observer/src/grpc_control"
	"volume-observer/src/helpers"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"
	"volume-observer/src/server"
	"volume-observer/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	mode := flag.String("mode", "serve", "fit, decompose, export or serve")
	purpose := flag.String("purpose", models.PurposeAnalysis, "decomposition purpose: analysis or forecast")
	out := flag.String("out", "volumes.xlsx", "output workbook for -mode export")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg, cfg.Name)

	// Parameter maps are checked once up front so typos show before a long fit
	if _, _, warnings := cfg.Parameters(); len(warnings) > 0 {
		for _, w := range warnings {
			appLogger.Warning("config: %s", w.String())
		}
	}

	// Memory budget
	memLimit := helpers.MemoryBudgetMB(appLogger)
	debug.SetMemoryLimit(int64(memLimit) << 20)
	appLogger.Info("Memory Limit set to: %d MB", memLimit)

	// 1. Storage
	db, err := setupDatabase(cfg.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// 2. Sources (extra positional arguments are additional files)
	manager, err := setupDataSources(cfg.MConfig, appLogger, flag.Args())
	if err != nil && *mode != "serve" {
		appLogger.Critical("Failed to set up data sources: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "fit":
		analyzer := analysis.NewAnalysisFacade(cfg.MConfig, appLogger, db, nil)
		results, err := fitFromSources(ctx, cfg.MConfig, appLogger, manager, analyzer)
		if err != nil {
			appLogger.Critical("Fit failed: %v", err)
			os.Exit(1)
		}
		for _, sym := range analyzer.Symbols() {
			res := results[sym]
			fmt.Printf("%-10s status=%-9s iterations=%-5d loglik=%.4f\n", sym, res.Status, res.Iterations, res.LogLikelihood)
		}

	case "decompose":
		analyzer := analysis.NewAnalysisFacade(cfg.MConfig, appLogger, db, nil)
		data, err := manager.Load(ctx, cfg.DataSource.Symbols)
		if err != nil {
			appLogger.Critical("Load failed: %v", err)
			os.Exit(1)
		}
		if _, err := analyzer.FitAll(ctx, data); err != nil {
			appLogger.Critical("Fit failed: %v", err)
			os.Exit(1)
		}
		for _, sym := range analyzer.Symbols() {
			dec, err := analyzer.Decompose(models.MDecomposeRequest{Symbol: sym, Purpose: *purpose, Data: data[sym]})
			if err != nil {
				appLogger.Error("%s: %v", sym, err)
				continue
			}
			fmt.Printf("%-10s %s mae=%.4f mape=%.4f rmse=%.4f\n", sym, dec.Purpose, dec.Error.MAE, dec.Error.MAPE, dec.Error.RMSE)
		}

	case "export":
		data, err := manager.Load(ctx, cfg.DataSource.Symbols)
		if err != nil {
			appLogger.Critical("Load failed: %v", err)
			os.Exit(1)
		}
		list := make([]*models.MVolumeMatrix, 0, len(data))
		for _, m := range data {
			list = append(list, m)
		}
		if err := datasource.WriteXLSX(*out, "", list); err != nil {
			appLogger.Critical("Export failed: %v", err)
			os.Exit(1)
		}
		appLogger.Info("Wrote %d symbols to %s", len(list), *out)

	case "serve":
		serve(ctx, cfg, *configPath, appLogger, db, manager)

	default:
		fmt.Printf("unknown mode %q (want %s)\n", *mode, strings.Join([]string{"fit", "decompose", "export", "serve"}, ", "))
		os.Exit(2)
	}
}

// -----------------------------------------------------------------------------

func serve(ctx context.Context, cfg *config.Config, cfgPath string, appLogger *logger.Logger, db interfaces.IDatabase, manager *datasource.MultiSourceManager) {
	srv := server.NewFastAPIServer(cfg.MConfig, logger.NewLogger(cfg, "FastAPIServer"))
	push := exchangers{srv}

	var control *grpc_control.ControlService
	if cfg.GrpcPort != 0 {
		control = grpc_control.NewControlService(cfg, cfgPath, nil, nil, logger.NewLogger(cfg, "ControlService"))
		push = append(push, control)
	}

	analyzer := analysis.NewAnalysisFacade(cfg.MConfig, appLogger, db, push)
	srv.SetAnalyzer(analyzer)

	// 1. Start Servers
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()
	if control != nil {
		control.Analysis = analyzer
		if manager != nil {
			control.DataSource = manager
		}
		go func() {
			if err := control.Start(); err != nil {
				appLogger.Error("gRPC control failed: %v", err)
			}
		}()
	}

	// 2. Initial fits; a broken file does not keep the API down
	if manager != nil {
		refit := func(label string) {
			results, err := fitFromSources(ctx, cfg.MConfig, appLogger, manager, analyzer)
			if err != nil {
				appLogger.Warning("%s fit failed: %v", label, err)
				return
			}
			appLogger.Info("%s fit complete for %d symbols", label, len(results))
		}
		go refit("Initial")

		// 3. Refit after each session so the next day starts from fresh parameters
		if cfg.Estimator.RefitOnClose {
			scheduler := utils.NewMarketScheduler(cfg.DataSource.Symbols, logger.NewLogger(cfg, "MarketScheduler"))
			go scheduler.WatchCloses(ctx, time.Minute, func() { refit("Post-close") })
		}
	}

	<-ctx.Done()
	appLogger.Info("Shutting down...")
	if err := push.Stop(); err != nil {
		appLogger.Error("Shutdown error: %v", err)
	}
}
