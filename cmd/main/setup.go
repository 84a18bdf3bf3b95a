package main

import (
	"context"
	"fmt"

	"volume-observer/src/analysis"
	datasource "volume-observer/src/data_source"
	"volume-observer/src/data_source/yahoo"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"
	"volume-observer/src/network"
	"volume-observer/src/storage"
)

// -----------------------------------------------------------------------------

// setupDatabase initializes the database connection based on config.
// Storage is optional: an empty db_type runs fully in memory.
func setupDatabase(config *models.MConfig, appLogger *logger.Logger) (interfaces.IDatabase, error) {
	var db interfaces.IDatabase
	var err error

	switch config.Storage.DBType {
	case "":
		appLogger.Info("No storage configured, models stay in memory")
		return nil, nil
	case "postgres":
		db, err = storage.NewPostgresDB(config, logger.NewLogger(config, "PostgresDB"))
	default:
		db, err = storage.NewAsyncSQLiteDB(config, logger.NewLogger(config, "SQLiteDB"))
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
		return nil, err
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// setupDataSources builds the configured source plus any extra files given on
// the command line, all behind one manager. Extra files keep the configured
// layout unless the primary source is yahoo, in which case they are read as csv.
func setupDataSources(config *models.MConfig, appLogger *logger.Logger, extra []string) (*datasource.MultiSourceManager, error) {
	var sources []interfaces.IVolumeSource
	appLogger.Info("Initializing data sources...")

	switch {
	case config.DataSource.Format == "yahoo":
		netMgr := network.NewAsyncNetworkManager(config, logger.NewLogger(config, "NetworkManager"))
		sources = append(sources, yahoo.NewYahooVolumeSource(config, netMgr, logger.NewLogger(config, "YahooFinance")))
	case config.DataSource.Path != "":
		src, err := datasource.NewSourceFromConfig(&config.DataSource, logger.NewLogger(config, "DataSource"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, path := range extra {
		cfg := config.DataSource
		cfg.Path = path
		cfg.Sheet = ""
		if cfg.Format == "yahoo" {
			cfg.Format = "csv"
		}
		src, err := datasource.NewSourceFromConfig(&cfg, logger.NewLogger(config, "DataSource"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no data sources configured")
	}

	return datasource.NewMultiSourceManager(sources, logger.NewLogger(config, "MultiSourceManager")), nil
}

// -----------------------------------------------------------------------------

// fitFromSources loads every configured symbol and fits them in parallel.
func fitFromSources(ctx context.Context, config *models.MConfig, appLogger *logger.Logger, manager *datasource.MultiSourceManager, analyzer *analysis.AnalysisFacade) (map[string]*models.MFitResult, error) {
	data, err := manager.Load(ctx, config.DataSource.Symbols)
	if err != nil {
		return nil, err
	}
	appLogger.Info("Loaded %d symbols from %s", len(data), manager.Name())
	return analyzer.FitAll(ctx, data)
}

// -----------------------------------------------------------------------------

// exchangers fans fit progress out to every attached listener.
type exchangers []interfaces.IDataExchanger

func (e exchangers) Broadcast(payload interface{}) {
	for _, x := range e {
		x.Broadcast(payload)
	}
}

func (e exchangers) Start() error { return nil }

func (e exchangers) Stop() error {
	var firstErr error
	for _, x := range e {
		if err := x.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
