package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"volume-observer/src/helpers"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema is named after the executable
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return helpers.NewDatabaseError("open postgres", err)
	}

	if err := helpers.RetryWithBackoff(d.Logger, "postgres ping", 5, 500*time.Millisecond, db.Ping); err != nil {
		db.Close()
		return helpers.NewDatabaseError("ping postgres", err)
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	// Expand schema.table.field references in the configured symbol list
	symbols, err := d.ResolveSymbols(d.Config.DataSource.Symbols)
	if err != nil {
		d.Logger.Error("PostgresDB: Failed to resolve symbols: %v", err)
	} else {
		d.Config.DataSource.Symbols = symbols
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT,
			day TEXT,
			bin INTEGER,
			volume DOUBLE PRECISION,
			PRIMARY KEY (symbol, day, bin)
		);
	`, d.table("volume_observations"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create volume_observations: %w", err)
	}

	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			n_bin INTEGER,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`, d.table("volume_models"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create volume_models: %w", err)
	}

	// Symbol registry (Config/Metadata)
	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT PRIMARY KEY,
			type TEXT,
			ref_schema TEXT,
			ref_table TEXT,
			ref_field TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, d.table("symbols"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create symbols: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveVolumeMatrix(data *models.MVolumeMatrix) error {
	rows := observationRows(data)
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, day, bin, volume)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, day, bin) DO UPDATE SET volume = EXCLUDED.volume
	`, d.table("volume_observations"))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return helpers.NewDatabaseError("prepare observations", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(data.Symbol, r.Day, r.Bin, r.Volume); err != nil {
			return helpers.NewDatabaseError("insert observation", err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadVolumeMatrix(symbol string) (*models.MVolumeMatrix, error) {
	query := fmt.Sprintf(`SELECT day, bin, volume FROM %s WHERE symbol = $1 ORDER BY day, bin`, d.table("volume_observations"))
	rows, err := d.DB.Query(query, symbol)
	if err != nil {
		return nil, helpers.NewDatabaseError("query observations", err)
	}
	defer rows.Close()

	var records []models.MVolumeRecord
	for rows.Next() {
		var r models.MVolumeRecord
		if err := rows.Scan(&r.Day, &r.Bin, &r.Volume); err != nil {
			return nil, helpers.NewDatabaseError("scan observation", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("read observations", err)
	}

	return matrixFromRows(symbol, records)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveModel(model *models.MVolumeModel) error {
	payload, err := encodeModel(model)
	if err != nil {
		return helpers.NewDatabaseError("encode model", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, symbol, n_bin, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at
	`, d.table("volume_models"))
	if _, err := d.DB.Exec(query, model.ID, model.Symbol, model.NBin, payload, model.CreatedAt.UTC()); err != nil {
		return helpers.NewDatabaseError("save model", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadModel(symbol string) (*models.MVolumeModel, error) {
	query := fmt.Sprintf(`
		SELECT id, symbol, n_bin, payload, created_at FROM %s
		WHERE symbol = $1 ORDER BY created_at DESC LIMIT 1
	`, d.table("volume_models"))

	var m models.MVolumeModel
	var payload string
	if err := d.DB.QueryRow(query, symbol).Scan(&m.ID, &m.Symbol, &m.NBin, &payload, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, helpers.NewEmptyResultError("no model stored for %s", symbol)
		}
		return nil, helpers.NewDatabaseError("load model", err)
	}
	if err := decodeModel(payload, &m); err != nil {
		return nil, helpers.NewDatabaseError("decode model", err)
	}
	return &m, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
