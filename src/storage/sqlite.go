package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"volume-observer/src/helpers"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return helpers.NewDatabaseError("open sqlite", err)
	}

	if err := helpers.RetryWithBackoff(d.Logger, "sqlite ping", 3, 100*time.Millisecond, db.Ping); err != nil {
		db.Close()
		return helpers.NewDatabaseError("ping sqlite", err)
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS volume_observations (
			symbol TEXT,
			day TEXT,
			bin INTEGER,
			volume REAL,
			PRIMARY KEY (symbol, day, bin)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create volume_observations: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS volume_models (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			n_bin INTEGER,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create volume_models: %w", err)
	}

	if _, err := d.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_volume_models_symbol ON volume_models (symbol, created_at)`); err != nil {
		return fmt.Errorf("failed to index volume_models: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveVolumeMatrix(data *models.MVolumeMatrix) error {
	rows := observationRows(data)
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO volume_observations (symbol, day, bin, volume)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, day, bin) DO UPDATE SET volume = excluded.volume
	`)
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

func (d *AsyncSQLiteDB) LoadVolumeMatrix(symbol string) (*models.MVolumeMatrix, error) {
	rows, err := d.DB.Query(`SELECT day, bin, volume FROM volume_observations WHERE symbol = ? ORDER BY day, bin`, symbol)
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

func (d *AsyncSQLiteDB) SaveModel(model *models.MVolumeModel) error {
	payload, err := encodeModel(model)
	if err != nil {
		return helpers.NewDatabaseError("encode model", err)
	}

	_, err = d.DB.Exec(`
		INSERT INTO volume_models (id, symbol, n_bin, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`, model.ID, model.Symbol, model.NBin, payload, model.CreatedAt.UnixNano())
	if err != nil {
		return helpers.NewDatabaseError("save model", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadModel(symbol string) (*models.MVolumeModel, error) {
	row := d.DB.QueryRow(`
		SELECT id, symbol, n_bin, payload, created_at FROM volume_models
		WHERE symbol = ? ORDER BY created_at DESC LIMIT 1
	`, symbol)

	var m models.MVolumeModel
	var payload string
	var created int64
	if err := row.Scan(&m.ID, &m.Symbol, &m.NBin, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, helpers.NewEmptyResultError("no model stored for %s", symbol)
		}
		return nil, helpers.NewDatabaseError("load model", err)
	}
	if err := decodeModel(payload, &m); err != nil {
		return nil, helpers.NewDatabaseError("decode model", err)
	}
	m.CreatedAt = time.Unix(0, created).UTC()
	return &m, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
