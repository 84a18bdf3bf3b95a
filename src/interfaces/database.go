package interfaces

import "volume-observer/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveVolumeMatrix upserts every non-missing cell of a bins x days grid.
	SaveVolumeMatrix(data *models.MVolumeMatrix) error

	// -----------------------------------------------------------------------------

	// LoadVolumeMatrix rebuilds the grid of a symbol; missing cells come back as NaN.
	LoadVolumeMatrix(symbol string) (*models.MVolumeMatrix, error)

	// -----------------------------------------------------------------------------
	// SaveModel stores a fitted model under its ID
	SaveModel(model *models.MVolumeModel) error

	// -----------------------------------------------------------------------------
	// LoadModel returns the most recent model of a symbol
	LoadModel(symbol string) (*models.MVolumeModel, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
