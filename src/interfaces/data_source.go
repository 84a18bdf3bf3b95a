package interfaces

import (
	"context"

	"volume-observer/src/models"
)

// -----------------------------------------------------------------------------
// IVolumeSource interface for loading intraday volume grids.
// -----------------------------------------------------------------------------

type IVolumeSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Load returns one bins x days matrix per symbol. An empty symbol list
	// means every symbol the source holds.
	Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error)
}
