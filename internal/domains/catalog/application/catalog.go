// Package application wires the catalog entities to the generic CRUD engine.
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
	crudmemory "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/memory"
	crudpostgres "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/persistence/postgres"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
)

type (
	// BandService is the CRUD port for bands.
	BandService = crud.Service[domain.Band, domain.BandCreate, domain.BandUpdate]
	// SongService is the CRUD port for songs.
	SongService = crud.Service[domain.Song, domain.SongCreate, domain.SongUpdate]
)

var (
	bandDescriptor = crud.MustDescribe[domain.Band]()
	songDescriptor = crud.MustDescribe[domain.Song]()
)

// Stores bundles the storage clients of the catalog.
type Stores struct {
	Bands crud.Store[domain.Band]
	Songs crud.Store[domain.Song]
}

// NewMemoryStores returns empty in-memory stores.
func NewMemoryStores() Stores {
	return Stores{
		Bands: crudmemory.NewStore(bandDescriptor),
		Songs: crudmemory.NewStore(songDescriptor),
	}
}

// NewPostgresStores returns stores backed by db.
func NewPostgresStores(db *gorm.DB) Stores {
	return Stores{
		Bands: crudpostgres.NewStore(db, bandDescriptor),
		Songs: crudpostgres.NewStore(db, songDescriptor),
	}
}

// NewBandService builds the band engine. When songs is set, removing a band
// that any song still references, soft-deleted songs included, fails with
// crud.ErrIntegrity.
func NewBandService(store crud.Store[domain.Band], songs crud.Store[domain.Song], opts ...crud.Option[domain.Band]) *crud.Engine[domain.Band, domain.BandCreate, domain.BandUpdate] {
	if songs != nil {
		opts = append([]crud.Option[domain.Band]{crud.WithRemoveGuard(rejectReferenced(songs))}, opts...)
	}
	return crud.NewEngine[domain.Band, domain.BandCreate, domain.BandUpdate](bandDescriptor, store, opts...)
}

func rejectReferenced(songs crud.Store[domain.Song]) func(ctx context.Context, band *domain.Band) error {
	return func(ctx context.Context, band *domain.Band) error {
		n, err := songs.Query().Referencing(domain.ColumnBandID, band.ID).Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: band %s is referenced by %d song(s)", crud.ErrIntegrity, band.ID, n)
		}
		return nil
	}
}

// BandGetter loads a live band.
type BandGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Band, error)
}

// NewSongService builds the song engine. Writes are rejected with
// crud.ErrIntegrity unless band_id names a live band.
func NewSongService(store crud.Store[domain.Song], bands BandGetter, opts ...crud.Option[domain.Song]) *crud.Engine[domain.Song, domain.SongCreate, domain.SongUpdate] {
	opts = append([]crud.Option[domain.Song]{crud.WithGuard(requireBand(bands))}, opts...)
	return crud.NewEngine[domain.Song, domain.SongCreate, domain.SongUpdate](songDescriptor, store, opts...)
}

func requireBand(bands BandGetter) func(ctx context.Context, song *domain.Song) error {
	return func(ctx context.Context, song *domain.Song) error {
		if bands == nil {
			return nil
		}
		_, err := bands.Get(ctx, song.BandID)
		if errors.Is(err, crud.ErrNotFound) {
			return fmt.Errorf("%w: band %s does not exist", crud.ErrIntegrity, song.BandID)
		}
		return err
	}
}

// Services are the decorated-or-plain ports the transport binds to.
type Services struct {
	Bands BandService
	Songs SongService
}

// Decorator wraps a port, e.g. with observability.
type Decorator struct {
	Bands func(BandService) BandService
	Songs func(SongService) SongService
}

// NewServices wires both engines on top of stores. The song guard resolves
// bands through the decorated band port; the band removal guard reads the
// song store directly so soft-deleted songs count as references.
func NewServices(stores Stores, decorate Decorator) Services {
	var bands BandService = NewBandService(stores.Bands, stores.Songs)
	if decorate.Bands != nil {
		bands = decorate.Bands(bands)
	}
	var songs SongService = NewSongService(stores.Songs, bands)
	if decorate.Songs != nil {
		songs = decorate.Songs(songs)
	}
	return Services{Bands: bands, Songs: songs}
}
