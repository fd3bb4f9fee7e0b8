package mapper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
)

// Band is the HTTP representation of a band.
type Band struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Song is the HTTP representation of a song with its band resolved.
type Song struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Artist    string     `json:"artist"`
	Year      *int       `json:"year"`
	BandID    uuid.UUID  `json:"band_id"`
	Band      *Band      `json:"band"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// FromBand maps a stored band to its read view.
func FromBand(b *domain.Band) Band {
	return Band{
		ID:        b.ID,
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// PresentBands maps a batch of bands.
func PresentBands(_ context.Context, bands []*domain.Band) ([]Band, error) {
	out := make([]Band, 0, len(bands))
	for _, b := range bands {
		out = append(out, FromBand(b))
	}
	return out, nil
}

// BandLookup loads a live band by id.
type BandLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Band, error)
}

// SongPresenter maps songs and resolves each distinct band once per batch.
// A band that no longer exists is rendered as null.
func SongPresenter(bands BandLookup) func(ctx context.Context, songs []*domain.Song) ([]Song, error) {
	return func(ctx context.Context, songs []*domain.Song) ([]Song, error) {
		resolved := make(map[uuid.UUID]*Band)
		out := make([]Song, 0, len(songs))
		for _, s := range songs {
			band, seen := resolved[s.BandID]
			if !seen {
				loaded, err := loadBand(ctx, bands, s)
				if err != nil {
					return nil, err
				}
				band = loaded
				resolved[s.BandID] = band
			}
			out = append(out, FromSong(s, band))
		}
		return out, nil
	}
}

// FromSong maps a stored song and its already resolved band.
func FromSong(s *domain.Song, band *Band) Song {
	return Song{
		ID:        s.ID,
		Name:      s.Name,
		Artist:    s.Artist,
		Year:      s.Year,
		BandID:    s.BandID,
		Band:      band,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func loadBand(ctx context.Context, bands BandLookup, s *domain.Song) (*Band, error) {
	if s.Band != nil && s.Band.ID == s.BandID {
		view := FromBand(s.Band)
		return &view, nil
	}
	if bands == nil || s.BandID == uuid.Nil {
		return nil, nil
	}
	b, err := bands.Get(ctx, s.BandID)
	if errors.Is(err, crud.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	view := FromBand(b)
	return &view, nil
}
