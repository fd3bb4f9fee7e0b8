// Package domain holds the catalog entities and their write payloads.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
)

const (
	// MaxNameLength bounds free-text columns.
	MaxNameLength = 255
	// MinYear and MaxYear bound the release year of a song.
	MinYear = 0
	MaxYear = 9999

	// ColumnBandID is the songs column referencing bands.id.
	ColumnBandID = "band_id"
)

// Band is removed for good when deleted.
type Band struct {
	crud.Model
	Name string `gorm:"column:name;size:255;not null" json:"name"`
}

func (Band) TableName() string { return "bands" }

// Song is soft-deleted. Band is only populated by an explicit follow-up fetch.
type Song struct {
	crud.Model
	crud.SoftDelete
	Name   string    `gorm:"column:name;size:255;not null" json:"name"`
	Artist string    `gorm:"column:artist;size:255;not null" json:"artist"`
	Year   *int      `gorm:"column:year" json:"year"`
	BandID uuid.UUID `gorm:"column:band_id;type:uuid;not null;index" json:"band_id"`
	Band   *Band     `gorm:"foreignKey:BandID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"band,omitempty"`
}

func (Song) TableName() string { return "songs" }

// BandCreate is the payload of POST /bands.
type BandCreate struct {
	Name string `json:"name" binding:"required,max=255"`
}

func (in BandCreate) NewRecord() *Band {
	return &Band{Name: in.Name}
}

// BandUpdate is the payload of PUT /bands/:id. Absent fields are left as stored.
type BandUpdate struct {
	Name crud.Opt[string] `json:"name,omitzero"`
}

func (in BandUpdate) Changes() crud.Changes {
	c := crud.Changes{}
	in.Name.Put(c, "name")
	return c
}

func (in BandUpdate) Validate() error {
	fault := &crud.ValidationError{}
	if name, ok := in.Name.Get(); ok {
		checkName(fault, "name", name)
	}
	return fault.OrNil()
}

// SongCreate is the payload of POST /songs.
type SongCreate struct {
	Name   string    `json:"name" binding:"required,max=255"`
	Artist string    `json:"artist" binding:"required,max=255"`
	Year   *int      `json:"year" binding:"omitempty,gte=0,lte=9999"`
	BandID uuid.UUID `json:"band_id" binding:"required"`
}

func (in SongCreate) NewRecord() *Song {
	return &Song{
		Name:   in.Name,
		Artist: in.Artist,
		Year:   in.Year,
		BandID: in.BandID,
	}
}

// SongUpdate is the payload of PUT /songs/:id. An explicit null year clears it.
type SongUpdate struct {
	Name   crud.Opt[string]    `json:"name,omitzero"`
	Artist crud.Opt[string]    `json:"artist,omitzero"`
	Year   crud.Opt[*int]      `json:"year,omitzero"`
	BandID crud.Opt[uuid.UUID] `json:"band_id,omitzero"`
}

func (in SongUpdate) Changes() crud.Changes {
	c := crud.Changes{}
	in.Name.Put(c, "name")
	in.Artist.Put(c, "artist")
	in.Year.Put(c, "year")
	in.BandID.Put(c, ColumnBandID)
	return c
}

func (in SongUpdate) Validate() error {
	fault := &crud.ValidationError{}
	if name, ok := in.Name.Get(); ok {
		checkName(fault, "name", name)
	}
	if artist, ok := in.Artist.Get(); ok {
		checkName(fault, "artist", artist)
	}
	if year, ok := in.Year.Get(); ok && year != nil && (*year < MinYear || *year > MaxYear) {
		fault.Add("year", "must be between 0 and 9999")
	}
	if bandID, ok := in.BandID.Get(); ok && bandID == uuid.Nil {
		fault.Add("band_id", "is required")
	}
	return fault.OrNil()
}

func checkName(fault *crud.ValidationError, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		fault.Add(field, "is required")
	case utf8.RuneCountInString(value) > MaxNameLength:
		fault.Add(field, "must be at most 255 characters")
	}
}
