package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/raster"
)

// RasterStore is a raster.Store keeping samples as little-endian BLOBs.
type RasterStore struct {
	db *DB
}

// Rasters returns the raster store of db.
func (db *DB) Rasters() *RasterStore {
	return &RasterStore{db: db}
}

func encodeSamples(rec *raster.Record) ([]byte, error) {
	var buf bytes.Buffer

	var data any = rec.Real
	if rec.Kind == raster.KindComplex {
		data = rec.Complex
	}

	err := binary.Write(&buf, binary.LittleEndian, data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode samples")
	}

	return buf.Bytes(), nil
}

func decodeSamples(rec *raster.Record, blob []byte) error {
	n := rec.Width * rec.Height

	switch rec.Kind {
	case raster.KindReal:
		rec.Real = make([]float32, n)
		return errors.Wrap(binary.Read(bytes.NewReader(blob), binary.LittleEndian, rec.Real), "unable to decode samples")
	case raster.KindComplex:
		rec.Complex = make([]complex64, n)
		return errors.Wrap(binary.Read(bytes.NewReader(blob), binary.LittleEndian, rec.Complex), "unable to decode samples")
	default:
		return errors.Errorf("unknown sample kind %q", rec.Kind)
	}
}

// Put implements raster.Store.
func (s *RasterStore) Put(ctx context.Context, path string, rec *raster.Record) error {
	if rec == nil {
		return errors.New("record must be set")
	}

	samples, err := encodeSamples(rec)
	if err != nil {
		return err
	}

	meta := rec.Metadata
	if meta == nil {
		meta = raster.Metadata{}
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "unable to encode metadata")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rasters (path, kind, width, height, west, east, south, north, crs, metadata, samples, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind, width = excluded.width, height = excluded.height,
			west = excluded.west, east = excluded.east, south = excluded.south, north = excluded.north,
			crs = excluded.crs, metadata = excluded.metadata, samples = excluded.samples,
			updated_at = CURRENT_TIMESTAMP`,
		path, string(rec.Kind), rec.Width, rec.Height,
		rec.Bounds.West, rec.Bounds.East, rec.Bounds.South, rec.Bounds.North,
		rec.CRS, string(metaJSON), samples,
	)
	if err != nil {
		return errors.Wrapf(err, "unable to store raster %s", path)
	}

	return nil
}

// Get implements raster.Store.
func (s *RasterStore) Get(ctx context.Context, path string) (*raster.Record, error) {
	var (
		rec      raster.Record
		kind     string
		metaJSON string
		blob     []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT kind, width, height, west, east, south, north, crs, metadata, samples
		FROM rasters WHERE path = ?`, path,
	).Scan(&kind, &rec.Width, &rec.Height,
		&rec.Bounds.West, &rec.Bounds.East, &rec.Bounds.South, &rec.Bounds.North,
		&rec.CRS, &metaJSON, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(raster.ErrNotFound, path)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "unable to read raster %s", path)
	}

	rec.Kind = raster.Kind(kind)

	err = json.Unmarshal([]byte(metaJSON), &rec.Metadata)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid metadata for raster %s", path)
	}

	err = decodeSamples(&rec, blob)
	if err != nil {
		return nil, errors.Wrapf(err, "raster %s", path)
	}

	return &rec, nil
}

// Exists implements raster.Store.
func (s *RasterStore) Exists(ctx context.Context, path string) (bool, error) {
	var n int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rasters WHERE path = ?`, path).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "unable to look up raster %s", path)
	}

	return n > 0, nil
}

var _ raster.Store = (*RasterStore)(nil)
