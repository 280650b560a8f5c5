// Package store archives captured traces in SQLite or MySQL.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	// database/sql drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS traces (
		"ID"              TEXT NOT NULL PRIMARY KEY,
		"Instrument"      TEXT NOT NULL,
		"Channel"         INTEGER,
		"Captured"        INTEGER,
		"SampleInterval"  REAL,
		"SampleCount"     INTEGER,
		"Samples"         BLOB
	);`
	mysqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS traces (
		ID              CHAR(36) NOT NULL PRIMARY KEY,
		Instrument      VARCHAR(255) NOT NULL,
		Channel         INT,
		Captured        BIGINT,
		SampleInterval  DOUBLE,
		SampleCount     INT,
		Samples         LONGBLOB
	);`
	insertTraceTmpl = `INSERT INTO traces (
		ID,
		Instrument,
		Channel,
		Captured,
		SampleInterval,
		SampleCount,
		Samples
	) VALUES (?, ?, ?, ?, ?, ?, ?);`
	selectTraceTmpl = `SELECT Instrument, Channel, Captured, SampleInterval, SampleCount, Samples
		FROM traces WHERE ID = ?;`
	listTracesTmpl = `SELECT ID, Instrument, Channel, Captured, SampleInterval, SampleCount
		FROM traces ORDER BY Captured, ID;`
)

// ErrNotFound is returned by Load for an unknown ID.
var ErrNotFound = errors.New("trace not found")

// Record is one archived trace.
type Record struct {
	ID             string // assigned by Save when empty
	Instrument     string
	Channel        int
	Captured       time.Time
	SampleInterval float64
	Count          int       // number of samples, set by Save
	Samples        []float64 // volts; not filled in by List
}

// Store is a trace archive.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open opens the database and creates the trace table. driver is sqlite3
// or mysql.
func Open(driver, dsn string) (*Store, error) {
	var schema string
	switch driver {
	case "sqlite3":
		schema = sqliteCreateTableTmpl
	case "mysql":
		schema = mysqlCreateTableTmpl
	default:
		return nil, fmt.Errorf("%q is not a supported driver, pick one of: sqlite3, mysql", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s DB: %w", driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create table: %w", err)
	}
	return &Store{DB: db, driver: driver}, nil
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error { return s.DB.Close() }

// Save archives r and returns its ID.
func (s *Store) Save(ctx context.Context, r Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Captured.IsZero() {
		r.Captured = time.Now()
	}
	_, err := s.DB.ExecContext(ctx, insertTraceTmpl,
		r.ID, r.Instrument, r.Channel, r.Captured.UnixMilli(),
		r.SampleInterval, len(r.Samples), encodeSamples(r.Samples))
	if err != nil {
		return "", fmt.Errorf("storing trace %s: %w", r.ID, err)
	}
	glog.V(1).Infof("store: saved %d samples of %s as %s", len(r.Samples), r.Instrument, r.ID)
	return r.ID, nil
}

// Load returns the trace with the given ID, samples included.
func (s *Store) Load(ctx context.Context, id string) (Record, error) {
	r := Record{ID: id}
	var captured int64
	var blob []byte
	err := s.DB.QueryRowContext(ctx, selectTraceTmpl, id).
		Scan(&r.Instrument, &r.Channel, &captured, &r.SampleInterval, &r.Count, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	r.Captured = time.UnixMilli(captured)
	if r.Samples, err = decodeSamples(blob); err != nil {
		return Record{}, fmt.Errorf("%s: %w", id, err)
	}
	if len(r.Samples) != r.Count {
		return Record{}, fmt.Errorf("%s: %d samples stored, %d recorded", id, len(r.Samples), r.Count)
	}
	return r, nil
}

// List returns every archived trace without its samples, oldest first.
func (s *Store) List(ctx context.Context) (records []Record, err error) {
	rows, err := s.DB.QueryContext(ctx, listTracesTmpl)
	if err != nil {
		return nil, err
	}
	defer closeWithError(rows, &err)
	for rows.Next() {
		var r Record
		var captured int64
		if err := rows.Scan(&r.ID, &r.Instrument, &r.Channel, &captured, &r.SampleInterval, &r.Count); err != nil {
			return nil, err
		}
		r.Captured = time.UnixMilli(captured)
		records = append(records, r)
	}
	return records, rows.Err()
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// encodeSamples packs samples as little-endian float64.
func encodeSamples(samples []float64) []byte {
	b := make([]byte, 8*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

func decodeSamples(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("sample blob of %d bytes", len(b))
	}
	samples := make([]float64, len(b)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return samples, nil
}
