package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

//go:embed sql/list-devices.sql
var listDevicesSQL string

//go:embed sql/get-device.sql
var getDeviceSQL string

//go:embed sql/insert-device.sql
var insertDeviceSQL string

//go:embed sql/ensure-device.sql
var ensureDeviceSQL string

//go:embed sql/update-device.sql
var updateDeviceSQL string

//go:embed sql/delete-device.sql
var deleteDeviceSQL string

//go:embed sql/list-readings.sql
var listReadingsSQL string

//go:embed sql/list-readings-asc.sql
var listReadingsAscSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/latest-per-device.sql
var latestPerDeviceSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceExists   = errors.New("device already exists")
)

// PageSize is the batch size used by ListAllReadings.
const PageSize = 1000

// ReadingsQuery selects one device's readings. Zero bounds are open.
type ReadingsQuery struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

type MonitoringRepository interface {
	ListDevices(ctx context.Context) ([]types.Device, error)
	GetDevice(ctx context.Context, id string) (types.Device, error)
	CreateDevice(ctx context.Context, d types.Device) (types.Device, error)
	UpdateDevice(ctx context.Context, d types.Device) error
	DeleteDevice(ctx context.Context, id string) error
	EnsureDevice(ctx context.Context, id string) error

	ListReadings(ctx context.Context, q ReadingsQuery) ([]types.Reading, error)
	CountReadings(ctx context.Context, deviceID string, from, to time.Time) (int, error)
	ListAllReadings(ctx context.Context, deviceID string, from, to time.Time) ([]types.Reading, error)
	LatestPerDevice(ctx context.Context, from, to time.Time) ([]types.Reading, error)
	InsertReading(ctx context.Context, r types.Reading) (types.Reading, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) MonitoringRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := r.db.QueryContext(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()
	out := []types.Device{}
	for rows.Next() {
		var d types.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Lat, &d.Long); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetDevice(ctx context.Context, id string) (types.Device, error) {
	var d types.Device
	err := r.db.QueryRowContext(ctx, getDeviceSQL, id).Scan(&d.ID, &d.Name, &d.Lat, &d.Long)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("get device %q: %w", id, err)
	}
	return d, nil
}

// CreateDevice assigns a UUID when d.ID is empty.
func (r *repositoryImpl) CreateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx, insertDeviceSQL, d.ID, d.Name, d.Lat, d.Long); err != nil {
		if isConstraint(err) {
			return types.Device{}, fmt.Errorf("%w: %q", ErrDeviceExists, d.ID)
		}
		return types.Device{}, fmt.Errorf("insert device: %w", err)
	}
	return d, nil
}

func (r *repositoryImpl) UpdateDevice(ctx context.Context, d types.Device) error {
	res, err := r.db.ExecContext(ctx, updateDeviceSQL, d.Name, d.Lat, d.Long, d.ID)
	if err != nil {
		return fmt.Errorf("update device %q: %w", d.ID, err)
	}
	return requireRow(res, d.ID)
}

// DeleteDevice also removes the device's readings.
func (r *repositoryImpl) DeleteDevice(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteDeviceSQL, id)
	if err != nil {
		return fmt.Errorf("delete device %q: %w", id, err)
	}
	return requireRow(res, id)
}

// EnsureDevice registers id under its own name if it is unknown.
func (r *repositoryImpl) EnsureDevice(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, ensureDeviceSQL, id, id); err != nil {
		return fmt.Errorf("ensure device %q: %w", id, err)
	}
	return nil
}

// ListReadings returns newest first with inclusive bounds.
func (r *repositoryImpl) ListReadings(ctx context.Context, q ReadingsQuery) ([]types.Reading, error) {
	from, to := boundArgs(q.From, q.To)
	rows, err := r.db.QueryContext(ctx, listReadingsSQL, q.DeviceID, from, to, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

func (r *repositoryImpl) CountReadings(ctx context.Context, deviceID string, from, to time.Time) (int, error) {
	f, t := boundArgs(from, to)
	var n int
	if err := r.db.QueryRowContext(ctx, countReadingsSQL, deviceID, f, t).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// ListAllReadings pages through every reading in the range, oldest first.
func (r *repositoryImpl) ListAllReadings(ctx context.Context, deviceID string, from, to time.Time) ([]types.Reading, error) {
	f, t := boundArgs(from, to)
	out := []types.Reading{}
	for offset := 0; ; offset += PageSize {
		page, err := r.page(ctx, deviceID, f, t, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < PageSize {
			return out, nil
		}
	}
}

func (r *repositoryImpl) page(ctx context.Context, deviceID, from, to string, offset int) ([]types.Reading, error) {
	rows, err := r.db.QueryContext(ctx, listReadingsAscSQL, deviceID, from, to, PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list readings page at %d: %w", offset, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings page rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

// LatestPerDevice returns one reading per device, the newest in range.
func (r *repositoryImpl) LatestPerDevice(ctx context.Context, from, to time.Time) ([]types.Reading, error) {
	f, t := boundArgs(from, to)
	rows, err := r.db.QueryContext(ctx, latestPerDeviceSQL, f, t)
	if err != nil {
		return nil, fmt.Errorf("latest per device: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

// InsertReading assigns a UUID when rd.ID is empty and returns the stored row.
func (r *repositoryImpl) InsertReading(ctx context.Context, rd types.Reading) (types.Reading, error) {
	if err := rd.Validate(); err != nil {
		return types.Reading{}, err
	}
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rd.ID, rd.DeviceID,
		rd.Temperature, rd.Humidity, rd.CO, rd.CO2, rd.NH3, rd.LPG,
		rd.Smoke, rd.Alcohol, rd.SoundIntensity, rd.RainIntensity,
		formatTime(rd.CreatedAt),
	)
	if err != nil {
		if isForeignKey(err) {
			return types.Reading{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, rd.DeviceID)
		}
		return types.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	rd.CreatedAt = rd.CreatedAt.UTC()
	return rd, nil
}

func scanReadings(rows *sql.Rows) ([]types.Reading, error) {
	out := []types.Reading{}
	for rows.Next() {
		var rec types.Reading
		var ts string
		if err := rows.Scan(
			&rec.ID, &rec.DeviceID,
			&rec.Temperature, &rec.Humidity, &rec.CO, &rec.CO2, &rec.NH3, &rec.LPG,
			&rec.Smoke, &rec.Alcohol, &rec.SoundIntensity, &rec.RainIntensity,
			&ts,
		); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	return nil
}
