package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes the repository translates.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL implementation of Store. Each unit of work
// runs in its own transaction at the configured isolation level.
type PostgresStore struct {
	pool      *pgxpool.Pool
	isolation pgx.TxIsoLevel
}

// NewPostgresStore creates a store over an explicit connection pool.
// An empty isolation level means read committed.
func NewPostgresStore(pool *pgxpool.Pool, isolation pgx.TxIsoLevel) *PostgresStore {
	if isolation == "" {
		isolation = pgx.ReadCommitted
	}
	return &PostgresStore{pool: pool, isolation: isolation}
}

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	if err := fn(&PostgresRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository creates a repository that runs each statement on
// its own pooled connection. Use PostgresStore for transactional work.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

const channelColumns = `id, name, max_devices, license_duration_days, description, created_at`

func scanChannel(row pgx.Row) (*Channel, error) {
	var c Channel
	if err := row.Scan(&c.ID, &c.Name, &c.MaxDevices, &c.LicenseDurationDays, &c.Description, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChannel retrieves a channel by ID.
func (r *PostgresRepository) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	c, err := scanChannel(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetChannelByName retrieves a channel by its unique name.
func (r *PostgresRepository) GetChannelByName(ctx context.Context, name string) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE name = $1`

	c, err := scanChannel(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListChannels retrieves all channels ordered by ascending ID.
func (r *PostgresRepository) ListChannels(ctx context.Context) ([]*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// CreateChannel inserts a channel and sets its ID.
func (r *PostgresRepository) CreateChannel(ctx context.Context, channel *Channel) error {
	query := `
		INSERT INTO channels (name, max_devices, license_duration_days, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		channel.Name,
		channel.MaxDevices,
		channel.LicenseDurationDays,
		channel.Description,
		channel.CreatedAt,
	).Scan(&channel.ID)
	return translate(err)
}

// UpdateChannel overwrites the mutable fields of an existing channel.
func (r *PostgresRepository) UpdateChannel(ctx context.Context, channel *Channel) error {
	query := `
		UPDATE channels
		SET name = $2, max_devices = $3, license_duration_days = $4, description = $5
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		channel.ID,
		channel.Name,
		channel.MaxDevices,
		channel.LicenseDurationDays,
		channel.Description,
	)
	if err != nil {
		return translate(err)
	}
	if result.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// DeleteChannel deletes a channel by ID.
func (r *PostgresRepository) DeleteChannel(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if result.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

const deviceColumns = `id, device_id_str, channel_id, created_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	if err := row.Scan(&d.ID, &d.DeviceIDStr, &d.ChannelID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice retrieves a device by ID.
func (r *PostgresRepository) GetDevice(ctx context.Context, id int64) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	d, err := scanDevice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetDeviceByIDStr retrieves a device by its external identifier.
func (r *PostgresRepository) GetDeviceByIDStr(ctx context.Context, deviceIDStr string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id_str = $1`

	d, err := scanDevice(r.db.QueryRow(ctx, query, deviceIDStr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListDevices retrieves all devices ordered by ascending ID.
func (r *PostgresRepository) ListDevices(ctx context.Context) ([]*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// CountDevicesInChannel counts the devices that reference a channel.
func (r *PostgresRepository) CountDevicesInChannel(ctx context.Context, channelID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE channel_id = $1`, channelID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateDevice inserts a device and sets its ID.
func (r *PostgresRepository) CreateDevice(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (device_id_str, channel_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query, device.DeviceIDStr, device.ChannelID, device.CreatedAt).Scan(&device.ID)
	return translate(err)
}

// DeleteDevice deletes a device by ID.
func (r *PostgresRepository) DeleteDevice(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

const licenseColumns = `id, license_key, version, request_ip, status, created_at, expires_at, device_id`

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	err := row.Scan(
		&l.ID,
		&l.LicenseKey,
		&l.Version,
		&l.RequestIP,
		&l.Status,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.DeviceID,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLicense retrieves a license by ID.
func (r *PostgresRepository) GetLicense(ctx context.Context, id int64) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`

	l, err := scanLicense(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return l, nil
}

// LatestActiveLicense returns the active, unexpired license with the greatest ExpiresAt.
func (r *PostgresRepository) LatestActiveLicense(ctx context.Context, deviceID int64, now time.Time) (*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE device_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY expires_at DESC, id DESC
		LIMIT 1
	`

	l, err := scanLicense(r.db.QueryRow(ctx, query, deviceID, StatusActive, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return l, nil
}

// LatestLicense returns the license with the greatest ExpiresAt regardless of status.
func (r *PostgresRepository) LatestLicense(ctx context.Context, deviceID int64) (*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE device_id = $1
		ORDER BY expires_at DESC, id DESC
		LIMIT 1
	`

	l, err := scanLicense(r.db.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return l, nil
}

// CountLicensesForDevice counts the licenses of a device.
func (r *PostgresRepository) CountLicensesForDevice(ctx context.Context, deviceID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM licenses WHERE device_id = $1`, deviceID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateLicense inserts a license and sets its ID.
func (r *PostgresRepository) CreateLicense(ctx context.Context, license *License) error {
	query := `
		INSERT INTO licenses (license_key, version, request_ip, status, created_at, expires_at, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		license.LicenseKey,
		license.Version,
		license.RequestIP,
		license.Status,
		license.CreatedAt,
		license.ExpiresAt,
		license.DeviceID,
	).Scan(&license.ID)
	return translate(err)
}

// UpdateLicenseStatus overwrites the status of a license.
func (r *PostgresRepository) UpdateLicenseStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.Exec(ctx, `UPDATE licenses SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// DeleteLicensesForDevice deletes every license of a device.
func (r *PostgresRepository) DeleteLicensesForDevice(ctx context.Context, deviceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM licenses WHERE device_id = $1`, deviceID)
	return err
}

// translate tags constraint violations with ErrDuplicate or ErrRestricted.
// The driver error stays in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrRestricted, err)
		}
	}
	return err
}

// Ensure the PostgreSQL types implement the interfaces.
var (
	_ Store      = (*PostgresStore)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
