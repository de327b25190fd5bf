package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nearclip/nearclip-core/internal/infrastructure/keylock"
)

const deviceColumns = `device_id, device_name, device_type, public_key, connection_status,
	is_paired, capabilities, alias, battery_level, last_seen, created_at, updated_at`

// upsertSQL replaces every column except created_at, and only when the
// incoming record is at least as new as the stored one.
const upsertSQL = `
	INSERT INTO devices (` + deviceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		device_name = excluded.device_name,
		device_type = excluded.device_type,
		public_key = excluded.public_key,
		connection_status = excluded.connection_status,
		is_paired = excluded.is_paired,
		capabilities = excluded.capabilities,
		alias = excluded.alias,
		battery_level = excluded.battery_level,
		last_seen = excluded.last_seen,
		updated_at = excluded.updated_at
	WHERE excluded.updated_at >= devices.updated_at`

// SQLiteStore implements Store on the devices table.
//
// Writes to the same device ID are serialised by a per-ID lock, so the
// before/after pair handed to live queries is exact. Writes to different IDs
// only contend on the database connection.
type SQLiteStore struct {
	db     *sql.DB
	rows   keylock.Locker
	hub    *watchHub
	logger Logger
}

// NewSQLiteStore creates a store on an open, migrated SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		hub:    newWatchHub(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for live query failures and discarded writes.
func (s *SQLiteStore) SetLogger(logger Logger) {
	s.logger = logger
}

// Close cancels all live queries. The database connection is owned by the
// caller and stays open.
func (s *SQLiteStore) Close() {
	s.hub.close()
}

// Upsert inserts or replaces d.
func (s *SQLiteStore) Upsert(ctx context.Context, d Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Type = ParseDeviceType(string(d.Type))
	d.Status = ParseConnectionStatus(string(d.Status))

	capsJSON, err := json.Marshal(capabilitiesOrEmpty(d.Capabilities))
	if err != nil {
		return fmt.Errorf("%w: marshalling capabilities: %w", ErrStorage, err)
	}

	unlock := s.rows.Lock(d.ID)
	defer unlock()

	before, found, err := s.get(ctx, d.ID)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, upsertSQL,
		d.ID,
		d.Name,
		string(d.Type),
		d.PublicKey,
		string(d.Status),
		boolToInt(d.Paired),
		string(capsJSON),
		nullableString(d.Alias),
		nullableInt(d.BatteryLevel),
		toNanos(d.LastSeen),
		toNanos(d.CreatedAt),
		toNanos(d.UpdatedAt),
	)
	if err != nil {
		return storageErr("upserting device", err)
	}

	ok, err := applied(result)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("upsert older than stored record ignored",
			"device_id", d.ID,
			"updated_at", d.UpdatedAt,
			"stored_updated_at", before.UpdatedAt,
		)
		return nil
	}

	after := d.Clone()
	if found {
		after.CreatedAt = before.CreatedAt
		s.hub.notify(&before, &after)
	} else {
		s.hub.notify(nil, &after)
	}
	return nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Device, bool, error) {
	return s.get(ctx, id)
}

func (s *SQLiteStore) get(ctx context.Context, id string) (Device, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE device_id = ?", id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, storageErr("querying device by id", err)
	}
	return d, true, nil
}

// Delete removes the record for id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	unlock := s.rows.Lock(id)
	defer unlock()

	before, found, err := s.get(ctx, id)
	if err != nil || !found {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", id); err != nil {
		return storageErr("deleting device", err)
	}
	s.hub.notify(&before, nil)
	return nil
}

// DeleteAll clears the table.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM devices")
	if err != nil {
		return storageErr("deleting all devices", err)
	}
	if n, _ := result.RowsAffected(); n > 0 { //nolint:errcheck // SQLite always reports rows affected
		s.hub.notifyAll()
	}
	return nil
}

// List returns the current result of q.
func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Device, error) {
	where, args := q.where()
	query := "SELECT " + deviceColumns + " FROM devices " + where + " ORDER BY last_seen DESC, device_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying devices", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, storageErr("scanning device", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating devices", err)
	}
	return devices, nil
}

// Watch subscribes fn to q.
func (s *SQLiteStore) Watch(ctx context.Context, q Query, fn func([]Device)) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidQuery)
	}
	sub := s.hub.subscribe(ctx, q, fn, s.List, s.logger)
	if sub == nil {
		return nil, fmt.Errorf("%w: store closed", ErrStorage)
	}
	return sub, nil
}

// UpdateConnectionStatus sets the status of id as of at.
func (s *SQLiteStore) UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus, at time.Time) (bool, error) {
	return s.update(ctx, id,
		"UPDATE devices SET connection_status = ?, updated_at = ? WHERE device_id = ? AND updated_at <= ?",
		[]any{string(status), toNanos(at), id, toNanos(at)},
		func(d *Device) {
			d.Status = status
			d.UpdatedAt = at
		},
	)
}

// UpdateLastSeen moves LastSeen of id forward.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, id string, lastSeen, updatedAt time.Time) (bool, error) {
	return s.update(ctx, id,
		"UPDATE devices SET last_seen = MAX(last_seen, ?), updated_at = MAX(updated_at, ?) WHERE device_id = ?",
		[]any{toNanos(lastSeen), toNanos(updatedAt), id},
		func(d *Device) {
			if lastSeen.After(d.LastSeen) {
				d.LastSeen = lastSeen
			}
			if updatedAt.After(d.UpdatedAt) {
				d.UpdatedAt = updatedAt
			}
		},
	)
}

// SetPaired sets the paired flag of id as of at.
func (s *SQLiteStore) SetPaired(ctx context.Context, id string, paired bool, at time.Time) (bool, error) {
	return s.update(ctx, id,
		"UPDATE devices SET is_paired = ?, updated_at = ? WHERE device_id = ? AND updated_at <= ?",
		[]any{boolToInt(paired), toNanos(at), id, toNanos(at)},
		func(d *Device) {
			d.Paired = paired
			d.UpdatedAt = at
		},
	)
}

// update runs a narrow single-row write under the row lock and notifies
// live queries with the record before and after. apply mirrors the SQL on
// the in-memory copy.
func (s *SQLiteStore) update(ctx context.Context, id, query string, args []any, apply func(*Device)) (bool, error) {
	unlock := s.rows.Lock(id)
	defer unlock()

	before, found, err := s.get(ctx, id)
	if err != nil || !found {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr("updating device", err)
	}
	ok, err := applied(result)
	if err != nil || !ok {
		return false, err
	}

	after := before.Clone()
	apply(&after)
	s.hub.notify(&before, &after)
	return true, nil
}

// Count returns the number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
		return 0, storageErr("counting devices", err)
	}
	return n, nil
}

// LastConnected returns the most recently seen CONNECTED device.
func (s *SQLiteStore) LastConnected(ctx context.Context) (Device, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE connection_status = ? ORDER BY last_seen DESC, device_id LIMIT 1",
		string(StatusConnected),
	)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, storageErr("querying last connected device", err)
	}
	return d, true, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (Device, error) {
	var (
		d                              Device
		deviceType, status, capsJSON   string
		paired                         int
		alias                          sql.NullString
		battery                        sql.NullInt64
		lastSeen, createdAt, updatedAt int64
	)

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&deviceType,
		&d.PublicKey,
		&status,
		&paired,
		&capsJSON,
		&alias,
		&battery,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return Device{}, err
	}

	d.Type = ParseDeviceType(deviceType)
	d.Status = ParseConnectionStatus(status)
	d.Paired = paired != 0
	d.Alias = alias.String
	if battery.Valid {
		level := int(battery.Int64)
		d.BatteryLevel = &level
	}
	d.LastSeen = fromNanos(lastSeen)
	d.CreatedAt = fromNanos(createdAt)
	d.UpdatedAt = fromNanos(updatedAt)

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return Device{}, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if len(d.Capabilities) == 0 {
		d.Capabilities = nil
	}
	return d, nil
}

// storageErr wraps a driver error so callers can match ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// applied reports whether a single-row write changed the row.
func applied(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("checking rows affected", err)
	}
	return n > 0, nil
}

func capabilitiesOrEmpty(caps []Capability) []Capability {
	if caps == nil {
		return []Capability{}
	}
	return caps
}

// toNanos stores timestamps as unix nanoseconds; the zero time is 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nullableString stores an empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
