package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("storage: record not found")

const bookingColumns = `id, customer_email, property_address, property_city, beds, baths, half_baths, sqft,
	service_type, frequency, add_ons, access_method, total_price_cents, first_charge_cents,
	booking_status, payment_status, ical_urls, last_ical_sync, created_at, updated_at`

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new booking, assigning its ID and timestamps.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	b.ID = GenerateID()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt
	if b.BookingStatus == "" {
		b.BookingStatus = models.BookingStatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentStatusPending
	}

	addOns, err := json.Marshal(b.AddOns)
	if err != nil {
		return fmt.Errorf("encoding add-ons: %w", err)
	}
	urls, err := encodeURLs(b.ICalURLs)
	if err != nil {
		return err
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.CustomerEmail, b.PropertyAddress, b.PropertyCity, b.Beds, b.Baths, b.HalfBaths, b.Sqft,
		b.ServiceType, b.Frequency, string(addOns), b.AccessMethod, b.TotalPriceCents, b.FirstChargeCents,
		b.BookingStatus, b.PaymentStatus, urls, b.LastICalSync, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by its ID. It returns nil when none exists.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}

	return b, nil
}

// List retrieves all bookings, newest first.
func (r *BookingRepository) List(ctx context.Context) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// ListICalEligible retrieves active or confirmed, paid bookings that have at
// least one calendar URL, least recently synced first.
func (r *BookingRepository) ListICalEligible(ctx context.Context) ([]models.Booking, error) {
	query, args, err := sq.Select(bookingColumns).
		From("bookings").
		Where(squirrel.Eq{
			"booking_status": []string{string(models.BookingStatusActive), string(models.BookingStatusConfirmed)},
			"payment_status": []string{string(models.PaymentStatusCompleted), string(models.PaymentStatusSetupComplete)},
		}).
		Where(squirrel.NotEq{"ical_urls": "[]"}).
		OrderBy("last_ical_sync ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building eligible bookings query: %w", err)
	}

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying eligible bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// UpdateICalURLs replaces the booking's calendar feed URLs.
func (r *BookingRepository) UpdateICalURLs(ctx context.Context, id string, urls []string) error {
	encoded, err := encodeURLs(urls)
	if err != nil {
		return err
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE bookings SET ical_urls = ?, updated_at = ? WHERE id = ?
	`, encoded, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating calendar URLs: %w", err)
	}

	return requireAffected(result, id)
}

// UpdateStatus sets the booking and/or payment status. Nil arguments are left unchanged.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status *models.BookingStatus, payment *models.PaymentStatus) error {
	set := map[string]any{"updated_at": r.Now()}
	if status != nil {
		set["booking_status"] = *status
	}
	if payment != nil {
		set["payment_status"] = *payment
	}

	query, args, err := sq.Update("bookings").SetMap(set).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building status update: %w", err)
	}

	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating booking status: %w", err)
	}

	return requireAffected(result, id)
}

// UpdateLastICalSync records when the booking's feeds were last polled.
func (r *BookingRepository) UpdateLastICalSync(ctx context.Context, id string, at time.Time) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE bookings SET last_ical_sync = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating last calendar sync: %w", err)
	}

	return requireAffected(result, id)
}

// Count returns the number of bookings.
func (r *BookingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting bookings: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var addOns, urls string

	err := row.Scan(
		&b.ID, &b.CustomerEmail, &b.PropertyAddress, &b.PropertyCity,
		&b.Beds, &b.Baths, &b.HalfBaths, &b.Sqft,
		&b.ServiceType, &b.Frequency, &addOns, &b.AccessMethod,
		&b.TotalPriceCents, &b.FirstChargeCents,
		&b.BookingStatus, &b.PaymentStatus, &urls, &b.LastICalSync,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(addOns), &b.AddOns); err != nil {
		return nil, fmt.Errorf("decoding add-ons for booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(urls), &b.ICalURLs); err != nil {
		return nil, fmt.Errorf("decoding calendar URLs for booking %s: %w", b.ID, err)
	}

	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if b.LastICalSync != nil {
		t := b.LastICalSync.UTC()
		b.LastICalSync = &t
	}

	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func encodeURLs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("encoding calendar URLs: %w", err)
	}
	return string(data), nil
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
