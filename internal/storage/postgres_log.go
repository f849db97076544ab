package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-client/internal/models"
)

type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresLog{db: db}, nil
}

func (p *PostgresLog) SaveRide(r *models.Ride) error {
	_, err := p.db.Exec(`INSERT INTO rides(id, rider_id, driver_id, pickup_lon, pickup_lat, dropoff_lon, dropoff_lat, status, payment_method, fare, started_at, ended_at, recorded_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, fare=EXCLUDED.fare, started_at=EXCLUDED.started_at, ended_at=EXCLUDED.ended_at, recorded_at=EXCLUDED.recorded_at`,
		r.ID, riderID(r), driverID(r),
		r.PickupLocation.Coordinates.Lon(), r.PickupLocation.Coordinates.Lat(),
		r.DropoffLocation.Coordinates.Lon(), r.DropoffLocation.Coordinates.Lat(),
		string(r.RideStatus), string(r.PaymentMethod), r.Fare,
		backendTime(r.StartedAt), backendTime(r.EndedAt), time.Now())
	return err
}

func riderID(r *models.Ride) sql.NullInt64 {
	if r.Rider == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: r.Rider.ID, Valid: true}
}

func driverID(r *models.Ride) sql.NullInt64 {
	if r.Driver == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: r.Driver.ID, Valid: true}
}

func backendTime(t *models.BackendTime) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.Time, Valid: true}
}
