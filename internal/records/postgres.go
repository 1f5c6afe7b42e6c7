package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"medportal/internal/core"

	_ "github.com/lib/pq"
)

const (
	profileQuery = `SELECT email, COALESCE(full_name, ''), age, chronic_conditions, allergies
         FROM patient_profiles
         WHERE lower(email) = lower($1)
         LIMIT 1`

	reviewsQuery = `SELECT drug_name, drug_rating, drug_feedback, doctor_feedback, created_at
         FROM prescriptions
         WHERE lower(drug_name) = lower($1)
         ORDER BY created_at DESC
         LIMIT $2`

	historyQuery = `SELECT drug_name, COALESCE(diagnosis, ''), created_at
         FROM prescriptions
         WHERE lower(patient_email) = lower($1)
         ORDER BY created_at DESC
         LIMIT $2`

	summariesQuery = `SELECT drug_name, count(*), count(drug_rating), COALESCE(sum(drug_rating), 0)
         FROM prescriptions
         GROUP BY drug_name
         ORDER BY min(created_at) ASC`

	maxReviews  = 200
	maxHistory  = 100
	pingTimeout = 5 * time.Second
)

// PostgresReader reads records through database/sql with the lib/pq driver.
type PostgresReader struct {
	db     *sql.DB
	logger core.Logger
}

// NewPostgresReader opens and pings the database at dsn.
func NewPostgresReader(ctx context.Context, dsn string, logger core.Logger) (*PostgresReader, error) {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open records database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping records database: %w", err)
	}

	logger.Info("Connected to records database")
	return &PostgresReader{db: db, logger: logger}, nil
}

// PatientProfile loads the profile for email. A missing row maps to ErrNotFound;
// NULL columns come back as empty strings.
func (r *PostgresReader) PatientProfile(ctx context.Context, email string) (*PatientProfile, error) {
	var (
		p          PatientProfile
		age        sql.NullInt64
		conditions sql.NullString
		allergies  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, profileQuery, email).
		Scan(&p.Email, &p.FullName, &age, &conditions, &allergies)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query patient profile: %w", err)
	}
	if age.Valid {
		p.Age = strconv.FormatInt(age.Int64, 10)
	}
	p.ChronicConditions = conditions.String
	p.Allergies = allergies.String
	return &p, nil
}

// PatientPrescriptions loads up to maxHistory prescriptions for email, newest first.
func (r *PostgresReader) PatientPrescriptions(ctx context.Context, email string) ([]Prescription, error) {
	rows, err := r.db.QueryContext(ctx, historyQuery, email, maxHistory)
	if err != nil {
		return nil, fmt.Errorf("query prescription history: %w", err)
	}
	defer rows.Close()

	var history []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.Drug, &p.Diagnosis, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prescription history: %w", err)
	}
	return history, nil
}

// DrugReviews loads up to maxReviews reviews for drug, matched case-insensitively,
// newest first. A NULL rating stays nil.
func (r *PostgresReader) DrugReviews(ctx context.Context, drug string) ([]Review, error) {
	rows, err := r.db.QueryContext(ctx, reviewsQuery, drug, maxReviews)
	if err != nil {
		return nil, fmt.Errorf("query drug reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var (
			rv             Review
			rating         sql.NullInt64
			drugFeedback   sql.NullString
			doctorFeedback sql.NullString
		)
		if err := rows.Scan(&rv.Drug, &rating, &drugFeedback, &doctorFeedback, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan drug review: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			rv.Rating = &v
		}
		rv.DrugFeedback = drugFeedback.String
		rv.DoctorFeedback = doctorFeedback.String
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drug reviews: %w", err)
	}
	return reviews, nil
}

// DrugSummaries aggregates prescriptions per drug name, ordered by first prescription.
func (r *PostgresReader) DrugSummaries(ctx context.Context) ([]DrugSummary, error) {
	rows, err := r.db.QueryContext(ctx, summariesQuery)
	if err != nil {
		return nil, fmt.Errorf("query drug summaries: %w", err)
	}
	defer rows.Close()

	var summaries []DrugSummary
	for rows.Next() {
		var d DrugSummary
		if err := rows.Scan(&d.Drug, &d.Prescriptions, &d.Rated, &d.RatingSum); err != nil {
			return nil, fmt.Errorf("scan drug summary: %w", err)
		}
		summaries = append(summaries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drug summaries: %w", err)
	}
	return summaries, nil
}

// Close releases the connection pool.
func (r *PostgresReader) Close() error {
	return r.db.Close()
}
