// Package records reads patient profiles and prescription reviews from the
// portal's structured-data store. It never writes.
package records

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no record matches the lookup key.
var ErrNotFound = errors.New("record not found")

// PatientProfile is the subset of a patient profile used for consultations.
type PatientProfile struct {
	Email             string
	FullName          string
	Age               string
	ChronicConditions string
	Allergies         string
}

// Review is one prescription row with the feedback left on it. A nil Rating means unrated.
type Review struct {
	PatientEmail   string
	Drug           string
	Diagnosis      string
	Rating         *int
	DrugFeedback   string
	DoctorFeedback string
	CreatedAt      time.Time
}

// Prescription is one entry of a patient's prescription history.
type Prescription struct {
	Drug      string
	Diagnosis string
	CreatedAt time.Time
}

// DrugSummary counts the prescriptions of one drug and the ratings left on them.
type DrugSummary struct {
	Drug          string
	Prescriptions int
	Rated         int
	RatingSum     int
}

// Reader is the read-only boundary to the structured-data store.
type Reader interface {
	PatientProfile(ctx context.Context, email string) (*PatientProfile, error)
	PatientPrescriptions(ctx context.Context, email string) ([]Prescription, error)
	DrugReviews(ctx context.Context, drug string) ([]Review, error)
	DrugSummaries(ctx context.Context) ([]DrugSummary, error)
	Close() error
}

// MemoryReader serves records from memory.
type MemoryReader struct {
	mu       sync.RWMutex
	profiles map[string]PatientProfile
	reviews  []Review
}

// NewMemoryReader creates an empty MemoryReader.
func NewMemoryReader() *MemoryReader {
	return &MemoryReader{profiles: make(map[string]PatientProfile)}
}

// PutProfile stores or replaces a profile keyed by email.
func (m *MemoryReader) PutProfile(p PatientProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[strings.ToLower(p.Email)] = p
}

// AddReview appends a prescription row with its review.
func (m *MemoryReader) AddReview(r Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Rating != nil {
		v := *r.Rating
		r.Rating = &v
	}
	m.reviews = append(m.reviews, r)
}

// PatientProfile returns a copy of the profile stored for email, matched
// case-insensitively, or ErrNotFound.
func (m *MemoryReader) PatientProfile(ctx context.Context, email string) (*PatientProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// PatientPrescriptions returns the prescriptions written for email, newest first.
// A patient without prescriptions yields an empty slice, not ErrNotFound.
func (m *MemoryReader) PatientPrescriptions(ctx context.Context, email string) ([]Prescription, error) {
	m.mu.RLock()
	var out []Prescription
	for _, r := range m.reviews {
		if strings.EqualFold(r.PatientEmail, email) {
			out = append(out, Prescription{Drug: r.Drug, Diagnosis: r.Diagnosis, CreatedAt: r.CreatedAt})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DrugReviews returns reviews for drug, matched case-insensitively, newest first.
func (m *MemoryReader) DrugReviews(ctx context.Context, drug string) ([]Review, error) {
	m.mu.RLock()
	var out []Review
	for _, r := range m.reviews {
		if strings.EqualFold(r.Drug, drug) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DrugSummaries returns one summary per distinct drug name, ordered by the
// drug's earliest prescription.
func (m *MemoryReader) DrugSummaries(ctx context.Context) ([]DrugSummary, error) {
	m.mu.RLock()
	rows := make([]Review, len(m.reviews))
	copy(rows, m.reviews)
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	index := make(map[string]int)
	var out []DrugSummary
	for _, r := range rows {
		i, ok := index[r.Drug]
		if !ok {
			i = len(out)
			index[r.Drug] = i
			out = append(out, DrugSummary{Drug: r.Drug})
		}
		out[i].Prescriptions++
		if r.Rating != nil {
			out[i].Rated++
			out[i].RatingSum += *r.Rating
		}
	}
	return out, nil
}

// Close is a no-op; MemoryReader holds no external resources.
func (m *MemoryReader) Close() error { return nil }
