// Package prompt turns patient and prescription records into generation prompts.
package prompt

import (
	"fmt"
	"strings"

	"medportal/internal/core"
)

const (
	consultationPreamble = "You are an expert AI Medical Assistant. Be concise, professional, and use bullet points."
	noProfile            = "No known chronic conditions."
	unknownAge           = "Unknown"
	noneValue            = "None"
)

// ConsultationContext is everything a consultation prompt needs.
type ConsultationContext struct {
	HasProfile bool
	Age        string
	Conditions string
	Allergies  string
	Symptoms   []string
}

// FeedbackEntry is one prescription's review. A nil Rating means unrated.
type FeedbackEntry struct {
	Rating         *int
	DrugFeedback   string
	DoctorFeedback string
}

// FeedbackContext is the review set for one drug.
type FeedbackContext struct {
	Drug    string
	Entries []FeedbackEntry
}

// BuildConsultation builds the opening prompt of a doctor consultation.
func BuildConsultation(c ConsultationContext) (core.Prompt, error) {
	symptoms := joinNonEmpty(c.Symptoms)
	if symptoms == "" {
		return core.Prompt{}, &core.MissingContextError{Field: "symptoms"}
	}

	return core.Prompt{
		Kind:        core.PromptConsultation,
		Instruction: consultationPreamble + "\n" + patientBlock(c),
		Message:     fmt.Sprintf("Patient presents with: %s. Diagnosis?", symptoms),
	}, nil
}

func patientBlock(c ConsultationContext) string {
	if !c.HasProfile {
		return noProfile
	}
	var b strings.Builder
	b.WriteString("PATIENT PROFILE:\n")
	fmt.Fprintf(&b, "- Age: %s\n", orDefault(c.Age, unknownAge))
	fmt.Fprintf(&b, "- CONDITIONS: %s\n", orDefault(c.Conditions, noneValue))
	fmt.Fprintf(&b, "- ALLERGIES: %s", orDefault(c.Allergies, noneValue))
	return b.String()
}

// BuildDrugFeedback builds a one-shot analysis prompt over the rated reviews of a drug.
// The whole text is the message, so the resulting session carries no instruction.
// A drug with prescriptions but no ratings yet is still analysed with an N/A average
// and an empty feedback block; a drug with no prescriptions at all is rejected.
func BuildDrugFeedback(c FeedbackContext) (core.Prompt, error) {
	drug := strings.TrimSpace(c.Drug)
	if drug == "" {
		return core.Prompt{}, &core.MissingContextError{Field: "drug"}
	}
	if len(c.Entries) == 0 {
		return core.Prompt{}, &core.MissingContextError{Field: "feedback"}
	}

	rated := RatedEntries(c.Entries)

	var b strings.Builder
	fmt.Fprintf(&b, "Act as a Pharmaceutical Data Analyst. Analyze feedback for %s (Avg Rating: %s/5). ",
		drug, AverageRating(c.Entries))
	b.WriteString("Summarize effectiveness and side effects concisely (max 3 bullet points).\n\n")
	for i, e := range rated {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Patient: %s, Doctor: %s",
			orDefault(e.DrugFeedback, noneValue), orDefault(e.DoctorFeedback, noneValue))
	}

	return core.Prompt{Kind: core.PromptDrugFeedback, Message: b.String()}, nil
}

// RatedEntries returns the entries that carry a rating, in their original order.
func RatedEntries(entries []FeedbackEntry) []FeedbackEntry {
	rated := make([]FeedbackEntry, 0, len(entries))
	for _, e := range entries {
		if e.Rating != nil {
			rated = append(rated, e)
		}
	}
	return rated
}

// AverageRating formats the mean of the rated entries to one decimal, or "N/A".
func AverageRating(entries []FeedbackEntry) string {
	sum, n := 0, 0
	for _, e := range entries {
		if e.Rating != nil {
			sum += *e.Rating
			n++
		}
	}
	return FormatAverage(sum, n)
}

// FormatAverage formats sum/n to one decimal, or "N/A" when n is zero.
func FormatAverage(sum, n int) string {
	if n == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(n))
}

func joinNonEmpty(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
