package server

import (
	"errors"
	"net/http"

	"medportal/internal/prompt"
	"medportal/internal/records"

	"github.com/gin-gonic/gin"
)

type consultationRequest struct {
	PatientEmail string   `json:"patient_email"`
	Symptoms     []string `json:"symptoms"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   s.orchestrator.Candidates(c.Request.Context()),
	})
}

// createConsultation opens a consultation for a patient and returns the first answer.
func (s *Server) createConsultation(c *gin.Context) {
	defer withPanicRecovery(c, s.config.Logger)()

	var req consultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	pc := prompt.ConsultationContext{Symptoms: req.Symptoms}
	if req.PatientEmail != "" {
		profile, err := s.records.PatientProfile(ctx, req.PatientEmail)
		switch {
		case err == nil:
			pc.HasProfile = true
			pc.Age = profile.Age
			pc.Conditions = profile.ChronicConditions
			pc.Allergies = profile.Allergies
		case errors.Is(err, records.ErrNotFound):
			s.config.Logger.Debug("No profile for %s, consulting without history", req.PatientEmail)
		default:
			s.config.Logger.Warn("Profile lookup failed, consulting without history: %v", err)
		}
	}

	p, err := prompt.BuildConsultation(pc)
	if err != nil {
		s.respondWithDomainError(c, "consultation", err)
		return
	}

	res, err := s.orchestrator.Generate(ctx, ownerOf(c), p, "")
	if err != nil {
		s.respondWithDomainError(c, "consultation", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(res))
}

// analyzeDrug summarizes patient and doctor feedback for one drug.
func (s *Server) analyzeDrug(c *gin.Context) {
	defer withPanicRecovery(c, s.config.Logger)()

	ctx := c.Request.Context()
	drug := c.Param("drug")

	reviews, err := s.records.DrugReviews(ctx, drug)
	if err != nil {
		s.config.Logger.Error("Loading reviews for %s failed: %v", drug, err)
		respondWithError(c, http.StatusInternalServerError, "records unavailable")
		return
	}

	entries := make([]prompt.FeedbackEntry, 0, len(reviews))
	for _, r := range reviews {
		entries = append(entries, prompt.FeedbackEntry{
			Rating:         r.Rating,
			DrugFeedback:   r.DrugFeedback,
			DoctorFeedback: r.DoctorFeedback,
		})
	}

	p, err := prompt.BuildDrugFeedback(prompt.FeedbackContext{Drug: drug, Entries: entries})
	if err != nil {
		s.respondWithDomainError(c, "drug analysis", err)
		return
	}

	res, err := s.orchestrator.Generate(ctx, ownerOf(c), p, "")
	if err != nil {
		s.respondWithDomainError(c, "drug analysis", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     res.SessionID,
		"model":          res.Model,
		"text":           res.Text,
		"average_rating": prompt.AverageRating(entries),
		"prescriptions":  len(entries),
		"rated":          len(prompt.RatedEntries(entries)),
	})
}
