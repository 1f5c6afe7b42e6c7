package server

import (
	"net/http"
	"strings"
	"time"

	"medportal/internal/prompt"
	"medportal/internal/records"

	"github.com/gin-gonic/gin"
)

type prescriptionResponse struct {
	Drug      string    `json:"drug"`
	Diagnosis string    `json:"diagnosis"`
	CreatedAt time.Time `json:"created_at"`
}

type drugSummaryResponse struct {
	Drug          string `json:"drug"`
	Prescriptions int    `json:"prescriptions"`
	Rated         int    `json:"rated"`
	AverageRating string `json:"average_rating"`
}

// listPrescriptions returns a patient's prescription history, newest first.
// Doctors load it beside a consultation.
func (s *Server) listPrescriptions(c *gin.Context) {
	defer withPanicRecovery(c, s.config.Logger)()

	email := strings.TrimSpace(c.Param("email"))
	history, err := s.records.PatientPrescriptions(c.Request.Context(), email)
	if err != nil {
		s.config.Logger.Error("Loading prescriptions for %s failed: %v", email, err)
		respondWithError(c, http.StatusInternalServerError, "records unavailable")
		return
	}

	data := make([]prescriptionResponse, 0, len(history))
	for _, p := range history {
		data = append(data, prescriptionResponse{Drug: p.Drug, Diagnosis: p.Diagnosis, CreatedAt: p.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// listDrugs returns every prescribed drug with its rated/unrated split.
func (s *Server) listDrugs(c *gin.Context) {
	defer withPanicRecovery(c, s.config.Logger)()

	summaries, err := s.records.DrugSummaries(c.Request.Context())
	if err != nil {
		s.config.Logger.Error("Loading drug summaries failed: %v", err)
		respondWithError(c, http.StatusInternalServerError, "records unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": toDrugSummaries(summaries)})
}

func toDrugSummaries(summaries []records.DrugSummary) []drugSummaryResponse {
	out := make([]drugSummaryResponse, 0, len(summaries))
	for _, d := range summaries {
		out = append(out, drugSummaryResponse{
			Drug:          d.Drug,
			Prescriptions: d.Prescriptions,
			Rated:         d.Rated,
			AverageRating: prompt.FormatAverage(d.RatingSum, d.Rated),
		})
	}
	return out
}
