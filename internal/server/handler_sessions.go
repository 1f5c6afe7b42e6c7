package server

import (
	"net/http"

	"medportal/internal/core"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.sessions.Get(ownerOf(c), c.Param("id"))
	if err != nil {
		s.respondWithDomainError(c, "get session", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// postMessage continues a session on its bound model.
func (s *Server) postMessage(c *gin.Context) {
	defer withPanicRecovery(c, s.config.Logger)()

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.orchestrator.Generate(c.Request.Context(), ownerOf(c), core.Prompt{Message: req.Message}, c.Param("id"))
	if err != nil {
		s.respondWithDomainError(c, "session turn", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(res))
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Discard(ownerOf(c), c.Param("id")); err != nil {
		s.respondWithDomainError(c, "discard session", err)
		return
	}
	c.Status(http.StatusNoContent)
}
