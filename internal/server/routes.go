package server

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRoutes() {
	gin.SetMode(s.ginMode)
	s.router = gin.New()

	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())
	s.router.Use(s.rateLimitMiddleware())

	// Public routes (no auth)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/api/stats", s.getStatsData)

	// API routes (auth required)
	api := s.router.Group("/v1")
	api.Use(s.authenticateClient)
	api.GET("/models", s.listModels)

	// Conversation routes also need the portal identity
	portal := api.Group("")
	portal.Use(s.requirePortalUser)
	{
		portal.POST("/consultations", s.createConsultation)
		portal.GET("/patients/:email/prescriptions", s.listPrescriptions)
		portal.GET("/drugs", s.listDrugs)
		portal.POST("/drugs/:drug/analysis", s.analyzeDrug)
		portal.GET("/sessions/:id", s.getSession)
		portal.POST("/sessions/:id/messages", s.postMessage)
		portal.DELETE("/sessions/:id", s.deleteSession)
	}
}
