package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
)

type runRequirementsRequest struct {
	Status string `json:"status"`
}

type allocateRequest struct {
	ScheduleIDs []string `json:"schedule_ids"`
}

func (s *Server) CalculateRequirements(c *gin.Context) {
	scheduleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid schedule id"))
		return
	}

	resp, err := s.requirementSvc.CalculateRequirements(c.Request.Context(), scheduleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateMaterialRequirements(c *gin.Context) {
	scheduleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid schedule id"))
		return
	}

	resp, err := s.requirementSvc.CreateMaterialRequirements(c.Request.Context(), scheduleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRequirements(c *gin.Context) {
	scheduleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid schedule id"))
		return
	}

	resp, err := s.requirementSvc.ListRequirements(c.Request.Context(), scheduleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RunRequirements(c *gin.Context) {
	var req runRequirementsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.requirementSvc.RunForAllSchedules(c.Request.Context(), scheduledomain.ScheduleStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AllocateAcrossSchedules(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	scheduleIDs, err := parseSnowflakeIDs(req.ScheduleIDs)
	if err != nil {
		AbortWithError(c, newValidationError("schedule_ids", "invalid_schedule_ids", "invalid schedule id"))
		return
	}

	resp, err := s.requirementSvc.AllocateAcrossSchedules(c.Request.Context(), scheduleIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
