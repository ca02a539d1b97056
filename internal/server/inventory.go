package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/mrpledger/internal/inventory/domain"
)

type completeScheduleRequest struct {
	ActualUnitsProduced int64 `json:"actual_units_produced"`
}

type receiveInventoryRequest struct {
	Items []inventorydomain.ReceiveItem `json:"items"`
}

type adjustInventoryRequest struct {
	NewQuantity *int64 `json:"new_quantity"`
	Reason      string `json:"reason"`
}

func (s *Server) CompleteSchedule(c *gin.Context) {
	scheduleID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid schedule id"))
		return
	}
	var req completeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inventorySvc.DecrementForProduction(c.Request.Context(), scheduleID, req.ActualUnitsProduced)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordMovement(c *gin.Context) {
	var req inventorydomain.MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inventorySvc.RecordMovement(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReceiveInventory(c *gin.Context) {
	var req receiveInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inventorySvc.ReceiveInventory(c.Request.Context(), req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AdjustInventory(c *gin.Context) {
	var req adjustInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.NewQuantity == nil {
		AbortWithError(c, newValidationError("new_quantity", "required", "new_quantity is required"))
		return
	}

	resp, err := s.inventorySvc.AdjustInventory(c.Request.Context(), strings.TrimSpace(c.Param("part_number")), *req.NewQuantity, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// nil movement: stock already matched
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInventoryHistory(c *gin.Context) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.inventorySvc.GetInventoryHistory(c.Request.Context(), strings.TrimSpace(c.Param("part_number")), inventorydomain.DateRange{
		From: from,
		To:   to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VerifyLedger(c *gin.Context) {
	partNumber := strings.TrimSpace(c.Param("part_number"))
	if err := s.inventorySvc.VerifyLedgerChain(c.Request.Context(), partNumber); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"part_number": partNumber, "consistent": true}})
}
