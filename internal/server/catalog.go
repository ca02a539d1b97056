package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
)

func (s *Server) ListParts(c *gin.Context) {
	var query catalogdomain.ListPartsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.ListParts(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPart(c *gin.Context) {
	resp, err := s.catalogSvc.GetPart(c.Request.Context(), strings.TrimSpace(c.Param("part_number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
