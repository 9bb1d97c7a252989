package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/recipehub/recipes-api/internal/middleware"
	"github.com/recipehub/recipes-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.AccessTokenClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.AccessTokenClaims)
	if !ok {
		return nil
	}
	return claims
}
