package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "Warren Library System API"
	serviceVersion = "1.0.0"
)

// Root describes the service to anyone hitting the bare host.
// GET /
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"info":    "This is an API server. All endpoints are under /api",
	})
}

// APIInfo is the /api landing endpoint.
// GET /api
func APIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":              "Route not found",
		"info":               "This is an API server. All endpoints are under /api",
		"availableEndpoints": "/api",
	})
}
