package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roofpro-hub/internal/gateway/clients"
)

func serviceHealthMiddleware(grpcClients *clients.GRPCClients) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range clients.Services() {
			state := "available"
			if !grpcClients.IsHealthy(name) {
				state = "unavailable"
			}
			c.Header("X-"+name+"-Service", state)
		}
		c.Next()
	}
}

func healthCheckHandler(grpcClients *clients.GRPCClients) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		httpStatus := http.StatusOK

		unavailableServices := []string{}
		for _, name := range clients.Services() {
			if !grpcClients.IsHealthy(name) {
				unavailableServices = append(unavailableServices, name)
			}
		}

		if len(unavailableServices) > 0 {
			status = "degraded"
			httpStatus = http.StatusPartialContent
		}

		c.JSON(httpStatus, gin.H{
			"status":               status,
			"message":              "Server is running",
			"unavailable_services": unavailableServices,
			"timestamp":            time.Now(),
		})
	}
}

func detailedHealthCheckHandler(grpcClients *clients.GRPCClients) gin.HandlerFunc {
	return func(c *gin.Context) {
		services := make(map[string]gin.H, len(clients.Services()))
		overallStatus := "healthy"
		for _, name := range clients.Services() {
			services[name] = checkServiceHealth(grpcClients.IsHealthy(name), grpcClients.State(name))
			if !grpcClients.IsHealthy(name) {
				overallStatus = "degraded"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"overall_status": overallStatus,
			"services":       services,
			"timestamp":      time.Now(),
		})
	}
}

func checkServiceHealth(isHealthy bool, state string) gin.H {
	if !isHealthy {
		return gin.H{
			"status":  "unavailable",
			"state":   state,
			"message": "Service client not initialized or connection lost",
		}
	}
	return gin.H{
		"status":  "healthy",
		"state":   state,
		"message": "Service is responding",
	}
}
