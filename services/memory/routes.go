// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all memory routes with the router.
//
// Description:
//
//	Registers all /v1/memory/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	PUT  /v1/memory/banks/:bank - Create or update a bank profile
//	GET  /v1/memory/banks/:bank - Fetch a bank profile
//	POST /v1/memory/banks/:bank/retain - Store memory items
//	POST /v1/memory/banks/:bank/recall - Keyword search
//	POST /v1/memory/banks/:bank/reflect - Run the reflect loop
//	GET  /v1/memory/health - Health check
//	GET  /v1/memory/ready - Readiness check
//
// Example:
//
//	service := memory.NewService(memory.DefaultServiceConfig(), store, gateway, collector)
//	handlers := memory.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	memory.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	mem := rg.Group("/memory")
	{
		banks := mem.Group("/banks")
		{
			banks.PUT("/:bank", handlers.HandlePutBank)
			banks.GET("/:bank", handlers.HandleGetBank)
			banks.POST("/:bank/retain", handlers.HandleRetain)
			banks.POST("/:bank/recall", handlers.HandleRecall)
			banks.POST("/:bank/reflect", handlers.HandleReflect)
		}

		// Health checks
		mem.GET("/health", handlers.HandleHealth)
		mem.GET("/ready", handlers.HandleReady)
	}
}
