// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatbot

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all chat routes with the router.
//
// Description:
//
//	Registers the /v1/chat/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/chat/message - Run one chat turn
//	GET  /v1/chat/intents - List supported intents
//	GET  /v1/chat/health - Health check
//	GET  /v1/chat/ready - Readiness check
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	chat := rg.Group("/chat")
	{
		chat.POST("/message", handlers.HandleChat)
		chat.GET("/intents", handlers.HandleIntents)

		// Health checks
		chat.GET("/health", handlers.HandleHealth)
		chat.GET("/ready", handlers.HandleReady)
	}
}
