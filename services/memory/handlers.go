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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianMemory/services/memory/bank"
)

// Handlers holds the HTTP handlers for the memory API.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set over a service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// respondError maps service errors to HTTP statuses with a JSON body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bank.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errStoreUnavailable), errors.Is(err, errGatewayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.Error("Memory request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// putBankRequest is the body of PUT /v1/memory/banks/:bank.
type putBankRequest struct {
	Mission     string             `json:"mission"`
	Disposition map[string]float64 `json:"disposition"`
}

// HandlePutBank creates or updates a bank profile.
func (h *Handlers) HandlePutBank(c *gin.Context) {
	var req putBankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	profile := bank.Profile{
		Name:        c.Param("bank"),
		Mission:     req.Mission,
		Disposition: req.Disposition,
	}
	if err := h.service.PutProfile(c.Request.Context(), profile); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// HandleGetBank fetches a bank profile.
func (h *Handlers) HandleGetBank(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("bank"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// retainRequest is the body of POST /v1/memory/banks/:bank/retain.
type retainRequest struct {
	Items []retainItem `json:"items" binding:"required,min=1"`
}

type retainItem struct {
	Text     string   `json:"text" binding:"required"`
	Kind     string   `json:"kind"`
	Entities []string `json:"entities"`
}

// HandleRetain stores memory items in a bank.
func (h *Handlers) HandleRetain(c *gin.Context) {
	var req retainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	items := make([]bank.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, bank.Item{
			Text:     it.Text,
			Kind:     bank.ItemKind(it.Kind),
			Entities: it.Entities,
		})
	}

	stored, err := h.service.Retain(c.Request.Context(), c.Param("bank"), items)
	if err != nil {
		if errors.Is(err, errStoreUnavailable) {
			respondError(c, err)
			return
		}
		// Validation failures (empty text, unknown kind) are client errors.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": stored})
}

// recallRequest is the body of POST /v1/memory/banks/:bank/recall.
type recallRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// HandleRecall searches a bank by keyword.
func (h *Handlers) HandleRecall(c *gin.Context) {
	var req recallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	hits, err := h.service.Recall(c.Request.Context(), c.Param("bank"), req.Query, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if hits == nil {
		hits = []bank.ScoredItem{}
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// reflectRequest is the body of POST /v1/memory/banks/:bank/reflect.
type reflectRequest struct {
	Query         string `json:"query" binding:"required"`
	MaxIterations int    `json:"max_iterations"`
}

// HandleReflect runs the tool-calling loop over a bank.
func (h *Handlers) HandleReflect(c *gin.Context) {
	var req reflectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.service.Reflect(c.Request.Context(), c.Param("bank"), req.Query, req.MaxIterations)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady reports whether the service can take bank traffic.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.service.StoreReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"store":  false,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"store":   true,
		"reflect": h.service.ReflectReady(),
	})
}
