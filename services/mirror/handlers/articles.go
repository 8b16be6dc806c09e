// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianMirror/services/mirror/articles"
	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
	"github.com/AleutianAI/AleutianMirror/services/mirror/replicate"
	"github.com/AleutianAI/AleutianMirror/services/mirror/snapshot"
)

// FetchArticles runs one replication of the configured root and saves the
// result. ?max_depth=N overrides the configured depth for this run.
func FetchArticles(svc *articles.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxDepth := 0
		if raw := c.Query("max_depth"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":      "invalid max_depth",
					"details":    "max_depth must be a positive integer",
					"error_code": "invalid_max_depth",
				})
				return
			}
			maxDepth = n
		}

		slog.Info("Received request to fetch articles", "root", svc.Root().String(), "max_depth", maxDepth)
		outcome, err := svc.Fetch(c.Request.Context(), maxDepth)
		switch {
		case errors.Is(err, replicate.ErrDepthOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "invalid max_depth",
				"details":    err.Error(),
				"error_code": "invalid_max_depth",
			})
			return
		case errors.Is(err, articles.ErrReadOnly):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":      "Fetching is not configured",
				"details":    "set NOTION_API_KEY and NOTION_ROOT_ID to enable fetching",
				"error_code": "fetch_disabled",
			})
			return
		case errors.Is(err, replicate.ErrRootListing):
			slog.Error("Fetch run failed", "run_id", outcome.RunID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "Failed to fetch articles",
				"details":    err.Error(),
				"error_code": "fetch_failed",
				"run_id":     outcome.RunID,
			})
			return
		case err != nil:
			code := "fetch_failed"
			if errors.Is(err, snapshot.ErrPersist) {
				code = "snapshot_persist_failed"
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "Failed to save articles",
				"details":    err.Error(),
				"error_code": code,
				"run_id":     outcome.RunID,
			})
			return
		}

		status, message := "success", "Articles fetched and saved successfully"
		if outcome.Partial() {
			status, message = "partial", "Articles saved; some listings were truncated"
		}
		warnings := make([]string, 0, len(outcome.Warnings))
		for _, w := range outcome.Warnings {
			warnings = append(warnings, w.Error())
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   status,
			"message":  message,
			"run_id":   outcome.RunID,
			"articles": len(outcome.Forest),
			"nodes":    outcome.Forest.Count(),
			"depth":    outcome.Forest.Depth(),
			"requests": outcome.Requests,
			"warnings": warnings,
		})
	}
}

// ListArticles returns the whole saved forest.
func ListArticles(svc *articles.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		forest, err := svc.All(c.Request.Context())
		if err != nil {
			snapshotError(c, err)
			return
		}
		data, err := content.EncodeForest(forest)
		if err != nil {
			slog.Error("Failed to encode snapshot", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode articles"})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	}
}

// GetArticle returns the node with the given id anywhere in the forest.
func GetArticle(svc *articles.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		node, ok, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			snapshotError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Article not found", "id": id})
			return
		}
		data, err := node.MarshalJSON()
		if err != nil {
			slog.Error("Failed to encode article", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode article"})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	}
}

func snapshotError(c *gin.Context, err error) {
	code := "snapshot_unavailable"
	if errors.Is(err, snapshot.ErrCorrupt) {
		code = "snapshot_corrupt"
	}
	slog.Error("Failed to load snapshot", "error", err, "error_code", code)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Failed to load articles",
		"details":    err.Error(),
		"error_code": code,
	})
}
