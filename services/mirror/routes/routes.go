// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianMirror/services/mirror/articles"
	"github.com/AleutianAI/AleutianMirror/services/mirror/handlers"
)

// SetupRoutes registers the mirror API. gatherer backs /metrics; nil uses
// the default Prometheus registry.
func SetupRoutes(router *gin.Engine, svc *articles.Service, gatherer prometheus.Gatherer) {
	router.GET("/health", handlers.HealthCheck)

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	api := router.Group("/api")
	{
		api.GET("/fetch-articles", handlers.FetchArticles(svc))
		api.GET("/articles", handlers.ListArticles(svc))
		api.GET("/article/:id", handlers.GetArticle(svc))
	}
}
