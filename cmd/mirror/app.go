// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianMirror/pkg/logging"
	"github.com/AleutianAI/AleutianMirror/services/mirror/articles"
	"github.com/AleutianAI/AleutianMirror/services/mirror/observability"
	"github.com/AleutianAI/AleutianMirror/services/mirror/replicate"
	"github.com/AleutianAI/AleutianMirror/services/mirror/routes"
	"github.com/AleutianAI/AleutianMirror/services/mirror/snapshot"
	"github.com/AleutianAI/AleutianMirror/services/mirror/source"
	"github.com/AleutianAI/AleutianMirror/services/mirror/storage/badger"
)

const serviceName = "mirror"

// app holds the wired components shared by every command.
type app struct {
	cfg      Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	store    snapshot.Store
	service  *articles.Service
}

// newApp wires the service. With remote false the service is read-only
// and no API token is needed.
func newApp(ctx context.Context, cfg Config, logger *logging.Logger, remote bool) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	store, err := newStore(ctx, cfg.Snapshot, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Snapshot store ready", "backend", cfg.Snapshot.Backend, "location", store.Location())

	var replicator *replicate.Replicator
	if remote {
		if err := cfg.RequireRemote(); err != nil {
			store.Close()
			return nil, err
		}
		replicator, err = newReplicator(cfg, logger, metrics)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	service, err := articles.NewService(replicator, store, articles.Config{
		Root:    cfg.RootTarget(),
		Logger:  logger.Slog(),
		Metrics: metrics,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		store:    store,
		service:  service,
	}, nil
}

func newReplicator(cfg Config, logger *logging.Logger, metrics *observability.Metrics) (*replicate.Replicator, error) {
	client, err := source.NewClient(source.ClientConfig{
		BaseURL:           cfg.Notion.BaseURL,
		APIVersion:        cfg.Notion.APIVersion,
		Token:             cfg.Notion.Token,
		PageSize:          cfg.Notion.PageSize,
		RequestTimeout:    cfg.Notion.RequestTimeout,
		RequestsPerSecond: cfg.Notion.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return replicate.New(client, replicate.Config{
		MaxDepth:          cfg.Replication.MaxDepth,
		OverallDepthLimit: cfg.Replication.OverallDepthLimit,
		Logger:            logger.Slog(),
		Metrics:           metrics,
	})
}

func newStore(ctx context.Context, cfg SnapshotConfig, logger *logging.Logger) (snapshot.Store, error) {
	switch cfg.Backend {
	case "", "file":
		return snapshot.NewFileStore(cfg.Path)
	case "badger":
		bcfg := badger.DefaultConfig(cfg.BadgerDir)
		bcfg.Logger = logger.Slog()
		return snapshot.OpenBadgerStore(bcfg)
	case "gcs":
		return snapshot.NewGCSStore(ctx, snapshot.GCSConfig{
			Bucket:          cfg.GCSBucket,
			Object:          cfg.GCSObject,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

// router builds the HTTP handler.
func (a *app) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName + "-service"))
	routes.SetupRoutes(router, a.service, a.registry)
	return router
}

func (a *app) Close() error {
	return a.store.Close()
}
