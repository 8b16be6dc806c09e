// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMirror/services/mirror/articles"
	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
	"github.com/AleutianAI/AleutianMirror/services/mirror/replicate"
	"github.com/AleutianAI/AleutianMirror/services/mirror/snapshot"
	"github.com/AleutianAI/AleutianMirror/services/mirror/source"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSource serves fixed single-page listings; ListFunc overrides.
type MockSource struct {
	Listings map[source.Target][]*content.Node
	ListFunc func(target source.Target) (source.Page, error)
}

func (m *MockSource) List(_ context.Context, target source.Target, _ string) (source.Page, error) {
	if m.ListFunc != nil {
		return m.ListFunc(target)
	}
	return source.Page{Results: m.Listings[target]}, nil
}

type failingStore struct {
	saveErr error
	loadErr error
}

func (f failingStore) Save(context.Context, content.Forest) error   { return f.saveErr }
func (f failingStore) Load(context.Context) (content.Forest, error) { return nil, f.loadErr }
func (f failingStore) Close() error                                 { return nil }
func (f failingStore) Location() string                             { return "failing" }

func testSource() *MockSource {
	return &MockSource{Listings: map[source.Target][]*content.Node{
		source.Children("root"): {
			testNode("P", content.KindPage, true),
			testNode("B", content.KindBlock, false),
		},
		source.Children("P"): {testNode("P1", content.KindBlock, false)},
	}}
}

func newRouter(t *testing.T, src source.Source, store snapshot.Store) *gin.Engine {
	t.Helper()
	r, err := replicate.New(src, replicate.Config{})
	require.NoError(t, err)
	svc, err := articles.NewService(r, store, articles.Config{Root: source.Children("root")})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/api/fetch-articles", FetchArticles(svc))
	router.GET("/api/articles", ListArticles(svc))
	router.GET("/api/article/:id", GetArticle(svc))
	return router
}

func fileStore(t *testing.T) *snapshot.FileStore {
	t.Helper()
	store, err := snapshot.NewFileStore(filepath.Join(t.TempDir(), "articles.json"))
	require.NoError(t, err)
	return store
}

func do(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := do(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

// =============================================================================
// FetchArticles Tests
// =============================================================================

func TestFetchArticles_Success(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))

	w := do(router, "/api/fetch-articles")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Articles fetched and saved successfully", body["message"])
	assert.NotEmpty(t, body["run_id"])
	assert.Equal(t, 2.0, body["articles"])
	assert.Equal(t, 3.0, body["nodes"])
	assert.Equal(t, 1.0, body["depth"])
	assert.Equal(t, 2.0, body["requests"])
	assert.Empty(t, body["warnings"])
}

func TestFetchArticles_Partial(t *testing.T) {
	src := testSource()
	src.ListFunc = func(target source.Target) (source.Page, error) {
		if target.ID == "P" {
			return source.Page{}, errors.New("rate limited")
		}
		return source.Page{Results: src.Listings[target]}, nil
	}
	router := newRouter(t, src, fileStore(t))

	w := do(router, "/api/fetch-articles")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "partial", body["status"])
	require.Len(t, body["warnings"], 1)
	assert.Contains(t, body["warnings"].([]any)[0], "rate limited")
}

func TestFetchArticles_InvalidMaxDepth(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))

	for _, q := range []string{"abc", "0", "-2", "8"} {
		t.Run(q, func(t *testing.T) {
			w := do(router, "/api/fetch-articles?max_depth="+q)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_max_depth", decodeBody(t, w)["error_code"])
		})
	}
}

func TestFetchArticles_MaxDepthOverride(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))

	w := do(router, "/api/fetch-articles?max_depth=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, decodeBody(t, w)["nodes"])
}

func TestFetchArticles_RootFailure(t *testing.T) {
	src := &MockSource{ListFunc: func(source.Target) (source.Page, error) {
		return source.Page{}, errors.New("unauthorized")
	}}
	router := newRouter(t, src, fileStore(t))

	w := do(router, "/api/fetch-articles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "fetch_failed", body["error_code"])
	assert.Contains(t, body["details"], "unauthorized")
}

func TestFetchArticles_SaveFailure(t *testing.T) {
	router := newRouter(t, testSource(), failingStore{saveErr: snapshot.ErrPersist})

	w := do(router, "/api/fetch-articles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "snapshot_persist_failed", decodeBody(t, w)["error_code"])
}

// =============================================================================
// ListArticles / GetArticle Tests
// =============================================================================

func TestListArticles_AfterFetch(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))
	require.Equal(t, http.StatusOK, do(router, "/api/fetch-articles").Code)

	w := do(router, "/api/articles")
	require.Equal(t, http.StatusOK, w.Code)

	forest, err := content.DecodeForest(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, forest, 2)
	assert.Equal(t, "P", forest[0].ID)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "P1", forest[0].Children[0].ID)
}

func TestListArticles_NoSnapshot(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))

	w := do(router, "/api/articles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "snapshot_unavailable", decodeBody(t, w)["error_code"])
}

func TestListArticles_CorruptSnapshot(t *testing.T) {
	store := fileStore(t)
	require.NoError(t, os.WriteFile(store.Location(), []byte("{not json"), 0o644))
	router := newRouter(t, testSource(), store)

	w := do(router, "/api/articles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "snapshot_corrupt", decodeBody(t, w)["error_code"])
}

func TestGetArticle(t *testing.T) {
	router := newRouter(t, testSource(), fileStore(t))
	require.Equal(t, http.StatusOK, do(router, "/api/fetch-articles").Code)

	w := do(router, "/api/article/P1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "P1", body["id"])
	assert.Equal(t, "block", body["object"])

	w = do(router, "/api/article/P")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["children"], 1)

	w = do(router, "/api/article/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "Article not found", body["error"])
	assert.Equal(t, "nope", body["id"])
}

func TestGetArticle_LoadFailure(t *testing.T) {
	router := newRouter(t, testSource(), failingStore{loadErr: snapshot.ErrUnavailable})

	w := do(router, "/api/article/P1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "snapshot_unavailable", decodeBody(t, w)["error_code"])
}

func TestFetchArticles_ReadOnly(t *testing.T) {
	svc, err := articles.NewService(nil, fileStore(t), articles.Config{})
	require.NoError(t, err)
	router := gin.New()
	router.GET("/api/fetch-articles", FetchArticles(svc))

	w := do(router, "/api/fetch-articles")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "fetch_disabled", decodeBody(t, w)["error_code"])
}

// testNode builds a node from a minimal provider block object.
func testNode(id string, kind content.Kind, hasChildren bool) *content.Node {
	blockType := "paragraph"
	switch kind {
	case content.KindPage:
		blockType = "child_page"
	case content.KindDatabase:
		blockType = "child_database"
	}
	raw := fmt.Sprintf(`{"object":"block","id":%q,"type":%q,"has_children":%t}`, id, blockType, hasChildren)
	node, err := content.ParseNode([]byte(raw))
	if err != nil {
		panic(err)
	}
	return node
}
