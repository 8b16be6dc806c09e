// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
)

// maxObjectBytes caps how much of a snapshot object Load will read.
const maxObjectBytes = 256 << 20

// object is the part of *storage.ObjectHandle the store uses.
type object interface {
	NewWriter(ctx context.Context) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o gcsObject) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}

func (o gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.handle.NewReader(ctx)
}

// GCSConfig locates the snapshot object.
type GCSConfig struct {
	Bucket string
	Object string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// GCSStore keeps the snapshot as one Cloud Storage object. GCS commits an
// object only when its writer closes successfully, so a failed Save leaves
// the previous object in place.
type GCSStore struct {
	obj      object
	client   *storage.Client
	name     string
	maxBytes int64
}

// NewGCSStore connects to Cloud Storage.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" || cfg.Object == "" {
		return nil, errors.New("gcs bucket and object are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{
		obj:    gcsObject{handle: client.Bucket(cfg.Bucket).Object(cfg.Object)},
		client:   client,
		name:     "gs://" + cfg.Bucket + "/" + cfg.Object,
		maxBytes: maxObjectBytes,
	}, nil
}

func (s *GCSStore) Save(ctx context.Context, forest content.Forest) error {
	data, err := encode(forest)
	if err != nil {
		return err
	}

	// Cancelling the writer's context aborts the upload without committing.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("%w: write %s: %w", ErrPersist, s.name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", ErrPersist, s.name, err)
	}
	return nil
}

func (s *GCSStore) Load(ctx context.Context) (content.Forest, error) {
	r, err := s.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrUnavailable, s.name)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, s.name, err)
	}
	defer r.Close()

	limit := s.maxBytes
	if limit <= 0 {
		limit = maxObjectBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, s.name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnavailable, s.name, limit)
	}
	return decode(data)
}

// Location returns the gs:// URL of the snapshot object.
func (s *GCSStore) Location() string {
	return s.name
}

func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
