package services

import (
	"context"
	"errors"
	"io"

	"karte-backend/internal/apperror"
	"karte-backend/internal/photostore"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// objectConcurrency bounds parallel storage calls within one request
const objectConcurrency = 4

// Upload is a photo to be stored
type Upload struct {
	Reader      io.Reader
	ContentType string
}

// deleteObjects removes storage objects in parallel. Failures are logged
// and ignored; a missing object counts as deleted.
func deleteObjects(ctx context.Context, store photostore.Store, paths []string) {
	if len(paths) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(objectConcurrency)
	for _, p := range paths {
		g.Go(func() error {
			if err := store.Delete(ctx, p); err != nil && !errors.Is(err, apperror.ErrNotFound) {
				log.Warn().Err(err).Str("path", p).Msg("Failed to delete photo object")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// putObjects uploads every path→upload pair in parallel and fails on the
// first error.
func putObjects(ctx context.Context, store photostore.Store, uploads map[string]Upload) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(objectConcurrency)
	for path, up := range uploads {
		g.Go(func() error {
			contentType := up.ContentType
			if contentType == "" {
				contentType = "image/jpeg"
			}
			return store.Put(gctx, path, contentType, up.Reader)
		})
	}
	return g.Wait()
}
