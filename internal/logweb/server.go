// Package logweb serves saved thread transcripts and locally stored
// attachments over HTTP, backing the stable URLs posted into threads.
package logweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mailroom/internal/attachments"
)

// StartOpts holds configuration for the log server.
type StartOpts struct {
	Files attachments.Store
	Port  int
	Out   io.Writer
}

// Start launches the log HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Files == nil {
		return fmt.Errorf("logweb: attachment store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8890
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts.Files)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Log server running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("logweb: %w", err)
	}
	return nil
}

// registerRoutes sets up the transcript and attachment routes.
func registerRoutes(router *gin.Engine, files attachments.Store) {
	router.GET("/logs/:filename", func(c *gin.Context) {
		serveBlob(c, files, attachments.LogKey(c.Param("filename")), "text/plain; charset=utf-8")
	})
	router.GET("/attachments/:id/:filename", func(c *gin.Context) {
		key := attachments.AttachmentKey(c.Param("id"), c.Param("filename"))
		serveBlob(c, files, key, "application/octet-stream")
	})
}

// serveBlob streams a stored blob, returning 404 for unknown or invalid keys.
func serveBlob(c *gin.Context, files attachments.Store, key, contentType string) {
	// Route params are single segments, but reject traversal outright.
	if path.Clean(key) != key {
		c.Status(http.StatusNotFound)
		return
	}

	r, err := files.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.Status(http.StatusNotFound)
		} else {
			c.Status(http.StatusInternalServerError)
		}
		return
	}
	defer r.Close()

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, r)
}
