package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haldanelabs/tvarstm"
)

// handler holds the single dependency every route needs: the Store to run transactions against.
type handler struct {
	store *stm.Store
}

func newHandler(s *stm.Store) *handler {
	return &handler{store: s}
}

// register mounts every route on r.
func (h *handler) register(r *gin.Engine) {
	tvars := r.Group("/tvars")
	tvars.POST("/:id", h.create)
	tvars.GET("/:id", h.read)
	tvars.PUT("/:id", h.replace)
	tvars.PATCH("/:id/*path", h.patch)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, stm.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, stm.ErrNotFound), errors.Is(err, stm.ErrPathAbsent):
		return http.StatusNotFound
	case errors.Is(err, stm.ErrMaxRetriesExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

// create handles POST /tvars/:id. The request body is the initial JSON value.
func (h *handler) create(c *gin.Context) {
	id := c.Param("id")
	var value any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.NewTVar(c.Request.Context(), id, value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// read handles GET /tvars/:id, running a read-only transaction so the response always reflects a
// single committed snapshot.
func (h *handler) read(c *gin.Context) {
	id := c.Param("id")
	var value any
	var version uint64
	err := h.store.Atomically(c.Request.Context(), func(ctx context.Context, tx *stm.Tx) error {
		v, err := tx.ReadTVar(ctx, id)
		if err != nil {
			return err
		}
		// Taken inside the transaction: if a commit moves the version after ReadTVar, commit-time
		// validation of the read set fails and this closure runs again.
		ver, _, err := h.store.CurrentVersion(ctx, id)
		if err != nil {
			return err
		}
		value, version = v, ver
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value, "version": version})
}

// replace handles PUT /tvars/:id, overwriting the TVar's whole value.
func (h *handler) replace(c *gin.Context) {
	id := c.Param("id")
	var value any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.store.Atomically(c.Request.Context(), func(ctx context.Context, tx *stm.Tx) error {
		tx.WriteTVar(id, value)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// patch handles PATCH /tvars/:id/*path, setting the value at path. Gin's wildcard match captures
// the rest of the URL as slash-separated segments (e.g. "/alice/balance"); jsonpath's grammar is
// dot/bracket based, so slashes are rewritten to dots before normalizing.
func (h *handler) patch(c *gin.Context) {
	id := c.Param("id")
	path := strings.ReplaceAll(strings.TrimPrefix(c.Param("path"), "/"), "/", ".")
	var value any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.store.Atomically(c.Request.Context(), func(ctx context.Context, tx *stm.Tx) error {
		return tx.UpdateTVarPath(id, path, value)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
