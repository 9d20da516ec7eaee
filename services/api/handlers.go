// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/library"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

// SelectionRequest is the body of PUT /v1/selection.
type SelectionRequest struct {
	ModelID string `json:"model_id" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.library.Views(c.Query("query"))})
}

func (s *Server) handleGetModel(c *gin.Context) {
	view, err := s.library.View(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleCreateModel(c *gin.Context) {
	var in catalog.CustomInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if in.ExistingID != "" {
		if _, exists := s.library.Store().Model(in.ExistingID); exists {
			s.fail(c, modelstore.ErrDuplicateID)
			return
		}
	}
	d, err := s.library.SaveCustom(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) handleUpdateModel(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.library.Store().Model(id); !ok {
		s.fail(c, modelstore.ErrModelNotFound)
		return
	}
	var in catalog.CustomInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	in.ExistingID = id
	d, err := s.library.SaveCustom(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleRemoveModel(c *gin.Context) {
	removed, err := s.library.RemoveModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleStartDownload(c *gin.Context) {
	state, err := s.library.StartDownload(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, state)
}

func (s *Server) handleCancelDownload(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.library.Store().Model(id); !ok {
		s.fail(c, modelstore.ErrModelNotFound)
		return
	}
	canceled := s.library.Coordinator().Cancel(id)
	c.JSON(http.StatusOK, gin.H{
		"canceled": canceled,
		"state":    s.library.Coordinator().State(id),
	})
}

func (s *Server) handleDeleteFiles(c *gin.Context) {
	if err := s.library.DeleteFiles(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"downloads": s.library.Coordinator().States()})
}

func (s *Server) handleGetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"model_id": s.library.Store().SelectedID()})
}

func (s *Server) handleSetSelection(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.library.Store().Select(c.Request.Context(), req.ModelID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": req.ModelID})
}

// fail writes err with the status that matches its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, modelstore.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, modelstore.ErrDuplicateID),
		errors.Is(err, library.ErrNotDownloadable):
		return http.StatusConflict
	case errors.Is(err, modelstore.ErrBuiltInProtected):
		return http.StatusForbidden
	case errors.Is(err, modelstore.ErrUntrustedVision),
		errors.Is(err, catalog.ErrNameRequired),
		errors.Is(err, catalog.ErrInvalidURL),
		errors.Is(err, catalog.ErrNoFilename),
		errors.Is(err, catalog.ErrInvalidDescriptor):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
