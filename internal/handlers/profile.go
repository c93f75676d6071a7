package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"profilehub/api/internal/middleware"
)

func (h HandlerSet) UploadProfilePicture(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	user, err := h.profile.UploadProfilePicture(c.Request.Context(), c.Param("userId"), identity, file, header)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h HandlerSet) GetProfilePicture(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.profile.GetProfilePicture(c.Request.Context(), c.Param("userId"), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":           view.URL,
		"presigned_url": view.PresignedURL,
	})
}

func (h HandlerSet) ProfilePictureHistory(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	archives, err := h.profile.ListArchive(c.Request.Context(), c.Param("userId"), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if archives == nil {
		archives = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"archives": archives})
}

func (h HandlerSet) DeleteProfilePicture(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.profile.DeleteProfilePicture(c.Request.Context(), c.Param("userId"), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h HandlerSet) PruneArchives(c *gin.Context) {
	pruned, err := h.pruner.Run(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pruned": pruned})
}
