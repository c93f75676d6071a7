package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilehub/api/internal/config"
	"profilehub/api/internal/media/validator"
	"profilehub/api/internal/middleware"
	"profilehub/api/internal/models"
	"profilehub/api/internal/repository"
	"profilehub/api/internal/security"
	"profilehub/api/internal/service"
)

type stubUsers struct {
	users map[string]models.User
	calls int
}

func (s *stubUsers) Create(_ context.Context, user models.User) error {
	s.calls++
	s.users[user.ID] = user
	return nil
}

func (s *stubUsers) GetByID(_ context.Context, id string) (models.User, error) {
	s.calls++
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.calls++
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubUsers) SetProfilePictureURL(_ context.Context, id string, url *string) (models.User, error) {
	s.calls++
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	user.ProfilePictureURL = url
	s.users[id] = user
	return user, nil
}

func (s *stubUsers) SetVerificationSecret(_ context.Context, id string, secret string) error {
	s.calls++
	user := s.users[id]
	user.VerificationSecret = &secret
	s.users[id] = user
	return nil
}

func (s *stubUsers) MarkEmailVerified(_ context.Context, id string) error {
	s.calls++
	user := s.users[id]
	user.EmailVerified = true
	s.users[id] = user
	return nil
}

type stubBlobs struct {
	objects map[string][]byte
	calls   int
}

func (s *stubBlobs) Upload(_ context.Context, objectName string, data []byte, _ string) error {
	s.calls++
	s.objects[objectName] = append([]byte(nil), data...)
	return nil
}

func (s *stubBlobs) List(_ context.Context, prefix string) ([]string, error) {
	s.calls++
	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *stubBlobs) Delete(_ context.Context, objectName string) bool {
	s.calls++
	delete(s.objects, objectName)
	return true
}

func (s *stubBlobs) PublicURL(objectName string) string {
	return "http://blobs.local/profilehub/" + objectName
}

func (s *stubBlobs) PresignedURL(_ context.Context, objectName string) (string, error) {
	return "http://blobs.local/profilehub/" + objectName + "?sig=test", nil
}

type profileTestEnv struct {
	router *gin.Engine
	cfg    *config.AppConfig
	users  *stubUsers
	blobs  *stubBlobs
}

func newProfileTestEnv(t *testing.T, strict bool) *profileTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:    "test-secret",
			JWTAccessTTL: time.Minute,
		},
		Upload: config.UploadConfig{
			MaxSizeMB:        5,
			MinDimension:     10,
			MaxDimension:     5000,
			StrictValidation: strict,
		},
	}

	users := &stubUsers{users: map[string]models.User{
		"user-1":  {ID: "user-1", Email: "one@example.com", Role: models.UserRoleUser},
		"user-2":  {ID: "user-2", Email: "two@example.com", Role: models.UserRoleUser},
		"admin-1": {ID: "admin-1", Email: "admin@example.com", Role: models.UserRoleAdmin},
	}}
	blobs := &stubBlobs{objects: map[string][]byte{}}

	imageValidator := validator.New(strict, cfg.Upload.MinDimension, cfg.Upload.MaxDimension)
	h := HandlerSet{
		log:     zerolog.Nop(),
		cfg:     cfg,
		profile: service.NewProfileService(users, blobs, imageValidator, cfg, zerolog.Nop()),
	}

	router := gin.New()
	group := router.Group("/api/v1/users")
	group.Use(middleware.Auth(cfg, users))
	group.POST("/:userId/profile-picture", h.UploadProfilePicture)
	group.GET("/:userId/profile-picture", h.GetProfilePicture)
	group.GET("/:userId/profile-picture/history", h.ProfilePictureHistory)
	group.DELETE("/:userId/profile-picture", h.DeleteProfilePicture)

	return &profileTestEnv{router: router, cfg: cfg, users: users, blobs: blobs}
}

func (e *profileTestEnv) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	user, ok := e.users.users[userID]
	require.True(t, ok)
	token, err := security.GenerateAccessToken(e.cfg.Security.JWTSecret, user.ID, "sess-1", string(user.Role), e.cfg.Security.JWTAccessTTL)
	require.NoError(t, err)
	return token
}

func multipartBody(t *testing.T, data []byte, filename, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return buf.Bytes()
}

func TestUploadProfilePicture_Unauthenticated(t *testing.T) {
	env := newProfileTestEnv(t, true)

	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.users.calls, "an unauthenticated request must not reach any collaborator")
	assert.Zero(t, env.blobs.calls)
}

func TestUploadProfilePicture_InvalidToken(t *testing.T) {
	env := newProfileTestEnv(t, true)

	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.blobs.calls)
}

func TestUploadProfilePicture_OwnerSuccess(t *testing.T) {
	env := newProfileTestEnv(t, true)

	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, "user-1"))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID                string  `json:"id"`
		ProfilePictureURL *string `json:"profile_picture_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.ID)
	require.NotNil(t, resp.ProfilePictureURL)
	assert.Equal(t, "http://blobs.local/profilehub/profile_pictures/user-1/profile.png", *resp.ProfilePictureURL)

	// Archive copy plus active copy.
	assert.Len(t, env.blobs.objects, 2)
}

func TestUploadProfilePicture_ForbiddenForOtherUser(t *testing.T) {
	env := newProfileTestEnv(t, true)

	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-2/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, "user-1"))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.blobs.objects)
}

func TestUploadProfilePicture_AdminUploadsTinyJPEGWithRelaxedValidation(t *testing.T) {
	env := newProfileTestEnv(t, false)

	// 19 bytes labeled image/jpeg; only the relaxed validator accepts this.
	payload := []byte("fake-image-contents")
	require.Len(t, payload, 19)

	body, contentType := multipartBody(t, payload, "tiny.jpg", "image/jpeg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-2/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, "admin-1"))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ProfilePictureURL *string `json:"profile_picture_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.ProfilePictureURL)
	assert.Contains(t, *resp.ProfilePictureURL, "profile_pictures/user-2/profile.jpg")

	archives := 0
	for name := range env.blobs.objects {
		if strings.Contains(name, "/archive/") {
			archives++
		}
	}
	assert.Equal(t, 1, archives)
}

func TestUploadProfilePicture_StrictRejectsTinyJPEG(t *testing.T) {
	env := newProfileTestEnv(t, true)

	body, contentType := multipartBody(t, []byte("fake-image-contents"), "tiny.jpg", "image/jpeg")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, "user-1"))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.blobs.objects)
}

func TestUploadProfilePicture_MissingFilePart(t *testing.T) {
	env := newProfileTestEnv(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=empty")
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, "user-1"))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file is required")
}

func TestProfilePictureLifecycle(t *testing.T) {
	env := newProfileTestEnv(t, true)
	token := env.tokenFor(t, "user-1")

	// Upload.
	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Read both URLs back.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/profile-picture", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		URL          string `json:"url"`
		PresignedURL string `json:"presigned_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Contains(t, view.URL, "profile_pictures/user-1/profile.png")
	assert.Contains(t, view.PresignedURL, "sig=")

	// History has the archive copy.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/profile-picture/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Archives []string `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Archives, 1)

	// Delete clears the active copy and the stored URL.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/users/user-1/profile-picture", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/profile-picture", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmailSubjectTokenResolvesToCanonicalIdentity(t *testing.T) {
	env := newProfileTestEnv(t, true)

	// Legacy tokens put the email address in the subject claim; the auth
	// middleware must resolve it to the same canonical user id.
	token, err := security.GenerateAccessToken(env.cfg.Security.JWTSecret, "one@example.com", "sess-1", "user", time.Minute)
	require.NoError(t, err)

	body, contentType := multipartBody(t, smallPNG(t), "avatar.png", "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/profile-picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
