package service

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"profilehub/api/internal/apperr"
	"profilehub/api/internal/config"
	"profilehub/api/internal/media/sniffer"
	"profilehub/api/internal/media/validator"
	"profilehub/api/internal/models"
	"profilehub/api/internal/repository"
	"profilehub/api/internal/storage"
)

// ProfileService sequences the profile picture upload pipeline: authorization
// gate, validation, dual-copy object write (archive then active), URL
// construction and persisted-record update.
type ProfileService struct {
	users     UserStore
	store     BlobStore
	validator *validator.Validator
	cfg       *config.AppConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewProfileService(users UserStore, store BlobStore, imageValidator *validator.Validator, cfg *config.AppConfig, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		users:     users,
		store:     store,
		validator: imageValidator,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// PictureView is the read-side projection of a stored profile picture: the
// stable public URL plus a time-limited presigned fetch URL.
type PictureView struct {
	URL          string
	PresignedURL string
}

// UploadProfilePicture runs the full upload pipeline for targetUserID on
// behalf of caller. Validation failures are reported before any storage
// mutation occurs. A storage failure between the archive and active writes
// leaves an orphaned archive copy; that inconsistency window is accepted and
// not rolled back.
func (s *ProfileService) UploadProfilePicture(ctx context.Context, targetUserID string, caller models.Identity, file multipart.File, header *multipart.FileHeader) (models.User, error) {
	user, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, apperr.Internal("look up user", err)
	}

	if err := s.authorize(caller, user); err != nil {
		return models.User{}, err
	}

	if file == nil || header == nil {
		return models.User{}, apperr.BadRequest("missing file payload")
	}

	// Cheap shape checks first, before any byte is stored.
	contentType := sniffer.MimeTypeFromHeader(header)
	if contentType == "" {
		return models.User{}, apperr.BadRequest("missing content type, please upload a valid image file")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return models.User{}, apperr.BadRequest("invalid file type: %s, only image files are allowed (jpg, jpeg, png, gif)", contentType)
	}
	if header.Filename == "" {
		return models.User{}, apperr.BadRequest("missing filename, please ensure your image file has a name")
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !validator.AllowedExtension(ext) {
		return models.User{}, apperr.BadRequest("invalid file extension: %s, allowed extensions are: %s", ext, strings.Join(validator.AllowedExtensions(), ", "))
	}

	data, err := readAndRewind(file)
	if err != nil {
		return models.User{}, apperr.Internal("read upload", err)
	}
	if len(data) == 0 {
		return models.User{}, apperr.BadRequest("empty file received, please select a valid image file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes() {
		return models.User{}, apperr.BadRequest("file size exceeds the %d MB limit", s.cfg.Upload.MaxSizeMB)
	}

	if _, err := s.validator.Validate(file, header.Filename, contentType); err != nil {
		var vErr *validator.Error
		if errors.As(err, &vErr) {
			return models.User{}, apperr.BadRequest("%s", vErr.Reason)
		}
		return models.User{}, apperr.Internal("validate image", err)
	}

	// Prefer the content type derived from the actual bytes over the
	// declared one; fall back to the extension mapping.
	uploadContentType := contentType
	if detected, derr := sniffer.DetectHead(data); derr == nil {
		uploadContentType = detected.MIME
	} else if !strings.HasPrefix(uploadContentType, "image/") {
		uploadContentType = sniffer.ContentTypeForExtension(ext)
	}

	uploadedAt := s.now().UTC()
	archiveName := storage.ArchiveObjectName(user.ID, ext, uploadedAt)
	activeName := storage.ActiveObjectName(user.ID, ext)

	// Archive copy first so history is preserved even if the active write
	// fails.
	if err := s.store.Upload(ctx, archiveName, data, uploadContentType); err != nil {
		return models.User{}, apperr.Internal("store archive copy", err)
	}
	if err := s.store.Upload(ctx, activeName, data, uploadContentType); err != nil {
		return models.User{}, apperr.Internal("store active copy", err)
	}

	url := s.store.PublicURL(activeName)

	updated, err := s.users.SetProfilePictureURL(ctx, user.ID, &url)
	if err != nil {
		// A missing row here is a race with a concurrent delete, not a
		// client mistake.
		return models.User{}, apperr.Internal("update profile picture url", err)
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("object", activeName).
		Int("size_bytes", len(data)).
		Msg("profile picture uploaded")

	return updated, nil
}

// GetProfilePicture resolves both read paths for the active object: the
// stable public URL and a presigned fetch URL.
func (s *ProfileService) GetProfilePicture(ctx context.Context, targetUserID string, caller models.Identity) (PictureView, error) {
	user, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return PictureView{}, apperr.NotFound("user not found")
		}
		return PictureView{}, apperr.Internal("look up user", err)
	}

	if user.ProfilePictureURL == nil {
		return PictureView{}, apperr.NotFound("user has no profile picture")
	}

	activeName, err := s.findActiveObject(ctx, user.ID)
	if err != nil {
		return PictureView{}, err
	}

	presigned, err := s.store.PresignedURL(ctx, activeName)
	if err != nil {
		return PictureView{}, apperr.Internal("presign profile picture", err)
	}

	return PictureView{
		URL:          *user.ProfilePictureURL,
		PresignedURL: presigned,
	}, nil
}

// ListArchive returns the historical copies for a user, newest first. The
// archive names embed second-granularity timestamps, so lexicographic order
// is chronological.
func (s *ProfileService) ListArchive(ctx context.Context, targetUserID string, caller models.Identity) ([]string, error) {
	user, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("look up user", err)
	}

	if err := s.authorize(caller, user); err != nil {
		return nil, err
	}

	names, err := s.store.List(ctx, storage.UserPrefix(user.ID))
	if err != nil {
		return nil, apperr.Internal("list archive", err)
	}

	archives := names[:0]
	for _, name := range names {
		if storage.IsArchiveObject(name) {
			archives = append(archives, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(archives)))
	return archives, nil
}

// DeleteProfilePicture removes the active object best-effort and clears the
// persisted URL. Archive copies are retained.
func (s *ProfileService) DeleteProfilePicture(ctx context.Context, targetUserID string, caller models.Identity) (models.User, error) {
	user, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, apperr.Internal("look up user", err)
	}

	if err := s.authorize(caller, user); err != nil {
		return models.User{}, err
	}

	names, err := s.store.List(ctx, storage.UserPrefix(user.ID))
	if err != nil {
		return models.User{}, apperr.Internal("list objects", err)
	}
	for _, name := range names {
		if storage.IsArchiveObject(name) {
			continue
		}
		if !s.store.Delete(ctx, name) {
			s.log.Warn().Str("object", name).Msg("active object delete failed")
		}
	}

	updated, err := s.users.SetProfilePictureURL(ctx, user.ID, nil)
	if err != nil {
		return models.User{}, apperr.Internal("clear profile picture url", err)
	}
	return updated, nil
}

// authorize permits elevated roles unconditionally; everyone else may only
// act on their own record. The caller id is already canonical, normalized
// once by the auth middleware.
func (s *ProfileService) authorize(caller models.Identity, target models.User) error {
	if caller.Elevated() {
		return nil
	}
	if caller.UserID == target.ID {
		return nil
	}
	return apperr.Forbidden("you can only update your own profile picture")
}

func (s *ProfileService) findActiveObject(ctx context.Context, userID string) (string, error) {
	names, err := s.store.List(ctx, storage.UserPrefix(userID))
	if err != nil {
		return "", apperr.Internal("list objects", err)
	}
	for _, name := range names {
		if !storage.IsArchiveObject(name) {
			return name, nil
		}
	}
	return "", apperr.NotFound("profile picture object not found")
}

// readAndRewind consumes the upload stream and restores the cursor so later
// consumers see the payload from the start.
func readAndRewind(file multipart.File) ([]byte, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return data, nil
}
