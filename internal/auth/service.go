package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"artspire/internal/constants"
	"artspire/internal/endpoints"
	"artspire/internal/logger"
	pkgerrors "artspire/pkg/errors"
)

const minPasswordLength = 6

// ImageStorer persists an image and returns its blob name.
type ImageStorer interface {
	StoreImage(ctx context.Context, req endpoints.ImageStoreRequest) (string, error)
}

type Service struct {
	repo   Repository
	tokens *Tokens
	images ImageStorer
	logger logger.Logger
}

func NewService(repo Repository, tokens *Tokens, images ImageStorer, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		images: images,
		logger: log.Named("auth"),
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.ErrValidation.WithDetail("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}

	user := &User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfowCtx(ctx, "User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	invalid := pkgerrors.ErrUnauthorized.WithMessage("invalid username or password")

	user, err := s.repo.GetByUsername(ctx, req.Username)
	if pkgerrors.IsNotFound(err) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkgerrors.ErrForbidden.WithMessage("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	access, err := s.tokens.Issue(constants.AccessTokenType, user)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}
	refresh, err := s.tokens.Issue(constants.RefreshTokenType, user)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}

	return &TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}

// Refresh exchanges a refresh token for a new access token carrying the
// user's current profile.
func (s *Service) Refresh(ctx context.Context, raw string) (*TokenResponse, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims["type"] != constants.RefreshTokenType {
		return nil, pkgerrors.ErrUnauthorized.WithMessage("not a refresh token")
	}

	id, ok := Subject(claims)
	if !ok {
		return nil, pkgerrors.ErrUnauthorized.WithMessage("invalid subject")
	}
	user, err := s.repo.GetByID(ctx, id)
	if pkgerrors.IsNotFound(err) {
		return nil, pkgerrors.ErrUnauthorized.WithMessage("unknown user")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkgerrors.ErrForbidden.WithMessage("user is inactive")
	}

	access, err := s.tokens.Issue(constants.AccessTokenType, user)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}
	return &TokenResponse{AccessToken: access, TokenType: "Bearer"}, nil
}

// Authenticate accepts access tokens only.
func (s *Service) Authenticate(_ context.Context, raw string) (map[string]interface{}, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims["type"] != constants.AccessTokenType {
		return nil, pkgerrors.ErrUnauthorized.WithMessage("not an access token")
	}
	return claims, nil
}

func (s *Service) Me(ctx context.Context, id int) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfileImage stores the image through the image service and points
// the user's profile at the returned blob.
func (s *Service) UpdateProfileImage(ctx context.Context, id int, req ProfileImageRequest) (string, error) {
	if s.images == nil {
		return "", pkgerrors.ErrServiceUnavailable.WithMessage("image storage not configured")
	}

	blobName, err := s.images.StoreImage(ctx, endpoints.ImageStoreRequest{
		ImgBase64: req.ImgBase64,
		ImgType:   req.ImgType,
		BlobName:  fmt.Sprintf("profiles/%d/%s", id, uuid.NewString()),
	})
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdateProfileImage(ctx, id, blobName); err != nil {
		return "", err
	}

	s.logger.InfowCtx(ctx, "Profile image updated", "user_id", id, "blob_name", blobName)
	return blobName, nil
}
