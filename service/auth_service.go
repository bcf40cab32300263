package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"arenaserver/models"
	"arenaserver/session"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// authService implements the AuthService interface
type authService struct {
	uowFactory      UnitOfWorkFactory
	secret          []byte
	allowRawUserIDs bool
}

// NewAuthService creates a new auth service. Tokens are HS256 JWTs whose sub
// claim is the user id; allowRawUserIDs additionally accepts a bare user id.
func NewAuthService(uowFactory UnitOfWorkFactory, secret string, allowRawUserIDs bool) AuthService {
	return &authService{
		uowFactory:      uowFactory,
		secret:          []byte(secret),
		allowRawUserIDs: allowRawUserIDs,
	}
}

// Authenticate resolves a credential to an active user
func (s *authService) Authenticate(ctx context.Context, cred session.Credential) (*models.User, error) {
	userID, err := s.resolveUserID(cred)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d not found", models.ErrAuth, userID)
	}
	if user.Banned {
		return nil, &models.BannedError{UserID: user.ID}
	}
	return user, nil
}

// CheckBanned returns ErrBanned if the user was banned since connecting
func (s *authService) CheckBanned(ctx context.Context, userID int64) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %d not found", models.ErrAuth, userID)
	}
	if user.Banned {
		return &models.BannedError{UserID: userID}
	}
	return nil
}

func (s *authService) resolveUserID(cred session.Credential) (int64, error) {
	if cred.Token != "" {
		return s.parseToken(cred.Token)
	}
	if s.allowRawUserIDs && cred.UserID > 0 {
		return cred.UserID, nil
	}
	return 0, fmt.Errorf("%w: missing token", models.ErrAuth)
}

func (s *authService) parseToken(raw string) (int64, error) {
	if len(s.secret) == 0 {
		return 0, fmt.Errorf("%w: token verification is not configured", models.ErrAuth)
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		log.WithError(err).Debug("Rejected token")
		return 0, fmt.Errorf("%w: %w", models.ErrAuth, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected claims", models.ErrAuth)
	}

	var userID int64
	switch sub := claims["sub"].(type) {
	case float64:
		userID = int64(sub)
	case string:
		userID, err = strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid subject %q", models.ErrAuth, sub)
		}
	default:
		return 0, fmt.Errorf("%w: missing subject", models.ErrAuth)
	}
	if userID <= 0 {
		return 0, fmt.Errorf("%w: invalid subject", models.ErrAuth)
	}
	return userID, nil
}

func (s *authService) getUser(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// IsAuthError reports whether err rejects the client rather than the server
func IsAuthError(err error) bool {
	return errors.Is(err, models.ErrAuth) || errors.Is(err, models.ErrBanned)
}
