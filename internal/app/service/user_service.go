package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/auth"
	"go.uber.org/zap"
)

// ErrBadCredentials signals a failed login. Deliberately vague: the caller
// cannot tell a missing account from a wrong password.
var ErrBadCredentials = errors.New("invalid email or password")

// UserService covers registration, login and the admin-side subscription
// toggles that drive the owner-inactive override.
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	SetSubscription(ctx context.Context, id string, status model.SubscriptionStatus, plan model.Plan) error
}

type userService struct {
	logger *zap.Logger
	users  repository.UserStore
}

// NewUserService returns a UserService backed by the given store.
func NewUserService(logger *zap.Logger, users repository.UserStore) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{logger: logger, users: users}
}

func (s *userService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           newID("user"),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Subscription: model.SubscriptionInactive,
		Plan:         model.PlanNone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userService) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *userService) SetSubscription(ctx context.Context, id string, status model.SubscriptionStatus, plan model.Plan) error {
	if err := s.users.UpdateSubscription(ctx, id, status, plan); err != nil {
		return err
	}
	s.logger.Info("subscription updated",
		zap.String("user_id", id),
		zap.String("status", string(status)),
		zap.String("plan", string(plan)))
	return nil
}
