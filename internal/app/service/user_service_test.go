package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/auth"
)

func TestUserService_Register(t *testing.T) {
	var created *model.User
	users := &mockUserStore{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := NewUserService(nil, users)

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "long enough password")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if created == nil {
		t.Fatal("expected user row to be created")
	}
	if user.PasswordHash == "" || user.PasswordHash == "long enough password" {
		t.Fatal("expected password to be hashed")
	}
	if user.Role != model.RoleUser {
		t.Fatalf("expected user role, got %s", user.Role)
	}
	if user.SubscriptionIsActive() {
		t.Fatal("new accounts must start without an active subscription")
	}
}

func TestUserService_Register_WeakPassword(t *testing.T) {
	svc := NewUserService(nil, &mockUserStore{})

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "short")
	if !errors.Is(err, auth.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestUserService_Login(t *testing.T) {
	hash, err := auth.HashPassword("correct password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := &mockUserStore{
		getByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user_1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := NewUserService(nil, users)

	user, err := svc.Login(context.Background(), "ada@example.com", "correct password")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if user.ID != "user_1" {
		t.Fatalf("unexpected user %s", user.ID)
	}

	if _, err := svc.Login(context.Background(), "ada@example.com", "wrong password"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestUserService_Login_UnknownEmailIsIndistinguishable(t *testing.T) {
	users := &mockUserStore{
		getByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, repository.ErrUserNotFound
		},
	}
	svc := NewUserService(nil, users)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever password")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestUserService_SetSubscription(t *testing.T) {
	var gotStatus model.SubscriptionStatus
	var gotPlan model.Plan
	users := &mockUserStore{
		updateSubscriptionFn: func(ctx context.Context, id string, status model.SubscriptionStatus, plan model.Plan) error {
			gotStatus, gotPlan = status, plan
			return nil
		},
	}
	svc := NewUserService(nil, users)

	if err := svc.SetSubscription(context.Background(), "user_1", model.SubscriptionActive, model.PlanPro); err != nil {
		t.Fatalf("SetSubscription error: %v", err)
	}
	if gotStatus != model.SubscriptionActive || gotPlan != model.PlanPro {
		t.Fatalf("unexpected update: %s %s", gotStatus, gotPlan)
	}
}
