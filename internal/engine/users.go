package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"

	"blinkworks/internal/domain"
	"blinkworks/internal/engine/auth"
	"blinkworks/internal/events"
	"blinkworks/internal/repo"
)

type CreateUserInput struct {
	// ActorID may be empty only while the directory is empty; the first user must be an admin.
	ActorID string
	ID      string      `validate:"omitempty,max=100"`
	Role    domain.Role `validate:"required,oneof=client designer admin"`
	Name    string      `validate:"required,max=200"`
	Email   string      `validate:"omitempty,email"`
}

// CreateUser registers a user. Only admins may add users once one exists.
func (e Engine) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	in.Name = trimmed(in.Name)
	in.Email = trimmed(in.Email)
	if err := validateInput(in); err != nil {
		return domain.User{}, err
	}
	// The actor is resolved before the transaction; the store has one connection.
	actor, actorErr := e.actor(ctx, in.ActorID)
	u := domain.User{ID: in.ID, Role: in.Role, Name: in.Name, Email: in.Email, CreatedAt: e.now()}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	actorID := in.ActorID
	if actorID == "" {
		actorID = u.ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, storeErr("begin", err)
	}
	defer tx.Rollback()
	existing, err := e.Repo.CountUsersTx(ctx, tx)
	if err != nil {
		return domain.User{}, storeErr("count users", err)
	}
	if existing == 0 {
		if in.Role != domain.RoleAdmin {
			return domain.User{}, ValidationError{Field: "role", Reason: "the first user must be an admin"}
		}
	} else {
		if actorErr != nil {
			return domain.User{}, actorErr
		}
		if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
			return domain.User{}, err
		}
	}
	if _, err := e.Repo.GetUserTx(ctx, tx, u.ID); err == nil {
		return domain.User{}, ValidationError{Field: "id", Reason: "user " + u.ID + " already exists"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, storeErr("get user", err)
	}
	u, err = e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		return domain.User{}, storeErr("insert user", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.UserCreated,
		EntityKind: "user",
		EntityID:   u.ID,
		ActorID:    actorID,
		Payload:    events.Payload{"role": u.Role},
	}); err != nil {
		return domain.User{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, storeErr("commit", err)
	}
	return u, nil
}

// ListUsers is admin only.
func (e Engine) ListUsers(ctx context.Context, actorID string, role domain.Role) ([]domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := e.Repo.ListUsers(ctx, role)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

// CreateAPIKey mints a key for userID. The raw key is returned once; only its hash is stored.
// Users may mint keys for themselves; admins for anyone.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (string, domain.APIKey, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID {
		if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
			return "", domain.APIKey{}, err
		}
	}
	if _, err := e.actor(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "bw_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:      uuid.NewString(),
		UserID:  userID,
		Name:    trimmed(name),
		KeyHash: repo.HashAPIKey(raw),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, storeErr("begin", err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, storeErr("insert api key", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.APIKeyCreated,
		EntityKind: "api_key",
		EntityID:   key.ID,
		ActorID:    actor.ID,
		Payload:    events.Payload{"user_id": userID, "name": key.Name},
	}); err != nil {
		return "", domain.APIKey{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, storeErr("commit", err)
	}
	return raw, key, nil
}

// ResolveAPIKey returns the user owning raw.
func (e Engine) ResolveAPIKey(ctx context.Context, raw string) (domain.User, error) {
	if trimmed(raw) == "" {
		return domain.User{}, ValidationError{Field: "api_key", Reason: "required"}
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, NotFoundError{Kind: "api key", ID: "(redacted)"}
	}
	if err != nil {
		return domain.User{}, storeErr("get api key", err)
	}
	return e.actor(ctx, key.UserID)
}

// User resolves a user by ID.
func (e Engine) User(ctx context.Context, id string) (domain.User, error) {
	return e.actor(ctx, id)
}
