package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// MinPasswordLength is the shortest accepted account password.
const MinPasswordLength = 8

// ══════════════════════════════════════════════════════════════════════════════
// CREATE ACCOUNT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateAccountCommand contains the data to register an account.
type CreateAccountCommand struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Phone       string
	AvatarURL   string
}

// Validate validates the command.
func (c CreateAccountCommand) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return invalid("CreateAccount", "username is required")
	}
	if len(c.Password) < MinPasswordLength {
		return invalid("CreateAccount", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	// bcrypt ignores input past 72 bytes.
	if len(c.Password) > 72 {
		return invalid("CreateAccount", "password must be at most 72 bytes")
	}
	return nil
}

// CreateAccountResult contains the created account.
type CreateAccountResult struct {
	Account *graph.Account
	Events  []shared.Event
}

// CreateAccountHandler handles the CreateAccountCommand.
type CreateAccountHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	bcryptCost     int
}

// NewCreateAccountHandler creates a new CreateAccountHandler. A cost of zero
// selects bcrypt.DefaultCost.
func NewCreateAccountHandler(store graph.Store, eventPublisher shared.EventPublisher, bcryptCost int) *CreateAccountHandler {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &CreateAccountHandler{
		store:          store,
		eventPublisher: eventPublisher,
		bcryptCost:     bcryptCost,
	}
}

// Handle hashes the credential and stores the account with zero counters.
func (h *CreateAccountHandler) Handle(ctx context.Context, cmd CreateAccountCommand) (result *CreateAccountResult, err error) {
	ctx, span := startSpan(ctx, "CreateAccount", attribute.String("account.username", cmd.Username))
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_account: validation failed: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), h.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("create_account: hash password: %w", err)
	}

	account, err := graph.NewAccount(graph.NewAccountParams{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(cmd.Username),
		PasswordHash: string(hash),
		DisplayName:  cmd.DisplayName,
		Email:        cmd.Email,
		Phone:        cmd.Phone,
		AvatarURL:    cmd.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create_account: %w", err)
	}

	if err := h.store.Repositories().Accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create_account: %w", err)
	}

	result = &CreateAccountResult{Account: account}
	result.Events = append(result.Events, shared.NewAccountCreatedEvent(account.ID, account.Username))
	publish(h.eventPublisher, result.Events)

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE PROFILE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateProfileCommand contains the data to create a profile.
type CreateProfileCommand struct {
	Slug        string
	EntityType  graph.ProfileType
	Name        string
	Description string
	Location    string
	ImageURL    string
}

// Validate validates the command.
func (c CreateProfileCommand) Validate() error {
	if strings.TrimSpace(c.Slug) == "" {
		return invalid("CreateProfile", "slug is required")
	}
	if !c.EntityType.IsValid() {
		return shared.ErrInvalidProfileType
	}
	return nil
}

// CreateProfileResult contains the created profile.
type CreateProfileResult struct {
	Profile *graph.Profile
	Events  []shared.Event
}

// CreateProfileHandler handles the CreateProfileCommand.
type CreateProfileHandler struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
}

// NewCreateProfileHandler creates a new CreateProfileHandler.
func NewCreateProfileHandler(store graph.Store, eventPublisher shared.EventPublisher) *CreateProfileHandler {
	return &CreateProfileHandler{
		store:          store,
		eventPublisher: eventPublisher,
	}
}

// Handle stores a profile with zero counters and no rating.
func (h *CreateProfileHandler) Handle(ctx context.Context, cmd CreateProfileCommand) (result *CreateProfileResult, err error) {
	ctx, span := startSpan(ctx, "CreateProfile",
		attribute.String("profile.slug", cmd.Slug),
		attribute.String("profile.entity_type", string(cmd.EntityType)),
	)
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_profile: validation failed: %w", err)
	}

	profile, err := graph.NewProfile(graph.NewProfileParams{
		ID:          uuid.NewString(),
		Slug:        strings.TrimSpace(cmd.Slug),
		EntityType:  cmd.EntityType,
		Name:        cmd.Name,
		Description: cmd.Description,
		Location:    cmd.Location,
		ImageURL:    cmd.ImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create_profile: %w", err)
	}

	if err := h.store.Repositories().Profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("create_profile: %w", err)
	}

	result = &CreateProfileResult{Profile: profile}
	result.Events = append(result.Events,
		shared.NewProfileCreatedEvent(profile.ID, profile.Slug, string(profile.EntityType)))
	publish(h.eventPublisher, result.Events)

	return result, nil
}
