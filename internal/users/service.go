package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/auth"
	"studio/internal/config"
	"studio/internal/logging"
	"studio/internal/services"
	"studio/internal/store"
	"studio/internal/validation"
)

const invalidCredentials = "invalid email or password"

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Plan     string `json:"subscription_plan"`
}

// Session is returned by Register and Authenticate.
type Session struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Plan      string     `json:"subscription_plan"`
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Profile is the full account view.
type Profile struct {
	UserID      string            `json:"user_id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Plan        string            `json:"subscription_plan"`
	PlanDetails Plan              `json:"plan_details"`
	CreatedAt   time.Time         `json:"created_at"`
	LastLogin   *time.Time        `json:"last_login,omitempty"`
	ProfileData store.ProfileData `json:"profile_data"`
	Preferences store.Preferences `json:"preferences"`
	UsageStats  store.UsageStats  `json:"usage_stats"`
	UsageLimits Limits            `json:"usage_limits"`
	Features    []string          `json:"features"`
}

// ProfileUpdate carries the writable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name        *string            `json:"name,omitempty"`
	ProfileData *store.ProfileData `json:"profile_data,omitempty"`
	Preferences *store.Preferences `json:"preferences,omitempty"`
}

// PlanChange reports a subscription change.
type PlanChange struct {
	UserID      string    `json:"user_id"`
	OldPlan     string    `json:"old_plan"`
	NewPlan     string    `json:"new_plan"`
	PlanDetails Plan      `json:"plan_details"`
	ChangedAt   time.Time `json:"changed_at"`
}

// UsageDelta increments a user's usage counters.
type UsageDelta struct {
	Scripts  int
	APICalls int
	Cost     float64
}

// Service manages accounts on top of a store.
type Service struct {
	store      store.Store
	issuer     *auth.Issuer
	validator  *validation.Validator
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time

	// mu serializes read-modify-write cycles on user records.
	mu sync.Mutex

	scriptQuota *reservations
	apiQuota    *reservations
}

// NewService builds the account service.
func NewService(st store.Store, issuer *auth.Issuer, cfg config.Auth, logger *slog.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.New("store required")
	}
	if issuer == nil {
		return nil, errors.New("token issuer required")
	}
	v, err := validation.New()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:      st,
		issuer:     issuer,
		validator:  v,
		bcryptCost: cfg.BcryptCost,
		logger:     logging.NewComponentLogger(logger, "users"),
		now:        func() time.Time { return time.Now().UTC() },

		scriptQuota: newReservations(),
		apiQuota:    newReservations(),
	}, nil
}

// Register creates an account and returns a signed-in session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	msg, err := s.validator.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("validate registration: %w", err)
	}
	if msg != "" {
		return nil, services.Wrap(services.ErrValidation, "register", msg, nil)
	}
	req.Plan = normalizePlanID(req.Plan)
	if _, ok := LookupPlan(req.Plan); !ok {
		req.Plan = PlanFree
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Plan:         req.Plan,
		CreatedAt:    now,
		Profile:      store.ProfileData{SocialLinks: map[string]string{}},
		Preferences: store.Preferences{
			DefaultScriptStyle: "professional",
			Notifications:      store.NotificationPrefs{Email: true, Push: true},
		},
		Usage: store.UsageStats{LastReset: now},
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, services.Wrap(services.ErrConflict, "register", "user with this email already exists", err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.appendEvent(ctx, store.EventUserRegistered, user.ID, map[string]string{"plan": user.Plan})

	s.logger.Info("user registered",
		logging.String(logging.FieldEventType, "user_registered"),
		logging.String(logging.FieldUserID, user.ID),
		logging.String("plan", user.Plan),
	)
	return s.session(user)
}

// Authenticate verifies credentials, stamps last_login, and returns a fresh session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, services.Wrap(services.ErrUnauthorized, "authenticate", invalidCredentials, nil)
	}
	if user, err = s.stampLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, store.EventUserLogin, user.ID, nil)
	s.logger.Info("user authenticated",
		logging.String(logging.FieldEventType, "user_login"),
		logging.String(logging.FieldUserID, user.ID),
	)
	return s.session(user)
}

func (s *Service) stampLogin(ctx context.Context, userID string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.mustLookup(ctx, "authenticate", userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user.LastLogin = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	return user, nil
}

func (s *Service) session(user *store.User) (*Session, error) {
	token, expires, err := s.issuer.Issue(user.ID, user.Email, user.Plan)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Plan:      user.Plan,
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: expires,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}, nil
}

// Lookup returns the user or nil when the ID has no account.
func (s *Service) Lookup(ctx context.Context, userID string) (*store.User, error) {
	if userID == "" || userID == DemoUserID {
		return nil, nil
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Service) mustLookup(ctx context.Context, op, userID string) (*store.User, error) {
	user, err := s.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, services.Wrap(services.ErrNotFound, op, "user not found", nil)
	}
	return user, nil
}

// Profile returns the account with plan details.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.mustLookup(ctx, "profile", userID)
	if err != nil {
		return nil, err
	}
	return buildProfile(user), nil
}

func buildProfile(user *store.User) *Profile {
	plan := PlanOrDefault(user.Plan)
	return &Profile{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Plan:        user.Plan,
		PlanDetails: plan,
		CreatedAt:   user.CreatedAt,
		LastLogin:   user.LastLogin,
		ProfileData: user.Profile,
		Preferences: user.Preferences,
		UsageStats:  user.Usage,
		UsageLimits: plan.Limits,
		Features:    plan.Features,
	}
}

// UpdateProfile applies name, profile_data and preferences changes.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.mustLookup(ctx, "update profile", userID)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "update profile", "name must not be empty", nil)
		}
		user.Name = name
	}
	if update.ProfileData != nil {
		user.Profile = *update.ProfileData
		if user.Profile.SocialLinks == nil {
			user.Profile.SocialLinks = map[string]string{}
		}
	}
	if update.Preferences != nil {
		prefs := *update.Preferences
		prefs.PreferredProvider = strings.ToLower(strings.TrimSpace(prefs.PreferredProvider))
		if !knownProvider(prefs.PreferredProvider) {
			return nil, services.Wrap(services.ErrValidation, "update profile",
				fmt.Sprintf("unknown preferred provider %q", prefs.PreferredProvider), nil)
		}
		user.Preferences = prefs
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("profile updated", logging.String(logging.FieldUserID, user.ID))
	return buildProfile(user), nil
}

func knownProvider(name string) bool {
	switch name {
	case "", config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderTemplate:
		return true
	default:
		return false
	}
}

// SetPreferredProvider records the provider the generator should try first.
func (s *Service) SetPreferredProvider(ctx context.Context, userID, provider string) error {
	if !knownProvider(provider) {
		return services.Wrap(services.ErrValidation, "set preferred provider", fmt.Sprintf("unknown provider %q", provider), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.mustLookup(ctx, "set preferred provider", userID)
	if err != nil {
		return err
	}
	user.Preferences.PreferredProvider = provider
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// ChangePlan switches the user's subscription plan.
func (s *Service) ChangePlan(ctx context.Context, userID, planID string) (*PlanChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	planID = normalizePlanID(planID)
	plan, ok := LookupPlan(planID)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "change plan", "invalid subscription plan", nil)
	}
	user, err := s.mustLookup(ctx, "change plan", userID)
	if err != nil {
		return nil, err
	}
	old := user.Plan
	user.Plan = planID
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("subscription plan changed",
		logging.String(logging.FieldUserID, user.ID),
		logging.String("old_plan", old),
		logging.String("new_plan", planID),
	)
	return &PlanChange{
		UserID:      user.ID,
		OldPlan:     old,
		NewPlan:     planID,
		PlanDetails: plan,
		ChangedAt:   s.now(),
	}, nil
}

// RecordUsage adds delta to the user's usage_stats. Unknown users are ignored.
func (s *Service) RecordUsage(ctx context.Context, userID string, delta UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.Lookup(ctx, userID)
	if err != nil || user == nil {
		return err
	}
	user.Usage.ScriptsGenerated += delta.Scripts
	user.Usage.APICallsMade += delta.APICalls
	user.Usage.TotalCost += delta.Cost
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update usage: %w", err)
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, typ store.EventType, userID string, metadata map[string]string) {
	if err := s.store.AppendEvent(ctx, store.Event{Type: typ, UserID: userID, Timestamp: s.now(), Metadata: metadata}); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "analytics event not recorded", "event_append_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage health"),
			logging.String(logging.FieldImpact, "analytics undercount"),
		)
	}
}
