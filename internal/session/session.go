package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
)

// Session reads and writes the single user record through a Store
type Session struct {
	store    Store
	now      func() time.Time
	newID    func() string
	validate *validator.Validate
}

// Option configures a Session
type Option func(*Session)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// New creates a Session backed by store
func New(store Store, opts ...Option) *Session {
	s := &Session{
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loginRequest struct {
	Email string `validate:"required,email"`
	Name  string `validate:"max=120"`
}

// Current returns the stored user, or nil when nobody is logged in
func (s *Session) Current(ctx context.Context) (*User, error) {
	data, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, apperrors.NewSessionError(apperrors.ErrCodeCorruptSession, "stored session is not valid JSON", err)
	}
	return &u, nil
}

// Login returns the stored user when the email matches, otherwise creates
// and persists a fresh free-tier account.
func (s *Session) Login(ctx context.Context, email, name string) (*User, error) {
	req := loginRequest{Email: strings.TrimSpace(email), Name: strings.TrimSpace(name)}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidEmail, "invalid login", err).
			WithContext("email", req.Email)
	}

	existing, err := s.Current(ctx)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeCorruptSession) {
		return nil, err
	}
	if existing != nil && existing.Email == req.Email {
		return existing, nil
	}

	if req.Name == "" {
		req.Name = DefaultName
	}
	u := &User{
		ID:       s.newID(),
		Email:    req.Email,
		Name:     req.Name,
		Tier:     TierFree,
		Credits:  SignupCredits,
		History:  []HistoryEntry{},
		JoinedAt: s.now().UnixMilli(),
	}
	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout removes the stored user
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// SaveToHistory prepends an entry for the current user. It returns nil
// without error when nobody is logged in.
func (s *Session) SaveToHistory(ctx context.Context, task, input string, result results.Result) (*HistoryEntry, error) {
	u, err := s.Current(ctx)
	if err != nil || u == nil {
		return nil, err
	}

	entry := HistoryEntry{
		ID:        s.newID(),
		Type:      task,
		Input:     input,
		Result:    results.Wrap(result),
		Timestamp: s.now().UnixMilli(),
	}
	u.History = append([]HistoryEntry{entry}, u.History...)
	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpgradeTier sets the tier and its credit allowance. It returns nil
// without error when nobody is logged in.
func (s *Session) UpgradeTier(ctx context.Context, tier Tier) (*User, error) {
	var credits int
	switch tier {
	case TierPro:
		credits = ProCredits
	case TierPackage:
		credits = PackageCredits
	default:
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidTier,
			"upgrade target must be pro or package", nil).WithContext("tier", string(tier))
	}

	u, err := s.Current(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	u.Tier = tier
	u.Credits = credits
	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// History returns saved entries, optionally filtered by task, newest first.
// A limit of zero or less returns everything.
func (s *Session) History(ctx context.Context, task string, limit int) ([]HistoryEntry, error) {
	u, err := s.Current(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	var out []HistoryEntry
	for _, h := range u.History {
		if task != "" && h.Type != task {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entry looks up a history entry by id
func (s *Session) Entry(ctx context.Context, id string) (HistoryEntry, error) {
	u, err := s.Current(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}
	if u == nil {
		return HistoryEntry{}, apperrors.NewSessionError(apperrors.ErrCodeNotFound, "not logged in", nil)
	}
	h, ok := u.Find(id)
	if !ok {
		return HistoryEntry{}, apperrors.NewSessionError(apperrors.ErrCodeNotFound, "history entry not found", nil).
			WithContext("id", id)
	}
	return h, nil
}

func (s *Session) save(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return apperrors.NewInternalError(apperrors.ErrCodeStoreFailed, "failed to encode session", err)
	}
	return s.store.Save(ctx, data)
}
