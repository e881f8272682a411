package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or access token")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrMissingCredentials = errors.New("username and password are required")
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Backend exposes typed operations over a RecordStore. Everything except
// accounts is scoped to the owning username.
type Backend struct {
	users    *TypedCollection[accountRecord]
	profiles *TypedCollection[UserProfile]
	files    *TypedCollection[UploadedFile]
	tasks    *TypedCollection[ScheduledTask]
	messages *TypedCollection[Message]
	now      func() time.Time
}

func NewBackend(rs RecordStore) *Backend {
	return &Backend{
		users:    NewTypedCollection[accountRecord](rs, Users),
		profiles: NewTypedCollection[UserProfile](rs, Profiles),
		files:    NewTypedCollection[UploadedFile](rs, Files),
		tasks:    NewTypedCollection[ScheduledTask](rs, Tasks),
		messages: NewTypedCollection[Message](rs, Messages),
		now:      time.Now,
	}
}

func GuestProfile() UserProfile {
	return UserProfile{Name: "Guest", Role: "Visitor", Preferences: ""}
}

func DefaultProfile() UserProfile {
	return UserProfile{
		Name:        "Alex Rivera",
		Role:        "Operations Manager",
		Preferences: "Professional, concise, values data visualization.",
		Avatar:      "https://picsum.photos/seed/alex/200",
	}
}

// Register stores a new account and seeds its profile. An existing account
// with the same username is left untouched.
func (b *Backend) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	existing, err := b.users.Get(ctx, GlobalOwner, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	rec := accountRecord{
		Username:  req.Username,
		Password:  req.Password,
		Name:      req.Name,
		CreatedAt: b.now(),
	}
	if err := b.users.Put(ctx, GlobalOwner, rec.Username, &rec); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	profile := UserProfile{
		Name:        req.Name,
		Role:        "New Member",
		Preferences: "Professional and concise.",
		Avatar:      fmt.Sprintf("https://picsum.photos/seed/%s/200", req.Username),
	}
	if err := b.profiles.Put(ctx, req.Username, req.Username, &profile); err != nil {
		return nil, fmt.Errorf("failed to seed profile: %w", err)
	}
	return rec.account(), nil
}

func (b *Backend) Login(ctx context.Context, username, password string) (*Account, error) {
	rec, err := b.users.Get(ctx, GlobalOwner, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if rec == nil || rec.Password != password {
		return nil, ErrInvalidCredentials
	}
	return rec.account(), nil
}

// GetAccount returns nil, nil for an unknown username.
func (b *Backend) GetAccount(ctx context.Context, username string) (*Account, error) {
	rec, err := b.users.Get(ctx, GlobalOwner, username)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.account(), nil
}

func (b *Backend) GetProfile(ctx context.Context, username string) (UserProfile, error) {
	if username == "" {
		return GuestProfile(), nil
	}
	profile, err := b.profiles.Get(ctx, username, username)
	if err != nil {
		return UserProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile == nil {
		return DefaultProfile(), nil
	}
	return *profile, nil
}

func (b *Backend) SaveProfile(ctx context.Context, username string, profile UserProfile) error {
	return b.profiles.Put(ctx, username, username, &profile)
}

// GetFiles returns files in upload order.
func (b *Backend) GetFiles(ctx context.Context, username string) ([]UploadedFile, error) {
	return b.files.GetAll(ctx, username)
}

func (b *Backend) GetFile(ctx context.Context, username, id string) (*UploadedFile, error) {
	return b.files.Get(ctx, username, id)
}

func (b *Backend) SaveFile(ctx context.Context, username string, file UploadedFile) error {
	return b.files.Put(ctx, username, file.ID, &file)
}

func (b *Backend) DeleteFile(ctx context.Context, username, id string) error {
	return b.files.Delete(ctx, username, id)
}

// GetTasks returns tasks latest due date first.
func (b *Backend) GetTasks(ctx context.Context, username string) ([]ScheduledTask, error) {
	tasks, err := b.tasks.GetAll(ctx, username)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DueDate.After(tasks[j].DueDate)
	})
	return tasks, nil
}

func (b *Backend) SaveTask(ctx context.Context, username string, task ScheduledTask) error {
	return b.tasks.Put(ctx, username, task.ID, &task)
}

// GetMessages returns the conversation oldest first.
func (b *Backend) GetMessages(ctx context.Context, username string) ([]Message, error) {
	msgs, err := b.messages.GetAll(ctx, username)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (b *Backend) SaveMessage(ctx context.Context, username string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	return b.messages.Put(ctx, username, msg.ID, &msg)
}

// ClearMemory drops the whole conversation log.
func (b *Backend) ClearMemory(ctx context.Context, username string) error {
	return b.messages.Clear(ctx, username)
}

func (r *accountRecord) account() *Account {
	return &Account{
		Username:  r.Username,
		Password:  r.Password,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
}
