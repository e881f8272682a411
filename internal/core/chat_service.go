package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/contextflow/contextflow/internal/store"
)

var (
	// ErrRequestInFlight rejects a send while the same user's previous one is still running.
	ErrRequestInFlight = errors.New("a request is already in progress for this conversation")

	ErrLoadState = errors.New("failed to load local database")
)

const (
	defaultTaskDescription = "Context-driven action triggered from files"
	defaultTaskDelay       = time.Hour
)

type ChatOptions struct {
	MaxUploadBytes       int64
	AutoSummarizeUploads bool
}

// ChatService wires user input through context assembly, the model and
// persistence.
type ChatService struct {
	backend *store.Backend
	query   *QueryClient
	opts    ChatOptions
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*semaphore.Weighted
}

func NewChatService(backend *store.Backend, query *QueryClient, opts ChatOptions, logger *zap.Logger) *ChatService {
	return &ChatService{
		backend:  backend,
		query:    query,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]*semaphore.Weighted),
	}
}

// ChatTurn is the outcome of one chat submission.
type ChatTurn struct {
	UserMessage      store.Message        `json:"userMessage"`
	AssistantMessage store.Message        `json:"assistantMessage"`
	Task             *store.ScheduledTask `json:"task,omitempty"`
}

type UploadResult struct {
	File store.UploadedFile `json:"file"`
	Turn *ChatTurn          `json:"turn,omitempty"`
}

func (s *ChatService) Register(ctx context.Context, req store.RegisterRequest) (*store.Account, error) {
	acct, err := s.backend.Register(ctx, req)
	if errors.Is(err, store.ErrMissingCredentials) {
		return nil, &ValidationError{Msg: "Username and password are required."}
	}
	return acct, err
}

func (s *ChatService) Login(ctx context.Context, username, password string) (*store.Account, error) {
	return s.backend.Login(ctx, username, password)
}

func (s *ChatService) GetAccount(ctx context.Context, username string) (*store.Account, error) {
	return s.backend.GetAccount(ctx, username)
}

// LoadState reads everything the shell needs to render a signed-in session.
func (s *ChatService) LoadState(ctx context.Context, username string) (AppState, error) {
	profile, err := s.backend.GetProfile(ctx, username)
	if err != nil {
		return AppState{}, s.loadFailed(username, err)
	}
	messages, err := s.backend.GetMessages(ctx, username)
	if err != nil {
		return AppState{}, s.loadFailed(username, err)
	}
	files, err := s.backend.GetFiles(ctx, username)
	if err != nil {
		return AppState{}, s.loadFailed(username, err)
	}
	tasks, err := s.backend.GetTasks(ctx, username)
	if err != nil {
		return AppState{}, s.loadFailed(username, err)
	}
	return AppState{Profile: profile, Messages: messages, Files: files, Tasks: tasks}, nil
}

func (s *ChatService) loadFailed(username string, err error) error {
	s.logger.Error("Failed to load session state", zap.String("user", username), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrLoadState, err)
}

func (s *ChatService) GetProfile(ctx context.Context, username string) (store.UserProfile, error) {
	return s.backend.GetProfile(ctx, username)
}

func (s *ChatService) UpdateProfile(ctx context.Context, username string, profile store.UserProfile) (store.UserProfile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return store.UserProfile{}, &ValidationError{Msg: "Profile name cannot be empty."}
	}
	if err := s.backend.SaveProfile(ctx, username, profile); err != nil {
		return store.UserProfile{}, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}

func (s *ChatService) GetMessages(ctx context.Context, username string) ([]store.Message, error) {
	return s.backend.GetMessages(ctx, username)
}

func (s *ChatService) GetFiles(ctx context.Context, username string) ([]store.UploadedFile, error) {
	return s.backend.GetFiles(ctx, username)
}

func (s *ChatService) GetTasks(ctx context.Context, username string) ([]store.ScheduledTask, error) {
	return s.backend.GetTasks(ctx, username)
}

func (s *ChatService) ClearMemory(ctx context.Context, username string) error {
	if err := s.backend.ClearMemory(ctx, username); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	s.logger.Info("Conversation cleared", zap.String("user", username))
	return nil
}

func (s *ChatService) DeleteFile(ctx context.Context, username, fileID string) error {
	if err := s.backend.DeleteFile(ctx, username, fileID); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	s.logger.Info("File deleted", zap.String("user", username), zap.String("file_id", fileID))
	return nil
}

// PreviewContext returns the grounding text the next model call would carry.
func (s *ChatService) PreviewContext(ctx context.Context, username string) (string, error) {
	state, err := s.LoadState(ctx, username)
	if err != nil {
		return "", err
	}
	return state.Context(), nil
}

// SendMessage runs one chat turn. Model failures become assistant text; only
// validation, concurrency and persistence problems are returned as errors.
func (s *ChatService) SendMessage(ctx context.Context, username, prompt string) (*ChatTurn, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Msg: "Message content cannot be empty."}
	}

	release, err := s.acquire(username)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.LoadState(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.runTurn(ctx, username, state, prompt)
}

// UploadFile validates and stores a file. With auto-summarize enabled the
// model is asked about it straight away.
func (s *ChatService) UploadFile(ctx context.Context, username, name string, content []byte) (*UploadResult, error) {
	file, err := NewUploadedFile(name, content, s.opts.MaxUploadBytes, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.backend.SaveFile(ctx, username, *file); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	s.logger.Info("File uploaded",
		zap.String("user", username),
		zap.String("file", file.Name),
		zap.Int64("size", file.Size))

	result := &UploadResult{File: *file}
	if !s.opts.AutoSummarizeUploads {
		return result, nil
	}

	prompt := fmt.Sprintf("I've just uploaded \"%s\". Summarize the trends and provide a chart.", file.Name)
	turn, err := s.SendMessage(ctx, username, prompt)
	if err != nil {
		// The file is stored; a busy conversation only skips the summary.
		if errors.Is(err, ErrRequestInFlight) {
			s.logger.Info("Skipping upload summary, conversation busy", zap.String("user", username))
			return result, nil
		}
		return nil, err
	}
	result.Turn = turn
	return result, nil
}

// VisualizeFile asks the model for a chart of one stored file.
func (s *ChatService) VisualizeFile(ctx context.Context, username, fileID string) (*ChatTurn, error) {
	file, err := s.backend.GetFile(ctx, username, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if file == nil {
		return nil, store.ErrNotFound
	}
	prompt := fmt.Sprintf("Analyze \"%s\" and generate a data visualization (chart) showing the primary metrics or distributions found in the file.", file.Name)
	return s.SendMessage(ctx, username, prompt)
}

func (s *ChatService) runTurn(ctx context.Context, username string, state AppState, prompt string) (*ChatTurn, error) {
	history := state.History()

	userMsg := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Content:   prompt,
		Timestamp: s.now(),
	}
	if err := s.backend.SaveMessage(ctx, username, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	state = state.WithMessage(userMsg)

	aiResponse := s.query.Query(ctx, prompt, state.Context(), history)

	assistantMsg := store.Message{
		ID:            uuid.NewString(),
		Role:          store.RoleAssistant,
		Content:       aiResponse.Text,
		Timestamp:     s.now(),
		DataSource:    aiResponse.SourceUsed,
		Visualization: aiResponse.Visualization,
	}
	if assistantMsg.Timestamp.Before(userMsg.Timestamp) {
		assistantMsg.Timestamp = userMsg.Timestamp
	}
	if err := s.backend.SaveMessage(ctx, username, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	turn := &ChatTurn{UserMessage: userMsg, AssistantMessage: assistantMsg}

	if aiResponse.DetectedAction.TriggersTask() {
		task := s.taskFromAction(aiResponse.DetectedAction, aiResponse.ActionData)
		if err := s.backend.SaveTask(ctx, username, task); err != nil {
			return nil, fmt.Errorf("failed to store task: %w", err)
		}
		s.logger.Info("Task created from model action",
			zap.String("user", username),
			zap.String("action", string(aiResponse.DetectedAction)),
			zap.String("task_id", task.ID))
		turn.Task = &task
	}
	return turn, nil
}

func (s *ChatService) taskFromAction(action Action, data ActionData) store.ScheduledTask {
	isReport := action == ActionGenerateReport

	task := store.ScheduledTask{
		ID:          uuid.NewString(),
		Title:       data.String("title"),
		Description: data.String("description"),
		DueDate:     s.now().Add(defaultTaskDelay),
		Status:      store.TaskPending,
		Type:        store.TaskAutomation,
		Metadata:    data,
	}
	if isReport {
		task.Status = store.TaskCompleted
		task.Type = store.TaskReport
	}
	if task.Title == "" {
		task.Title = "Automated Task"
		if isReport {
			task.Title = "Data Summary Report"
		}
	}
	if task.Description == "" {
		task.Description = defaultTaskDescription
	}
	if due, ok := parseDueDate(data.String("dueDate")); ok {
		task.DueDate = due
	}
	return task
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDueDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// acquire takes the user's single request slot without waiting.
func (s *ChatService) acquire(username string) (func(), error) {
	s.mu.Lock()
	sem, ok := s.inflight[username]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.inflight[username] = sem
	}
	s.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, ErrRequestInFlight
	}
	return func() { sem.Release(1) }, nil
}
