package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/contextflow/contextflow/internal/auth"
	"github.com/contextflow/contextflow/internal/core"
	"github.com/contextflow/contextflow/internal/store"
)

type contextKey string

const usernameKey contextKey = "username"

// multipart overhead allowed on top of the file size limit
const uploadFormSlack = 1 << 20

type APIHandler struct {
	chatService    *core.ChatService
	tokens         *auth.TokenIssuer
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewAPIHandler(cs *core.ChatService, tokens *auth.TokenIssuer, logger *zap.Logger, maxUploadBytes int64) *APIHandler {
	return &APIHandler{chatService: cs, tokens: tokens, logger: logger, maxUploadBytes: maxUploadBytes}
}

func usernameFrom(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		username, err := h.tokens.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		acct, err := h.chatService.GetAccount(r.Context(), username)
		if err != nil {
			h.logger.Error("Failed to resolve user identity", zap.String("user", username), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, acct.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type AuthResponse struct {
	Token   string         `json:"token"`
	Account *store.Account `json:"account"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req store.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.chatService.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "Failed to create account")
		return
	}
	h.issueToken(w, http.StatusCreated, acct)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required.")
		return
	}

	acct, err := h.chatService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err, "Failed to log in")
		return
	}
	h.issueToken(w, http.StatusOK, acct)
}

func (h *APIHandler) issueToken(w http.ResponseWriter, status int, acct *store.Account) {
	token, err := h.tokens.GenerateJWT(acct.Username)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.String("user", acct.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, Account: acct})
}

type StateResponse struct {
	Account *store.Account `json:"account"`
	core.AppState
}

func (h *APIHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	state, err := h.chatService.LoadState(r.Context(), username)
	if err != nil {
		h.fail(w, r, err, "Failed to load local database.")
		return
	}
	acct, err := h.chatService.GetAccount(r.Context(), username)
	if err != nil {
		h.fail(w, r, err, "Failed to load local database.")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Account: acct, AppState: state})
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.chatService.GetProfile(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req store.UserProfile
	if !h.decode(w, r, &req) {
		return
	}
	profile, err := h.chatService.UpdateProfile(r.Context(), usernameFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err, "Failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.chatService.GetFiles(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *APIHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+uploadFormSlack)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "The file is too large.")
			return
		}
		writeError(w, http.StatusBadRequest, "A multipart field named \"file\" is required.")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "The file appears to be corrupted or empty.")
		return
	}

	result, err := h.chatService.UploadFile(r.Context(), usernameFrom(r.Context()), header.Filename, content)
	if err != nil {
		h.fail(w, r, err, "Failed to upload file")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *APIHandler) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.DeleteFile(r.Context(), usernameFrom(r.Context()), chi.URLParam(r, "fileID")); err != nil {
		h.fail(w, r, err, "Failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) VisualizeFileHandler(w http.ResponseWriter, r *http.Request) {
	turn, err := h.chatService.VisualizeFile(r.Context(), usernameFrom(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		h.fail(w, r, err, "Failed to visualize file")
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.GetMessages(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	turn, err := h.chatService.SendMessage(r.Context(), usernameFrom(r.Context()), req.Content)
	if err != nil {
		h.fail(w, r, err, "Failed to post message")
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *APIHandler) ClearMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.ClearMemory(r.Context(), usernameFrom(r.Context())); err != nil {
		h.fail(w, r, err, "Failed to clear conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.chatService.GetTasks(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type ContextResponse struct {
	Context string `json:"context"`
}

func (h *APIHandler) ContextHandler(w http.ResponseWriter, r *http.Request) {
	assembled, err := h.chatService.PreviewContext(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to load local database.")
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Context: assembled})
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and reported with the generic message only.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error, generic string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, store.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or access token.")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken.")
	case errors.Is(err, core.ErrRequestInFlight):
		writeError(w, http.StatusTooManyRequests, "A request is already in progress. Please wait for the response.")
	default:
		h.logger.Error(generic,
			zap.String("user", usernameFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, generic)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
