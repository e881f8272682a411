package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextflow/contextflow/internal/api"
	"github.com/contextflow/contextflow/internal/auth"
	"github.com/contextflow/contextflow/internal/core"
	"github.com/contextflow/contextflow/internal/store"
)

// app holds the opened dependencies of one command invocation.
type app struct {
	store   *store.SQLiteStore
	model   core.Model
	service *core.ChatService
}

func (rt *app) Close() {
	if rt.model != nil {
		if err := rt.model.Close(); err != nil {
			logger.Warn("Failed to close model client", zap.Error(err))
		}
	}
	if err := rt.store.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}

// openApp opens the database and, when withModel is set, the model client.
// Without a model the service can only be used for calls that never query it.
func openApp(ctx context.Context, withModel bool, opts core.ChatOptions) (*app, error) {
	rs, err := store.OpenSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	rt := &app{store: rs}

	var query *core.QueryClient
	if withModel {
		rt.model, err = core.NewModel(ctx, cfg, logger)
		if err != nil {
			rs.Close()
			return nil, fmt.Errorf("failed to initialize model: %w", err)
		}
		query = core.NewQueryClient(rt.model, logger,
			core.WithTemperature(cfg.ModelTemperature),
			core.WithRequestsPerMinute(cfg.ModelRequestsPerMinute))
	}

	rt.service = core.NewChatService(store.NewBackend(rs), query, opts, logger)
	return rt, nil
}

func chatOptions() core.ChatOptions {
	return core.ChatOptions{
		MaxUploadBytes:       cfg.MaxUploadBytes,
		AutoSummarizeUploads: cfg.AutoSummarizeUploads,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := openApp(cmd.Context(), true, chatOptions())
	if err != nil {
		return err
	}
	defer rt.Close()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	apiHandler := api.NewAPIHandler(rt.service, tokens, logger, cfg.MaxUploadBytes)
	router := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls with large contexts are slow
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", serverAddr),
			zap.String("model", rt.model.Name()),
			zap.String("database", cfg.DatabaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	case <-quit:
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting gracefully")
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cmd.Context(), false, chatOptions())
	if err != nil {
		return err
	}
	defer rt.Close()

	assembled, err := rt.service.PreviewContext(cmd.Context(), username)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), assembled)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	opts := chatOptions()
	opts.AutoSummarizeUploads = false
	rt, err := openApp(cmd.Context(), false, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.service.UploadFile(cmd.Context(), username, args[0], content)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s, %d bytes) as %s\n",
		result.File.Name, result.File.Type, result.File.Size, result.File.ID)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateModel(); err != nil {
		return err
	}
	rt, err := openApp(cmd.Context(), true, chatOptions())
	if err != nil {
		return err
	}
	defer rt.Close()

	turn, err := rt.service.SendMessage(cmd.Context(), username, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printTurn(cmd, turn)
	return nil
}

func printTurn(cmd *cobra.Command, turn *core.ChatTurn) {
	out := cmd.OutOrStdout()
	msg := turn.AssistantMessage
	fmt.Fprintln(out, msg.Content)
	if msg.DataSource != "" {
		fmt.Fprintf(out, "\nSource: %s\n", msg.DataSource)
	}
	if v := msg.Visualization; v != nil {
		fmt.Fprintf(out, "\nChart (%s): %s\n", v.Type, v.Title)
		yKey := v.YAxisKey
		if yKey == "" {
			yKey = "value"
		}
		for _, point := range v.Data {
			fmt.Fprintf(out, "  %v: %v\n", point[v.XAxisKey], point[yKey])
		}
	}
	if task := turn.Task; task != nil {
		fmt.Fprintf(out, "\nTask created: %s (%s, due %s)\n", task.Title, task.Status, task.DueDate.Format(time.RFC1123))
	}
}
