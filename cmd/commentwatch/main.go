package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/recipememo-api/internal/auth"
	"github.com/recipememo-api/internal/comments"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/remote"
	"github.com/recipememo-api/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type identityFlags struct {
	userID string
	name   string
	token  string
	secret string
}

// bearer returns the explicit token or mints one from the shared secret
func (f *identityFlags) bearer() (string, error) {
	if f.token != "" {
		return f.token, nil
	}
	if f.secret == "" {
		return "", errors.New("either --token or --secret (AUTH_JWT_SECRET) is required")
	}
	return auth.GenerateToken(f.userID, f.name, []byte(f.secret), 24*time.Hour)
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", os.Getenv("COMMENTWATCH_USER"), "user id to act as")
	cmd.Flags().StringVar(&f.name, "name", "", "display name embedded in minted tokens")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("API_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&f.secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "JWT secret used to mint a development token")
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		ident    identityFlags
		logLevel string
	)

	root := &cobra.Command{
		Use:           "commentwatch <recipe-id>",
		Short:         "Watch and post comments on a recipe",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ident.userID == "" {
				return errors.New("--user is required")
			}
			token, err := ident.bearer()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(os.Stderr, "commentwatch", logLevel, "pretty")
			return watch(cmd.Context(), config.LoadClient(), args[0], ident, token, in, out, log)
		},
	}
	ident.register(root)
	root.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newTokenCmd(out), newListCmd(out))
	return root
}

func newTokenCmd(out io.Writer) *cobra.Command {
	var (
		ident identityFlags
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ident.userID == "" || ident.secret == "" {
				return errors.New("--user and --secret are required")
			}
			token, err := auth.GenerateToken(ident.userID, ident.name, []byte(ident.secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	ident.register(cmd)
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newListCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list <recipe-id>",
		Short: "Print the current comments of a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := remote.NewClient(config.LoadClient())
			list, err := client.ListComments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderView(out, list)
			return nil
		},
	}
}

func watch(ctx context.Context, cfg config.ClientConfig, recipeID string, ident identityFlags, token string, in io.Reader, out io.Writer, log zerolog.Logger) error {
	client := remote.NewClient(cfg, remote.WithToken(token), remote.WithClientLogger(log))
	feed := remote.NewFeed(cfg, remote.WithFeedToken(token), remote.WithFeedLogger(log))

	r := &renderer{out: out}
	ctrl := comments.NewController(recipeID, client,
		comments.WithSource(feed),
		comments.WithMatchWindow(cfg.MatchWindow),
		comments.WithLogger(log),
		comments.WithListener(r.handle),
	)
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", recipeID, err)
	}
	fmt.Fprintf(out, "watching %s as %s (%s)\n", recipeID, ident.userID, cfg.BaseURL())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				r.printf("! %v\n", err)
				continue
			}
			if err := run(ctx, ctrl, cmd, recipeID, ident); err != nil {
				r.printf("! %v\n", err)
			}
		}
	}
}

func run(ctx context.Context, ctrl *comments.Controller, cmd command, recipeID string, ident identityFlags) error {
	switch cmd.kind {
	case cmdSubmit:
		_, err := ctrl.Submit(ctx, recipeID, ident.userID, ident.name, cmd.arg)
		return err
	case cmdRetract:
		return ctrl.Retract(ctx, cmd.arg, ident.userID)
	case cmdLike:
		_, err := ctrl.ToggleReaction(ctx, cmd.arg, ident.userID)
		return err
	}
	return nil
}

// renderer redraws the view for each event, skipping events older than the
// last one drawn
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	version uint64
}

func (r *renderer) handle(ev comments.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Version < r.version {
		return
	}
	r.version = ev.Version
	renderEvent(r.out, ev)
}

func (r *renderer) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
