// Package cli implements inkctl, the operator CLI for the conversation store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vadim/inkdesk/internal/domain/conversation/engine"
	"github.com/vadim/inkdesk/internal/domain/conversation/pager"
	"github.com/vadim/inkdesk/internal/events"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

const (
	envStoreURL = "INKDESK_STORE_URL"
	envToken    = "INKDESK_TOKEN"
)

// Execute runs inkctl with os.Args
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "inkctl",
		Short:         "Inspect and drive salon/client conversations",
		Long:          "inkctl talks to the Conversation Store with a user's bearer token.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := cmd.PersistentFlags()
	flags.String("store-url", envOr(envStoreURL, "http://localhost:8081/api/v1"), "Conversation Store base URL (env "+envStoreURL+")")
	flags.String("token", os.Getenv(envToken), "bearer token (env "+envToken+")")
	flags.Duration("timeout", 15*time.Second, "request timeout")
	flags.Bool("json", false, "print JSON instead of tables")
	flags.Bool("verbose", false, "log client warnings to stderr")

	cmd.AddCommand(
		newListCmd(),
		newOpenCmd(),
		newArchiveCmd(),
		newReadCmd(),
		newSendCmd(),
		newLeaveCmd(),
		newUnreadCmd(),
		newPrefCmd(),
		newTokenCmd(),
	)

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runtime is what every store command needs
type runtime struct {
	out    io.Writer
	json   bool
	user   *store.UserClient
	engine *engine.Engine
	bus    *events.Bus
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	baseURL, _ := cmd.Flags().GetString("store-url")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if token == "" {
		return nil, errors.New("a bearer token is required: pass --token or set " + envToken)
	}

	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	user := store.New(
		store.WithBaseURL(baseURL),
		store.WithTimeout(timeout),
		store.WithLogger(logger),
	).ForUser(token)

	bus := events.NewBus(logger)
	return &runtime{
		out:    cmd.OutOrStdout(),
		json:   jsonOutput,
		user:   user,
		engine: engine.New(user, bus, logger),
		bus:    bus,
	}, nil
}

// newPager returns a pager over the runtime's engine, attached to its bus
func (r *runtime) newPager(pageSize int) (*pager.Pager, error) {
	p := pager.New(r.engine, pager.WithPageSize(pageSize))
	if err := p.Attach(r.bus); err != nil {
		return nil, err
	}
	return p, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// describe turns an engine failure into an operator-facing message
func describe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrPrecondition):
		return fmt.Errorf("refused locally, nothing was sent: %w", err)
	case engine.IsUnauthorized(err):
		return fmt.Errorf("the store rejected the token: %w", err)
	case engine.IsNotFound(err):
		return fmt.Errorf("conversation not found: %w", err)
	case engine.IsTransient(err):
		return fmt.Errorf("store unavailable, try again: %w", err)
	default:
		return err
	}
}
