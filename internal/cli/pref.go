package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vadim/inkdesk/internal/domain/notification/consumer"
	"github.com/vadim/inkdesk/internal/domain/notification/entity"
)

func newPrefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pref",
		Aliases: []string{"preference"},
		Short:   "Show or change the email notification preference",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the preference",
		Args:  cobra.NoArgs,
		RunE:  runPrefGet,
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the preference",
		Args:  cobra.NoArgs,
		RunE:  runPrefSet,
	}
	set.Flags().Bool("enabled", false, "send unread emails")
	set.Flags().String("frequency", string(entity.FrequencyImmediate), "IMMEDIATE, HOURLY, DAILY or NEVER")
	_ = set.MarkFlagRequired("enabled")

	cmd.AddCommand(get, set)
	return cmd
}

func newConsumer(rt *runtime) *consumer.Consumer {
	return consumer.New(rt.user, slog.New(slog.DiscardHandler))
}

func runPrefGet(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}

	p, err := newConsumer(rt).Get(commandContext(cmd))
	if err != nil {
		return describe(err)
	}
	return printPreference(rt, p)
}

func runPrefSet(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}

	enabled, _ := cmd.Flags().GetBool("enabled")
	raw, _ := cmd.Flags().GetString("frequency")
	frequency, err := entity.ParseFrequency(raw)
	if err != nil {
		return fmt.Errorf("invalid --frequency %q: want IMMEDIATE, HOURLY, DAILY or NEVER", raw)
	}

	p, err := newConsumer(rt).Update(commandContext(cmd), enabled, frequency)
	if err != nil {
		return describe(err)
	}
	return printPreference(rt, p)
}

func printPreference(rt *runtime, p entity.Preference) error {
	if rt.json {
		return writeJSON(rt.out, p)
	}
	state := "disabled"
	if p.EmailNotificationsEnabled {
		state = "enabled"
	}
	_, err := fmt.Fprintf(rt.out, "email notifications: %s\nfrequency: %s\n", state, p.EmailFrequency)
	return err
}
