package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List one page of conversations",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}
	cmd.Flags().String("status", string(entity.StatusActive), "ACTIVE or ARCHIVED")
	cmd.Flags().Int("page", 1, "page number, starting at 1")
	cmd.Flags().Int("page-size", entity.DefaultPageSize, "conversations per page")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}

	statusArg, _ := cmd.Flags().GetString("status")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	status, err := entity.ParseStatus(statusArg)
	if err != nil || !status.IsListable() {
		return fmt.Errorf("invalid --status %q: only ACTIVE and ARCHIVED can be listed", statusArg)
	}
	if pageSize < 1 || pageSize > entity.MaxPageSize {
		return fmt.Errorf("--page-size must be between 1 and %d", entity.MaxPageSize)
	}

	p, err := rt.newPager(pageSize)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := commandContext(cmd)
	if err := p.SetFilter(ctx, status); err != nil {
		return describe(err)
	}
	if page != 1 {
		if err := p.GoTo(ctx, page); err != nil {
			return describe(err)
		}
	}

	v := p.View()
	if rt.json {
		return writeJSON(rt.out, v)
	}

	rows := make([][]string, 0, len(v.Items))
	for _, item := range v.Items {
		last := ""
		if item.LastMessage != nil {
			last = item.LastMessage.Content
		}
		rows = append(rows, []string{
			item.ID,
			item.Client.DisplayName(),
			item.Subject,
			strconv.Itoa(item.UnreadCount),
			formatTime(item.LastMessageAt),
			last,
		})
	}
	if err := writeTable(rt.out, []string{"ID", "CLIENT", "SUBJECT", "UNREAD", "LAST AT", "LAST MESSAGE"}, rows); err != nil {
		return err
	}

	_, err = fmt.Fprintf(rt.out, "\n%s page %d of %d, %d total\n", v.Status, v.Page, max(v.TotalPages, 1), v.Total)
	return err
}

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "open <conversation-id>",
		Aliases: []string{"get", "show"},
		Short:   "Show a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		RunE:    runOpen,
	}
	cmd.Flags().Bool("mark-read", false, "acknowledge the conversation after showing it")
	return cmd
}

func runOpen(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	markRead, _ := cmd.Flags().GetBool("mark-read")

	ctx := commandContext(cmd)
	opened, err := rt.engine.OpenConversation(ctx, args[0])
	if err != nil {
		return describe(err)
	}
	conv := opened.Clone()

	if markRead {
		if err := rt.engine.MarkRead(ctx, conv.ID); err != nil {
			return describe(err)
		}
		conv.UnreadCount = 0
	}

	if rt.json {
		return writeJSON(rt.out, conv)
	}

	fmt.Fprintf(rt.out, "%s  %s\n", conv.ID, conv.Status)
	fmt.Fprintf(rt.out, "salon:  %s\nclient: %s\n", conv.Salon.DisplayName(), conv.Client.DisplayName())
	if conv.Subject != "" {
		fmt.Fprintf(rt.out, "subject: %s\n", conv.Subject)
	}
	fmt.Fprintf(rt.out, "unread: %d\n\n", conv.UnreadCount)

	rows := make([][]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		at := m.CreatedAt
		rows = append(rows, []string{formatTime(&at), string(m.SenderRole), m.Content})
	}
	return writeTable(rt.out, []string{"AT", "FROM", "MESSAGE"}, rows)
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "archive <conversation-id>",
		Aliases: []string{"toggle"},
		Short:   "Toggle a conversation between ACTIVE and ARCHIVED",
		Args:    cobra.ExactArgs(1),
		RunE:    runArchive,
	}
}

func runArchive(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	// the toggle needs a known current status
	if _, err := rt.engine.OpenConversation(ctx, args[0]); err != nil {
		return describe(err)
	}

	res, err := rt.engine.ToggleArchive(ctx, args[0])
	if err != nil {
		if errors.Is(err, entity.ErrConversationClosed) {
			return fmt.Errorf("%s is closed and can no longer be archived or restored", args[0])
		}
		return describe(err)
	}

	if rt.json {
		return writeJSON(rt.out, res)
	}
	_, err = fmt.Fprintf(rt.out, "%s: %s -> %s\n", res.ID, res.Previous, res.Reported)
	return err
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Mark every message of a conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.engine.MarkRead(commandContext(cmd), args[0]); err != nil {
				return describe(err)
			}
			_, err = fmt.Fprintf(rt.out, "%s: marked read\n", args[0])
			return err
		},
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <message...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			msg, err := rt.engine.SendMessage(commandContext(cmd), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return describe(err)
			}

			if rt.json {
				return writeJSON(rt.out, msg)
			}
			_, err = fmt.Fprintf(rt.out, "sent %s\n", msg.ID)
			return err
		},
	}
}

func newLeaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave <conversation-id>",
		Short: "Close a conversation for both parties",
		Args:  cobra.ExactArgs(1),
		RunE:  runLeave,
	}
	cmd.Flags().Bool("yes", false, "confirm; a closed conversation cannot be reopened")
	return cmd
}

func runLeave(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("leaving closes the conversation for good; pass --yes to confirm")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}

	status, err := rt.engine.LeaveConversation(commandContext(cmd), args[0])
	if err != nil {
		return describe(err)
	}
	_, err = fmt.Fprintf(rt.out, "%s: %s\n", args[0], status)
	return err
}

func newUnreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Show the unread total and the most recent unread conversations",
		Args:  cobra.NoArgs,
		RunE:  runUnread,
	}
	cmd.Flags().Int("limit", 5, "recent conversations to show")
	return cmd
}

// unreadOutput is the JSON shape of the unread command
type unreadOutput struct {
	Total  int                                `json:"total"`
	Recent []entity.UnreadConversationSummary `json:"recent"`
}

func runUnread(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 {
		return errors.New("--limit must be positive")
	}

	total, err := rt.engine.RefreshUnread(commandContext(cmd))
	if err != nil {
		return describe(err)
	}

	out := unreadOutput{Total: total, Recent: rt.engine.RecentUnread(limit)}
	if rt.json {
		return writeJSON(rt.out, out)
	}

	fmt.Fprintf(rt.out, "%d unread\n\n", out.Total)
	rows := make([][]string, 0, len(out.Recent))
	for _, s := range out.Recent {
		at := s.LastMessageAt
		rows = append(rows, []string{
			s.ConversationID,
			strings.TrimSpace(s.ClientFirstName + " " + s.ClientLastName),
			strconv.Itoa(s.UnreadCount),
			formatTime(&at),
			s.LastMessage,
		})
	}
	return writeTable(rt.out, []string{"ID", "CLIENT", "UNREAD", "LAST AT", "LAST MESSAGE"}, rows)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
