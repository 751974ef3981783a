package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/logger"
	"github.com/saeid-a/FinCoachBack/pkg/chatclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type settings struct {
	baseURL string
	token   string
	userID  int64
	timeout time.Duration
}

func main() {
	v := viper.New()
	v.SetEnvPrefix("fincoach")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal client for FinCoach conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.String("base-url", "http://localhost:8080", "API base URL (FINCOACH_BASE_URL)")
	flags.String("token", "", "bearer token (FINCOACH_TOKEN)")
	flags.Int64("user-id", 0, "your user id, used to tell your messages apart (FINCOACH_USER_ID)")
	flags.Duration("timeout", 15*time.Second, "per-request timeout")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"base-url", "token", "user-id", "timeout", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	load := func() (settings, error) {
		s := settings{
			baseURL: v.GetString("base-url"),
			token:   v.GetString("token"),
			userID:  v.GetInt64("user-id"),
			timeout: v.GetDuration("timeout"),
		}
		if s.token == "" {
			return s, errors.New("a token is required (--token or FINCOACH_TOKEN)")
		}
		return s, nil
	}
	log := func() zerolog.Logger { return logger.New(v.GetString("log-level"), "development") }

	rootCmd.AddCommand(conversationsCmd(load))
	rootCmd.AddCommand(openCmd(load))
	rootCmd.AddCommand(historyCmd(load))
	rootCmd.AddCommand(sendCmd(load))
	rootCmd.AddCommand(watchCmd(load, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func conversationsCmd(load func() (settings, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			list, err := chatclient.NewHTTPBackend(s.baseURL, s.token, s.timeout).ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range list {
				scope := "general"
				if c.ItemID != nil && c.ItemType != nil {
					scope = fmt.Sprintf("%s #%d", *c.ItemType, *c.ItemID)
				}
				preview := ""
				if c.LastMessage != nil {
					preview = truncate(c.LastMessage.Body, 48)
				}
				fmt.Fprintf(out, "%6d  %-18s unread=%-3d %s\n", c.ID, scope, c.UnreadCount, preview)
			}
			return nil
		},
	}
}

func openCmd(load func() (settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open (or create) a conversation and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			itemID, _ := cmd.Flags().GetInt64("item-id")
			itemType, _ := cmd.Flags().GetString("item-type")
			if itemID > 0 && itemType == "" {
				return errors.New("--item-type is required with --item-id")
			}
			c, err := chatclient.NewHTTPBackend(s.baseURL, s.token, s.timeout).OpenConversation(cmd.Context(), itemID, itemType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	cmd.Flags().Int64("item-id", 0, "item the conversation is about; omit for general support")
	cmd.Flags().String("item-type", "", "session, program or tool")
	return cmd
}

func historyCmd(load func() (settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a conversation, marking incoming messages read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			conversationID, err := conversationFlag(cmd)
			if err != nil {
				return err
			}
			thread := chatclient.NewThread(chatclient.NewHTTPBackend(s.baseURL, s.token, s.timeout), nil, conversationID, s.userID)
			if err := thread.Load(cmd.Context()); err != nil {
				return err
			}
			for _, entry := range thread.Entries() {
				printEntry(cmd.OutOrStdout(), entry, s.userID)
			}
			return nil
		},
	}
	cmd.Flags().Int64P("conversation", "c", 0, "conversation id")
	return cmd
}

func sendCmd(load func() (settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			conversationID, err := conversationFlag(cmd)
			if err != nil {
				return err
			}
			thread := chatclient.NewThread(chatclient.NewHTTPBackend(s.baseURL, s.token, s.timeout), nil, conversationID, s.userID)
			message, err := thread.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent #%d\n", message.ID)
			return nil
		},
	}
	cmd.Flags().Int64P("conversation", "c", 0, "conversation id")
	return cmd
}

// watchCmd follows a conversation live; every line typed on stdin is sent.
func watchCmd(load func() (settings, error), log func() zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a conversation live and send lines typed on stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			conversationID, err := conversationFlag(cmd)
			if err != nil {
				return err
			}
			l := log()
			feed, err := chatclient.NewWebSocketFeed(s.baseURL, s.token, l)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var mu sync.Mutex
			printed := 0
			thread := chatclient.NewThread(
				chatclient.NewHTTPBackend(s.baseURL, s.token, s.timeout), feed, conversationID, s.userID,
				chatclient.WithLogger(l),
				chatclient.WithOnChange(func(entries []chatclient.Entry) {
					mu.Lock()
					defer mu.Unlock()
					for ; printed < len(entries); printed++ {
						printEntry(out, entries[printed], s.userID)
					}
				}),
			)
			// Subscribe before loading so nothing committed in between is missed.
			ctx := cmd.Context()
			if err := thread.Subscribe(ctx); err != nil {
				return err
			}
			defer thread.Close()
			if err := thread.Load(ctx); err != nil {
				return err
			}

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
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
					if strings.TrimSpace(line) == "" {
						continue
					}
					if _, err := thread.Send(ctx, line); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "not sent: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().Int64P("conversation", "c", 0, "conversation id")
	return cmd
}

func conversationFlag(cmd *cobra.Command) (int64, error) {
	id, _ := cmd.Flags().GetInt64("conversation")
	if id <= 0 {
		return 0, errors.New("--conversation is required")
	}
	return id, nil
}

func printEntry(w io.Writer, entry chatclient.Entry, selfID int64) {
	who := entry.Message.SenderRole
	if entry.Message.SenderID == selfID {
		who = "you"
	}
	marker := ""
	if entry.State == chatclient.StateSending {
		marker = " (sending)"
	} else if entry.Message.ReadAt != nil {
		marker = " (read)"
	}
	fmt.Fprintf(w, "[%s] %s: %s%s\n", entry.Message.CreatedAt.Local().Format("15:04"), who, entry.Message.Body, marker)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
