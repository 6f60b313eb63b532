package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamspace-collab/sync-client/internal/client"
	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/protocol"
)

var chatCmd = &cobra.Command{
	Use:   "chat <workspace> <channel>",
	Short: "Join a workspace and chat on a channel",
	Args:  cobra.ExactArgs(2),
	Run:   runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	workspaceID, channelID := args[0], args[1]

	c := client.New(client.Config{
		BaseURL: cfg.Server,
		UserID:  cfg.UserID,
	})

	// Print workspace events as they stream in.
	c.Router().Subscribe(func(env *protocol.Envelope) {
		switch env.Type {
		case protocol.KindChatMessage:
			if env.ChannelID != channelID {
				return
			}
			msgs := c.Chat().Messages(channelID)
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				fmt.Printf("[%s] %s: %s\n", last.CreatedAt.Format("15:04"), last.AuthorID, last.Body)
			}
		case protocol.KindTyping:
			users := c.Presence().TypingUsers(channelID)
			if len(users) > 0 {
				fmt.Printf("-- %s typing --\n", strings.Join(users, ", "))
			}
		case protocol.KindUserPresence:
			fmt.Printf("** %s is %s **\n", env.UserID, env.Status)
		}
	}, protocol.KindChatMessage, protocol.KindTyping, protocol.KindUserPresence)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.Connect(ctx, workspaceID, cfg.Token); err != nil {
		fatal("failed to connect", err)
	}
	fmt.Printf("Connected to workspace %s as %s. Type messages, Ctrl+D to quit.\n", workspaceID, cfg.UserID)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		c.Close(context.Background())
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.Presence().InputActivity(channelID)
		if err := c.Chat().SendMessage(channelID, line, model.MessageKindText); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}

	if err := c.Close(context.Background()); err != nil {
		fatal("shutdown failed", err)
	}
}
