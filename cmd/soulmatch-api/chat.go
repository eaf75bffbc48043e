package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/client"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/logging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/timeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	chatCommandQuit    = "/quit"
	chatCommandSignOut = "/signout"
)

type chatOptions struct {
	serverURL   string
	email       string
	password    string
	partnerID   string
	sessionPath string
}

func newChatCommand() *cobra.Command {
	options := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with another member from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), options, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&options.serverURL, "server", "http://localhost:8080", "Base URL of the SoulMatch API")
	cmd.Flags().StringVar(&options.email, "email", "", "Account email (only needed without a stored session)")
	cmd.Flags().StringVar(&options.password, "password", "", "Account password (only needed without a stored session)")
	cmd.Flags().StringVar(&options.partnerID, "partner", "", "User id of the member to chat with")
	cmd.Flags().StringVar(&options.sessionPath, "session-file", defaultSessionPath(), "Where the signed-in session is kept")
	_ = cmd.MarkFlagRequired("partner")
	return cmd
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".soulmatch-session.json"
	}
	return filepath.Join(home, ".soulmatch", "session.json")
}

func runChat(ctx context.Context, options chatOptions, in io.Reader, out io.Writer) error {
	logger, err := logging.NewLogger(viper.GetString("log.level"), "console")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	sessions, err := client.NewFileSessionStore(afero.NewOsFs(), options.sessionPath)
	if err != nil {
		return err
	}
	apiClient, err := client.New(client.Config{
		BaseURL:  options.serverURL,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	session, restored, err := apiClient.Restore()
	if err != nil {
		return err
	}
	if !restored {
		if options.email == "" || options.password == "" {
			return errors.New("no stored session: --email and --password are required")
		}
		if session, err = apiClient.SignIn(ctx, options.email, options.password); err != nil {
			return err
		}
	}

	conversationID, err := apiClient.OpenConversation(ctx, options.partnerID)
	if err != nil {
		return err
	}

	view, err := timeline.New(timeline.Config{
		Backend: apiClient,
		Logger:  logger,
		OnMessage: func(message messaging.Message) {
			printMessage(out, session.UserID, message)
		},
	})
	if err != nil {
		return err
	}
	defer view.Close()

	if summaries, err := apiClient.ListConversations(ctx); err == nil {
		view.SetConversations(summaries)
		for _, summary := range summaries {
			if summary.ID == conversationID {
				fmt.Fprintf(out, "chatting with %s (%d%% match)\n", summary.Partner.Name, summary.Compatibility)
			}
		}
	}

	if err := view.Select(ctx, conversationID); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "":
			continue
		case chatCommandQuit:
			return nil
		case chatCommandSignOut:
			return apiClient.SignOut(ctx)
		}
		if _, err := view.Send(ctx, line); err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func printMessage(out io.Writer, selfID string, message messaging.Message) {
	sender := message.SenderID
	if sender == selfID {
		sender = "you"
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", message.CreatedAt.Local().Format("15:04"), sender, message.Content)
}
