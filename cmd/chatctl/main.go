package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"chat-relay-service/auth"
	"chat-relay-service/config"
	"chat-relay-service/database"
	"chat-relay-service/models"
	"chat-relay-service/stream"
	"chat-relay-service/version"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

const websiteUserBalance = 999999999

func main() {
	rootCmd := &cobra.Command{
		Use:          "chatctl",
		Short:        "Operational tooling for the chat relay service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd(), seedWebsiteUserCmd(), streamCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*database.ChatService, func(), error) {
	cfg := config.Load()
	db, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	return database.NewChatService(db), func() { db.Close() }, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.Connect(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.InitializeSchema(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("Schema is up to date")
			return nil
		},
	}
}

// websiteUser builds the account the website assistant chats as
func websiteUser(id, token string) (models.User, error) {
	hashedToken, err := auth.HashValue(token)
	if err != nil {
		return models.User{}, err
	}
	hashedAnimals, err := auth.HashValue("website|user|default")
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:              id,
		Token:           hashedToken,
		AnimalSelection: hashedAnimals,
		TokenBalance:    websiteUserBalance,
		Status:          "ACTIVE",
		StatusReason:    "Website visitor chat user",
		IsEmailVerified: true,
	}, nil
}

func seedWebsiteUserCmd() *cobra.Command {
	var id, token string

	cmd := &cobra.Command{
		Use:   "seed-website-user",
		Short: "Create the account used by the website assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("WEBSITE_USER_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("a token is required: pass --token or set WEBSITE_USER_TOKEN")
			}

			user, err := websiteUser(id, token)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.UpsertUser(cmd.Context(), user); err != nil {
				return err
			}
			log.WithField("user_id", user.ID).Info("Website user created successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "babagpt.ai", "website user ID")
	cmd.Flags().StringVar(&token, "token", "", "plain token to hash and store")
	return cmd
}

// streamChat posts req to the server and writes chunk content to out. Other
// events are logged. It returns the first error event as an error.
func streamChat(ctx context.Context, client *http.Client, server string, req models.ChatRequest, out io.Writer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var streamErr error
	err = stream.ParseSSE(resp.Body, func(ev models.StreamEvent) bool {
		switch ev.Type {
		case models.EventChunk:
			fmt.Fprint(out, ev.Content)
		case models.EventError:
			if streamErr == nil {
				streamErr = fmt.Errorf("stream error: %s", ev.Content)
			}
		default:
			log.WithFields(log.Fields{"type": ev.Type, "content": ev.Content, "message_id": ev.MessageID}).Debug("event")
		}
		return ev.Content != models.StatusStreamEnded || ev.Type != models.EventStatus
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	return streamErr
}

func streamCmd() *cobra.Command {
	var (
		server  string
		req     models.ChatRequest
		persona models.Persona
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Send one chat message to a running server and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if persona.Provider != "" {
				req.Persona = &persona
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return streamChat(ctx, http.DefaultClient, server, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "chat relay base URL")
	cmd.Flags().StringVar(&req.UserID, "user-id", "babagpt.ai", "user ID")
	cmd.Flags().StringVar(&req.ChatID, "chat-id", "", "chat ID")
	cmd.Flags().StringVar(&req.Content, "content", "", "message to send")
	cmd.Flags().StringVar(&persona.Provider, "persona-provider", "", "provider name, empty for the website assistant")
	cmd.Flags().StringVar(&persona.ModelCodeName, "persona-model", "", "model code name")
	cmd.Flags().StringVar(&persona.Name, "persona-name", "Assistant", "persona name")
	cmd.Flags().StringVar(&persona.Role, "persona-role", "helpful assistant", "persona role")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	cmd.MarkFlagRequired("chat-id")
	cmd.MarkFlagRequired("content")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(version.Get(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
