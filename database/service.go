package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chat-relay-service/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

var (
	ErrChatNotFound      = errors.New("Chat not found or unauthorized")
	ErrMessageNotFound   = errors.New("Message not found or unauthorized")
	ErrMissingParameters = errors.New("Missing required parameters")
)

const (
	maxTitleRunes       = 50
	previewMessageCount = 5
	previewContentRunes = 150
	lastMessageRunes    = 100
	defaultChatTitle    = "New Chat"
)

// ChatService handles all chat and message persistence
type ChatService struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// NewChatService creates a new chat service instance
func NewChatService(db *sql.DB) *ChatService {
	return &ChatService{
		db:    db,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Connect opens the database and waits for it to accept connections, backing off
// exponentially between attempts until ctx is done.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := time.Second
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		log.WithError(err).Warnf("Database connection failed, retrying in %v", waitInterval)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("database not reachable: %w", ctx.Err())
		case <-time.After(waitInterval):
		}
		if waitInterval < 30*time.Second {
			waitInterval *= 2
		}
	}
}

// Ping checks the database connection
func (s *ChatService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateChat creates a new chat for the user, titled after the initial message
func (s *ChatService) CreateChat(ctx context.Context, req models.CreateChatRequest) (*models.Chat, error) {
	if req.UserID == "" {
		return nil, ErrMissingParameters
	}

	now := s.now().UTC()
	chat := &models.Chat{
		ID:            s.newID(),
		UserID:        req.UserID,
		Title:         chatTitle(req.InitialMessage),
		ModelName:     req.Model.Name,
		Provider:      req.Model.Provider,
		ModelCodeName: req.Model.ModelCodeName,
		ModelRole:     req.Model.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, model_name, provider, model_code_name, model_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.ModelName, chat.Provider, chat.ModelCodeName, chat.ModelRole, now, now)
	if err != nil {
		log.Errorf("Failed to insert chat for user %s: %v", req.UserID, err)
		return nil, fmt.Errorf("failed to insert chat: %w", err)
	}

	log.WithFields(log.Fields{"chat_id": chat.ID, "user_id": chat.UserID, "provider": chat.Provider}).Info("chat.created")
	return chat, nil
}

// GetChat returns the chat if it exists and belongs to the user
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	if userID == "" || chatID == "" {
		return nil, ErrMissingParameters
	}

	var chat models.Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, model_name, provider, model_code_name, model_role, created_at, updated_at
		FROM chats WHERE id = ? AND user_id = ?`, chatID, userID).
		Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.ModelName, &chat.Provider,
			&chat.ModelCodeName, &chat.ModelRole, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	return &chat, nil
}

// ListChats returns the user's chats, most recently updated first
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	if userID == "" {
		return nil, ErrMissingParameters
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model_name, c.provider, c.model_code_name, c.model_role, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
			COALESCE((SELECT m.content FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC LIMIT 1), '')
		FROM chats c
		WHERE c.user_id = ?
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		chat := models.Chat{UserID: userID}
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.ModelName, &chat.Provider, &chat.ModelCodeName,
			&chat.ModelRole, &chat.CreatedAt, &chat.UpdatedAt, &chat.MessageCount, &chat.LastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chat.LastMessage = truncateRunes(chat.LastMessage, lastMessageRunes)
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	return chats, nil
}

// AddMessage stores a message in a chat owned by the user and bumps the chat's
// updated_at so the chat list stays ordered by activity
func (s *ChatService) AddMessage(ctx context.Context, userID, chatID, content string, role models.Role) (*models.Message, error) {
	if userID == "" || chatID == "" {
		return nil, ErrMissingParameters
	}

	if err := s.ensureChatOwner(ctx, userID, chatID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        s.newID(),
		ChatID:    chatID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE chats SET updated_at = ? WHERE id = ?", msg.CreatedAt, chatID); err != nil {
		return nil, fmt.Errorf("failed to update chat timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{"chat_id": chatID, "message_id": msg.ID, "role": role}).Debug("message.stored")
	return msg, nil
}

// GetChatMessages returns every message of the chat in chronological order
func (s *ChatService) GetChatMessages(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	if userID == "" || chatID == "" {
		return nil, ErrMissingParameters
	}
	if err := s.ensureChatOwner(ctx, userID, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, pinned, starred, notes, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, chatID, userID)
}

// GetChatMessagesPreview returns the last few messages of the chat, oldest first,
// with long contents shortened
func (s *ChatService) GetChatMessagesPreview(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	if userID == "" || chatID == "" {
		return nil, ErrMissingParameters
	}
	if err := s.ensureChatOwner(ctx, userID, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, pinned, starred, notes, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at DESC LIMIT ?`, chatID, previewMessageCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query preview messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows, chatID, userID)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		messages[i].Content = truncateRunes(messages[i].Content, previewContentRunes)
	}
	return messages, nil
}

// UpdateMessageMetadata applies a partial pinned/starred/notes update to a message
// that belongs to one of the user's chats
func (s *ChatService) UpdateMessageMetadata(ctx context.Context, userID, messageID string, update models.MetadataUpdate) (*models.Message, error) {
	if userID == "" || messageID == "" {
		return nil, ErrMissingParameters
	}

	msg, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []interface{}
	if update.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, *update.Pinned)
		msg.Pinned = *update.Pinned
	}
	if update.Starred != nil {
		sets = append(sets, "starred = ?")
		args = append(args, *update.Starred)
		msg.Starred = *update.Starred
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *update.Notes)
		msg.Notes = *update.Notes
	}
	if len(sets) == 0 {
		return msg, nil
	}

	args = append(args, messageID)
	query := "UPDATE messages SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update message metadata: %w", err)
	}

	log.WithFields(log.Fields{"message_id": messageID, "user_id": userID}).Info("message.metadata.updated")
	return msg, nil
}

// DeleteChat removes a chat and, through the foreign key, its messages
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if userID == "" || chatID == "" {
		return ErrMissingParameters
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ? AND user_id = ?", chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// UpsertUser creates the user or refreshes its credentials and status
func (s *ChatService) UpsertUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return ErrMissingParameters
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, token, animal_selection, token_balance, status, status_reason, is_email_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE token = VALUES(token), animal_selection = VALUES(animal_selection),
			token_balance = VALUES(token_balance), status = VALUES(status), status_reason = VALUES(status_reason),
			is_email_verified = VALUES(is_email_verified)`,
		user.ID, user.Token, user.AnimalSelection, user.TokenBalance, user.Status, user.StatusReason, user.IsEmailVerified)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

func (s *ChatService) ensureChatOwner(ctx context.Context, userID, chatID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM chats WHERE id = ? AND user_id = ?)", chatID, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check chat ownership: %w", err)
	}
	if !exists {
		return ErrChatNotFound
	}
	return nil
}

func (s *ChatService) getOwnedMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	var msg models.Message
	var role string
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.chat_id, m.role, m.content, m.pinned, m.starred, m.notes, m.created_at
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE m.id = ? AND c.user_id = ?`, messageID, userID).
		Scan(&msg.ID, &msg.ChatID, &role, &msg.Content, &msg.Pinned, &msg.Starred, &notes, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	msg.Role = models.Role(role)
	msg.Notes = notes.String
	msg.UserID = userID
	return &msg, nil
}

func scanMessages(rows *sql.Rows, chatID, userID string) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var role string
		var notes sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Pinned, &msg.Starred, &notes, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ChatID = chatID
		msg.UserID = userID
		msg.Role = models.Role(role)
		msg.Notes = notes.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func chatTitle(initialMessage string) string {
	title := strings.Join(strings.Fields(initialMessage), " ")
	if title == "" {
		return defaultChatTitle
	}
	return truncateRunes(title, maxTitleRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
