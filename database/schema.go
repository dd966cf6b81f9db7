package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// Schema contains the database schema
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(191) PRIMARY KEY,
    token VARCHAR(512) NOT NULL,
    animal_selection VARCHAR(512) NOT NULL DEFAULT '',
    token_balance BIGINT NOT NULL DEFAULT 0,
    status ENUM('ACTIVE', 'SUSPENDED', 'DELETED') NOT NULL DEFAULT 'ACTIVE',
    status_reason VARCHAR(255) NOT NULL DEFAULT '',
    is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    login_attempts INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(191) NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT 'New Chat',
    model_name VARCHAR(255) NOT NULL DEFAULT '',
    provider VARCHAR(64) NOT NULL DEFAULT '',
    model_code_name VARCHAR(255) NOT NULL DEFAULT '',
    model_role VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    INDEX idx_chats_user_updated (user_id, updated_at)
);

CREATE TABLE IF NOT EXISTS messages (
    id VARCHAR(64) PRIMARY KEY,
    chat_id VARCHAR(64) NOT NULL,
    role ENUM('user', 'assistant', 'system') NOT NULL,
    content MEDIUMTEXT NOT NULL,
    pinned BOOLEAN NOT NULL DEFAULT FALSE,
    starred BOOLEAN NOT NULL DEFAULT FALSE,
    notes TEXT,
    created_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3),
    FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
    INDEX idx_messages_chat_created (chat_id, created_at)
);
`

// InitializeSchema creates any missing tables
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	log.Info("Initializing database schema...")

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}
