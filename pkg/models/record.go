package models

import "time"

// LogRecord is one proxied request/response pair awaiting durable persistence.
type LogRecord struct {
	RequestID         string    `json:"request_id"`
	UserID            string    `json:"user_id"`
	IP                string    `json:"ip"`
	Timestamp         time.Time `json:"timestamp"`
	Model             string    `json:"model"`
	TokenPrefix       string    `json:"token_prefix"`
	TokenSuffix       string    `json:"token_suffix"`
	Route             string    `json:"route"`
	Content           string    `json:"content"`
	IsRestricted      bool      `json:"is_restricted"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	IsNewConversation bool      `json:"is_new_conversation"`
}

// ConversationMessage is a single message within a conversation.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord groups the messages of one logical conversation.
type ConversationRecord struct {
	ConversationID string                `json:"conversation_id"`
	UserID         string                `json:"user_id"`
	IP             string                `json:"ip"`
	Messages       []ConversationMessage `json:"messages"`
	MessageCount   int                   `json:"message_count"`
	LastRequestID  string                `json:"last_request_id"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
