package models

import "time"

// Message is one delivered note between two usernames. Recipients are stored
// by value; nothing guarantees to_user corresponds to a registered account.
type Message struct {
	ID        int64     `json:"id"`
	FromUser  string    `json:"from_user"`
	ToUser    string    `json:"to_user"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
