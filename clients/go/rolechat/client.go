// Package rolechat provides a Go client for the rolechat HTTP API.
package rolechat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GlobalRoom is the ID of the shared room every user can read.
const GlobalRoom = "global"

// Client is a rolechat API client. Token is set by Register or Login and
// sent as a bearer token on every subsequent request.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new rolechat client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rolechat error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and unwraps the response envelope.
func (c *Client) doRequest(method, path string, body []byte, out any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// User is one registered identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Attachment references an uploaded object.
type Attachment struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
}

// ReplyRef is a snapshot of the replied-to message.
type ReplyRef struct {
	TargetID   string `json:"targetID"`
	Snippet    string `json:"snippet"`
	SenderName string `json:"senderName"`
}

// Message is one chat message as served by the API.
type Message struct {
	ID          string            `json:"id"`
	RoomID      string            `json:"roomID"`
	SenderID    string            `json:"senderID"`
	SenderEmail string            `json:"senderEmail"`
	SenderRole  string            `json:"senderRole"`
	Body        string            `json:"body"`
	Attachment  *Attachment       `json:"attachment,omitempty"`
	ReplyTo     *ReplyRef         `json:"replyTo,omitempty"`
	Reactions   map[string]string `json:"reactions"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// RoomSummary is one private conversation seen from the caller's side.
type RoomSummary struct {
	RoomID             string     `json:"roomID"`
	PeerID             string     `json:"peerID"`
	PeerEmail          string     `json:"peerEmail"`
	UnreadCount        int        `json:"unreadCount"`
	LastMessagePreview string     `json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
}

type authData struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and stores the session token on the client.
func (c *Client) Register(email, password string) (*User, error) {
	body, _ := json.Marshal(credentialsRequest{Email: email, Password: password})

	var data authData
	if err := c.doRequest("POST", "/api/auth/register", body, &data); err != nil {
		return nil, err
	}
	c.Token = data.Token
	return &data.User, nil
}

// Login authenticates and stores the session token on the client.
func (c *Client) Login(email, password string) (*User, error) {
	body, _ := json.Marshal(credentialsRequest{Email: email, Password: password})

	var data authData
	if err := c.doRequest("POST", "/api/auth/login", body, &data); err != nil {
		return nil, err
	}
	c.Token = data.Token
	return &data.User, nil
}

// Me returns the current session identity with its freshly loaded role.
func (c *Client) Me() (*User, error) {
	var user User
	if err := c.doRequest("GET", "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Roles lists the role registry.
func (c *Client) Roles() ([]string, error) {
	var data struct {
		Roles []string `json:"roles"`
	}
	if err := c.doRequest("GET", "/api/roles/", nil, &data); err != nil {
		return nil, err
	}
	return data.Roles, nil
}

type sendRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Send posts a text message to a room. replyTo may be empty.
func (c *Client) Send(roomID, text, replyTo string) (*Message, error) {
	body, _ := json.Marshal(sendRequest{Text: text, ReplyTo: replyTo})

	var msg Message
	if err := c.doRequest("POST", "/api/chat/rooms/"+url.PathEscape(roomID)+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns the most recent messages of a room, oldest first.
func (c *Client) History(roomID string) ([]Message, error) {
	var msgs []Message
	if err := c.doRequest("GET", "/api/chat/rooms/"+url.PathEscape(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Rooms lists the caller's private conversations.
func (c *Client) Rooms() ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := c.doRequest("GET", "/api/chat/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Unreads maps private-chat peer ids to unread counts.
func (c *Client) Unreads() (map[string]int, error) {
	var unreads map[string]int
	if err := c.doRequest("GET", "/api/chat/unreads", nil, &unreads); err != nil {
		return nil, err
	}
	return unreads, nil
}

// OpenChatWith resolves the private room shared with another user.
func (c *Client) OpenChatWith(userID string) (*RoomSummary, error) {
	var data struct {
		RoomID    string `json:"roomID"`
		PeerID    string `json:"peerID"`
		PeerEmail string `json:"peerEmail"`
	}
	if err := c.doRequest("GET", "/api/chat/with/"+url.PathEscape(userID), nil, &data); err != nil {
		return nil, err
	}
	return &RoomSummary{RoomID: data.RoomID, PeerID: data.PeerID, PeerEmail: data.PeerEmail}, nil
}

// MarkRead zeroes the unread counter for a room.
func (c *Client) MarkRead(roomID string) error {
	return c.doRequest("POST", "/api/chat/rooms/"+url.PathEscape(roomID)+"/read", nil, nil)
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

// React toggles a reaction on a message.
func (c *Client) React(roomID, messageID, emoji string) (*Message, error) {
	body, _ := json.Marshal(reactRequest{Emoji: emoji})

	path := fmt.Sprintf("/api/chat/rooms/%s/messages/%s/reactions", url.PathEscape(roomID), url.PathEscape(messageID))
	var msg Message
	if err := c.doRequest("POST", path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message the caller sent.
func (c *Client) DeleteMessage(roomID, messageID string) error {
	path := fmt.Sprintf("/api/chat/rooms/%s/messages/%s", url.PathEscape(roomID), url.PathEscape(messageID))
	return c.doRequest("DELETE", path, nil, nil)
}
