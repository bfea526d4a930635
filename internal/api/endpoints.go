package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"dmchat/internal/domain"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
)

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	r, err := c.jsonRequest(http.MethodPost, "/login", httpdto.LoginRequest{Username: username, Password: password}, false)
	if err != nil {
		return "", err
	}
	var resp httpdto.LoginResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("POST /login: empty access token: %w", dmchat_errors.ErrUnauthorized)
	}
	return resp.AccessToken, nil
}

func (c *Client) Register(ctx context.Context, in httpdto.RegisterRequest) error {
	r, err := c.jsonRequest(http.MethodPost, "/register", in, false)
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var resp httpdto.MeResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/me", auth: true}, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.ToDomain(), nil
}

func (c *Client) ListChats(ctx context.Context) ([]domain.Chat, error) {
	var resp httpdto.ChatsResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/chats", auth: true}, &resp); err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(resp.Chats))
	for _, ch := range resp.Chats {
		chats = append(chats, ch.ToDomain())
	}
	return chats, nil
}

// CreateChat creates or finds the direct chat with username.
func (c *Client) CreateChat(ctx context.Context, username string) (httpdto.CreateChatResponse, error) {
	r, err := c.jsonRequest(http.MethodPost, "/chats", httpdto.CreateChatRequest{Username: username}, true)
	if err != nil {
		return httpdto.CreateChatResponse{}, err
	}
	var resp httpdto.CreateChatResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return httpdto.CreateChatResponse{}, err
	}
	return resp, nil
}

// ListMessages returns the history of chatID ordered by sent time.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	var resp httpdto.MessagesResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/messages?" + q.Encode(), auth: true}, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// Attachment is an image sent along with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

func (a *Attachment) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// OpenAttachment reads the file at path.
func OpenAttachment(path string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Attachment{Name: name, ContentType: contentType, Data: data}, nil
}

type SendMessageInput struct {
	ChatID       int64
	Content      string
	ReplyContent string
	Image        *Attachment
}

// SendMessage posts a multipart message. The created message is delivered
// back over the live channel.
func (c *Client) SendMessage(ctx context.Context, in SendMessageInput) error {
	if in.Content == "" && in.Image == nil {
		return dmchat_errors.ErrEmptyMessage
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{httpdto.FormChatID, strconv.FormatInt(in.ChatID, 10)},
		{httpdto.FormContent, in.Content},
		{httpdto.FormReplyContent, in.ReplyContent},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	if in.Image != nil {
		if err := writeFilePart(w, in.Image); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/messages",
		body:        &buf,
		contentType: w.FormDataContentType(),
		auth:        true,
	}, nil)
}

func writeFilePart(w *multipart.Writer, a *Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     httpdto.FormImage,
		"filename": a.Name,
	}))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, bytes.NewReader(a.Data))
	return err
}

func (c *Client) EditMessage(ctx context.Context, messageID int64, newContent string) error {
	r, err := c.jsonRequest(http.MethodPatch, fmt.Sprintf("/messages/%d", messageID), httpdto.EditMessageRequest{NewContent: newContent}, true)
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/messages/%d", messageID), auth: true}, nil)
}
