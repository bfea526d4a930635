package devserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/internal/events"
	"dmchat/internal/middleware"
	"dmchat/internal/storage"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

const maxUploadSize = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type handlers struct {
	store   *Store
	auth    *Auth
	hub     *Hub
	uploads storage.Store
	log     *logger.Logger
	now     func() time.Time
}

func (h *handlers) register(c *gin.Context) {
	var req httpdto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("Error creating user"))
		return
	}
	u, err := h.store.CreateUser(req.Username, req.DisplayName, req.Email, hash)
	if err != nil {
		writeError(c, err, "Username already exists")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User created successfully",
		"user":    gin.H{"id": u.ID, "username": u.Username},
	})
}

func (h *handlers) login(c *gin.Context) {
	var req httpdto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	rec, err := h.store.user(req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Invalid credentials"))
		return
	}
	if err := checkPassword(rec.passwordHash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Invalid credentials"))
		return
	}

	token, err := h.auth.IssueToken(rec.user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("Could not issue token"))
		return
	}
	c.JSON(http.StatusOK, httpdto.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *handlers) me(c *gin.Context) {
	rec, err := h.store.user(middleware.Username(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Could not validate credentials"))
		return
	}
	c.JSON(http.StatusOK, httpdto.MeResponse{
		ID:          rec.user.ID,
		Username:    rec.user.Username,
		DisplayName: rec.user.DisplayName,
		Email:       rec.email,
	})
}

func (h *handlers) listChats(c *gin.Context) {
	chats := h.store.ChatsFor(middleware.Username(c))
	resp := httpdto.ChatsResponse{Chats: make([]httpdto.ChatDTO, 0, len(chats))}
	for _, ch := range chats {
		resp.Chats = append(resp.Chats, httpdto.NewChatDTO(ch))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) createChat(c *gin.Context) {
	var req httpdto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	chat, created, err := h.store.FindOrCreateChat(middleware.Username(c), req.Username)
	if err != nil {
		writeError(c, err, "User not found")
		return
	}
	if !created {
		c.JSON(http.StatusOK, httpdto.CreateChatResponse{ChatID: chat.ID, Message: "Chat already exists"})
		return
	}
	c.JSON(http.StatusOK, httpdto.CreateChatResponse{
		ChatID:       chat.ID,
		Participants: httpdto.NewChatDTO(chat).Participants,
	})
}

func (h *handlers) listMessages(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse("invalid chat_id"))
		return
	}
	if _, err := h.store.Chat(chatID, middleware.Username(c)); err != nil {
		writeError(c, err, "Chat not found")
		return
	}

	messages := h.store.Messages(chatID)
	resp := httpdto.MessagesResponse{Messages: make([]httpdto.MessageDTO, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, httpdto.NewMessageDTO(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) sendMessage(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.PostForm(httpdto.FormChatID), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse("invalid chat_id"))
		return
	}
	username := middleware.Username(c)
	if _, err := h.store.Chat(chatID, username); err != nil {
		writeError(c, err, "Chat not found")
		return
	}
	sender, err := h.store.User(username)
	if err != nil {
		writeError(c, err, "User not found")
		return
	}

	imageURL, err := h.saveImage(c)
	if err != nil {
		h.log.Ctx(c.Request.Context()).Error("save upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("Could not store image"))
		return
	}

	content := c.PostForm(httpdto.FormContent)
	if content == "" && imageURL == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("Message cannot be empty"))
		return
	}

	m := h.store.AddMessage(chatID, sender, content, c.PostForm(httpdto.FormReplyContent), imageURL, h.now())
	ev := events.Append(m)
	h.hub.Publish(chatID, ev)

	details, _ := events.Encode(ev)
	c.JSON(http.StatusOK, httpdto.SendMessageResponse{Message: "Message sent successfully", Details: details})
}

// saveImage stores the optional image part and returns its URL.
func (h *handlers) saveImage(c *gin.Context) (string, error) {
	fh, err := c.FormFile(httpdto.FormImage)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if fh.Size > maxUploadSize {
		return "", fmt.Errorf("upload of %d bytes exceeds limit", fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}

	key := uuid.New().String() + filepath.Ext(fh.Filename)
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if err := h.uploads.Put(c.Request.Context(), key, contentType, data); err != nil {
		return "", err
	}
	return h.uploads.FileURL(key), nil
}

func (h *handlers) editMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse("invalid message id"))
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	m, err := h.store.EditMessage(messageID, middleware.Username(c), req.NewContent)
	if err != nil {
		writeError(c, err, "You can't edit this message")
		return
	}
	h.hub.Publish(m.ChatID, events.Edit(m.ID, m.Content))

	c.JSON(http.StatusOK, gin.H{
		"message":         "Message edited successfully",
		"updated_message": gin.H{"message_id": m.ID, "new_content": m.Content},
	})
}

func (h *handlers) deleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse("invalid message id"))
		return
	}

	m, err := h.store.DeleteMessage(messageID, middleware.Username(c))
	if err != nil {
		writeError(c, err, "You can't delete this message")
		return
	}
	h.hub.Publish(m.ChatID, events.Delete(m.ID))

	c.JSON(http.StatusOK, gin.H{
		"message":         "Message deleted successfully",
		"deleted_message": gin.H{"message_id": m.ID, "content": m.Content},
	})
}

func (h *handlers) upload(c *gin.Context) {
	obj, err := h.uploads.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("Not Found"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error()))
		return
	}
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

// liveChannel upgrades /ws/chat/{chatId}. The token comes from the query
// string or the Authorization header.
func (h *handlers) liveChannel(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.ExtractBearer(c)
	}
	username, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Could not validate credentials"))
		return
	}
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse("invalid chat id"))
		return
	}
	if _, err := h.store.Chat(chatID, username); err != nil {
		writeError(c, err, "Chat not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Logger.Error("websocket upgrade failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, chatID, username, h.log)
	h.hub.Register(client)
	go client.writePump()
	go client.readPump()
}

// writeError maps store errors to statuses. detail is used for the
// domain errors the caller expects.
func writeError(c *gin.Context, err error, detail string) {
	switch {
	case errors.Is(err, dmchat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(detail))
	case errors.Is(err, dmchat_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(detail))
	case errors.Is(err, dmchat_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(detail))
	case errors.Is(err, dmchat_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error()))
	}
}
