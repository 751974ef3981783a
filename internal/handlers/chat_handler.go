package handlers

import (
	"context"
	"fmt"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/middleware"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/services"
	chatws "github.com/saeid-a/FinCoachBack/internal/websocket"
)

type chatApplicationService interface {
	OpenConversation(ctx context.Context, caller auth.Caller, input services.OpenConversationInput) (*models.Conversation, error)
	ListConversations(ctx context.Context, caller auth.Caller) ([]models.ConversationSummary, error)
	Conversation(ctx context.Context, caller auth.Caller, conversationID int64) (*models.Conversation, error)
	LoadMessages(ctx context.Context, caller auth.Caller, conversationID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, caller auth.Caller, input services.SendMessageInput) (*services.SendResult, error)
	MarkRead(ctx context.Context, caller auth.Caller, conversationID int64, messageIDs []int64) ([]models.Message, error)
}

type attachmentService interface {
	Upload(ctx context.Context, caller auth.Caller, input services.AttachmentInput) (*services.SendResult, error)
	SignedURL(ctx context.Context, caller auth.Caller, conversationID int64, fileURL string) (string, error)
}

type tokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Caller, error)
}

type ChatHandler struct {
	service       chatApplicationService
	attachments   attachmentService
	hub           *chatws.Hub
	authenticator tokenAuthenticator
}

type openConversationRequest struct {
	UserID   *int64  `json:"user_id" validate:"omitempty,gt=0"`
	ItemID   *int64  `json:"item_id" validate:"omitempty,gt=0"`
	ItemType *string `json:"item_type" validate:"omitempty,oneof=session program tool"`
}

type sendMessageRequest struct {
	Body      string  `json:"body" validate:"required"`
	Kind      string  `json:"kind" validate:"omitempty,oneof=text attachment"`
	ClientKey *string `json:"client_key" validate:"omitempty,uuid"`
}

type markReadRequest struct {
	MessageIDs []int64 `json:"message_ids" validate:"dive,gt=0"`
}

func NewChatHandler(
	service chatApplicationService,
	attachments attachmentService,
	hub *chatws.Hub,
	authenticator tokenAuthenticator,
) *ChatHandler {
	return &ChatHandler{
		service:       service,
		attachments:   attachments,
		hub:           hub,
		authenticator: authenticator,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	conversations, err := h.service.ListConversations(c.Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) OpenConversation(c *fiber.Ctx) error {
	var req openConversationRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	conversation, err := h.service.OpenConversation(c.Context(), callerFrom(c), services.OpenConversationInput{
		UserID:   req.UserID,
		ItemID:   req.ItemID,
		ItemType: req.ItemType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	messages, err := h.service.LoadMessages(c.Context(), callerFrom(c), conversationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req sendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	result, err := h.service.SendMessage(c.Context(), callerFrom(c), services.SendMessageInput{
		ConversationID: conversationID,
		Body:           req.Body,
		Kind:           req.Kind,
		ClientKey:      req.ClientKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"message": result.Message})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req markReadRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	marked, err := h.service.MarkRead(c.Context(), callerFrom(c), conversationID, req.MessageIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"messages": marked})
}

func (h *ChatHandler) UploadAttachment(c *fiber.Ctx) error {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fmt.Errorf("%w: file is required", services.ErrInvalidInput))
	}
	file, err := fileHeader.Open()
	if err != nil {
		return writeError(c, fmt.Errorf("%w: unreadable file", services.ErrInvalidInput))
	}
	defer file.Close()

	var clientKey *string
	if key := strings.TrimSpace(c.FormValue("client_key")); key != "" {
		clientKey = &key
	}

	result, err := h.attachments.Upload(c.Context(), callerFrom(c), services.AttachmentInput{
		ConversationID: conversationID,
		Filename:       fileHeader.Filename,
		Content:        file,
		ClientKey:      clientKey,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": result.Message})
}

func (h *ChatHandler) AttachmentURL(c *fiber.Ctx) error {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	fileURL := strings.TrimSpace(c.Query("file_url"))
	if fileURL == "" {
		return writeError(c, fmt.Errorf("%w: file_url is required", services.ErrInvalidInput))
	}

	signed, err := h.attachments.SignedURL(c.Context(), callerFrom(c), conversationID, fileURL)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"url": signed})
}

// WebSocketAuth resolves the caller from a token query parameter (browsers cannot set
// headers on upgrade requests) or the Authorization header.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token, _ = middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	if token == "" {
		return writeError(c, services.ErrAuthenticationRequired)
	}

	caller, err := h.authenticator.Authenticate(c.Context(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals(auth.LocalsKey, caller)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	caller, ok := conn.Locals(auth.LocalsKey).(auth.Caller)
	if !ok {
		_ = conn.Close()
		return
	}
	client := chatws.NewClient(h.hub, conn, caller)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(context.Background(), h.service)
}
