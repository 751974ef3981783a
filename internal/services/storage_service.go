package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

const maxAttachmentBytes = 10 << 20

var allowedAttachmentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, contentType string, content []byte) (string, error)
	Delete(ctx context.Context, fileURL string) error
	SignedURL(ctx context.Context, fileURL string, ttl time.Duration) (string, error)
}

// SupabaseStorage talks to the Supabase storage REST API.
type SupabaseStorage struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

func NewSupabaseStorage(baseURL, bucket, serviceKey string, timeout time.Duration) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SupabaseStorage) Upload(ctx context.Context, objectPath string, contentType string, content []byte) (string, error) {
	objectPath = strings.Trim(objectPath, "/")
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("x-upsert", "false")
	req.Header.Set("Content-Type", contentType)

	if _, err := s.do(req, "upload file"); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath), nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, fileURL string) error {
	objectPath, err := s.objectPathFromURL(fileURL)
	if err != nil {
		return err
	}

	deleteURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	s.authorize(req)

	status, err := s.do(req, "delete file")
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *SupabaseStorage) SignedURL(ctx context.Context, fileURL string, ttl time.Duration) (string, error) {
	objectPath, err := s.objectPathFromURL(fileURL)
	if err != nil {
		return "", err
	}

	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, objectPath)
	body, err := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("marshal signed url payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build signed url request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("get signed url: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var response struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	if response.SignedURL == "" {
		return "", fmt.Errorf("signed url missing from response")
	}

	return fmt.Sprintf("%s/storage/v1%s", s.baseURL, response.SignedURL), nil
}

func (s *SupabaseStorage) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

func (s *SupabaseStorage) do(req *http.Request, action string) (int, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("%s: status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.StatusCode, nil
}

func (s *SupabaseStorage) objectPathFromURL(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}

	publicPrefix := "/storage/v1/object/public/" + s.bucket + "/"
	objectPrefix := "/storage/v1/object/" + s.bucket + "/"

	switch {
	case strings.HasPrefix(parsed.Path, publicPrefix):
		return strings.TrimPrefix(parsed.Path, publicPrefix), nil
	case strings.HasPrefix(parsed.Path, objectPrefix):
		return strings.TrimPrefix(parsed.Path, objectPrefix), nil
	default:
		return "", fmt.Errorf("file url does not belong to configured bucket")
	}
}

// AttachmentService stores chat files and posts them as attachment messages.
type AttachmentService struct {
	chat    *ChatService
	objects ObjectStore
	log     zerolog.Logger
}

func NewAttachmentService(chat *ChatService, objects ObjectStore, log zerolog.Logger) *AttachmentService {
	return &AttachmentService{chat: chat, objects: objects, log: log.With().Str("service", "attachments").Logger()}
}

type AttachmentInput struct {
	ConversationID int64
	Filename       string
	Content        io.Reader
	ClientKey      *string
}

func (s *AttachmentService) Upload(ctx context.Context, caller auth.Caller, input AttachmentInput) (*SendResult, error) {
	if s.objects == nil {
		return nil, ErrStorageUnavailable
	}
	conversation, err := s.chat.authorize(ctx, s.chat.store.read(), caller, input.ConversationID)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(input.Content, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(content) == 0 {
		return nil, invalidInput("attachment is empty")
	}
	if len(content) > maxAttachmentBytes {
		return nil, invalidInput("attachment exceeds 10MB")
	}
	contentType := http.DetectContentType(content)
	if !allowedAttachmentTypes[contentType] {
		return nil, invalidInput("unsupported attachment type " + contentType)
	}

	ext := strings.ToLower(filepath.Ext(input.Filename))
	objectPath := path.Join("conversations", strconv.FormatInt(conversation.ID, 10), uuid.NewString()+ext)
	fileURL, err := s.objects.Upload(ctx, objectPath, contentType, content)
	if err != nil {
		return nil, externalFailure(err)
	}

	result, err := s.chat.SendMessage(ctx, caller, SendMessageInput{
		ConversationID: conversation.ID,
		Body:           fileURL,
		Kind:           models.MessageKindAttachment,
		ClientKey:      input.ClientKey,
	})
	if err != nil {
		if delErr := s.objects.Delete(ctx, fileURL); delErr != nil {
			s.log.Warn().Err(delErr).Str("url", fileURL).Msg("orphaned attachment not removed")
		}
		return nil, err
	}
	return result, nil
}

// SignedURL returns a short-lived link for an attachment in a conversation the caller can read.
func (s *AttachmentService) SignedURL(ctx context.Context, caller auth.Caller, conversationID int64, fileURL string) (string, error) {
	if s.objects == nil {
		return "", ErrStorageUnavailable
	}
	if _, err := s.chat.authorize(ctx, s.chat.store.read(), caller, conversationID); err != nil {
		return "", err
	}
	prefix := "/conversations/" + strconv.FormatInt(conversationID, 10) + "/"
	if !strings.Contains(fileURL, prefix) {
		return "", ErrForbidden
	}
	signed, err := s.objects.SignedURL(ctx, fileURL, time.Hour)
	if err != nil {
		return "", externalFailure(err)
	}
	return signed, nil
}
