package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"invoicechat/internal/ai"
	"invoicechat/internal/model"
)

const genericMIME = "application/octet-stream"

// Column bounds of users.id and interactions.content.
const (
	MaxUserIDLength = 64
	MaxMessageBytes = 32 << 10
)

type DocumentServiceOptions struct {
	MaxFileBytes   int64
	AllowedTypes   []string
	IncludeHistory bool
	MaxHistory     int
}

type DocumentService struct {
	documents    DocumentStore
	interactions InteractionStore
	extractor    ai.TextExtractor
	answerer     ai.Answerer
	cache        DocumentCache
	publisher    EventPublisher
	opts         DocumentServiceOptions

	now   func() time.Time
	newID func() string
}

type UploadInput struct {
	UserID      string
	FileName    string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	DocumentID    string `json:"documentId"`
	ExtractedText string `json:"extractedText"`
}

type ChatInput struct {
	DocumentID string
	Message    string
	// ViewerID restricts access to the owner when set.
	ViewerID string
}

type ChatResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewDocumentService wires the document lifecycle. cache and publisher are
// optional and may be nil.
func NewDocumentService(
	documents DocumentStore,
	interactions InteractionStore,
	extractor ai.TextExtractor,
	answerer ai.Answerer,
	cache DocumentCache,
	publisher EventPublisher,
	opts DocumentServiceOptions,
) *DocumentService {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 20
	}
	return &DocumentService{
		documents:    documents,
		interactions: interactions,
		extractor:    extractor,
		answerer:     answerer,
		cache:        cache,
		publisher:    publisher,
		opts:         opts,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if len(input.Data) == 0 {
		return nil, ErrFileRequired
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if len(userID) > MaxUserIDLength {
		return nil, ErrUserIDTooLong
	}
	if s.opts.MaxFileBytes > 0 && int64(len(input.Data)) > s.opts.MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	mimeType := detectMIME(input.ContentType, input.Data)
	if len(s.opts.AllowedTypes) > 0 && !mimetype.EqualsAny(mimeType, s.opts.AllowedTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, mimeType)
	}

	text, err := s.extractor.ExtractText(ctx, input.Data, mimeType)
	if err != nil {
		return nil, oracleError(err)
	}

	doc := &model.Document{
		ID:            s.newID(),
		Title:         input.FileName,
		ExtractedText: text,
		FileURL:       "",
	}
	owner := &model.User{
		ID:    userID,
		Email: fmt.Sprintf("test-%d@example.com", s.now().UnixNano()),
	}
	if err := s.documents.CreateWithOwner(ctx, owner, doc); err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventDocumentUploaded, doc.ID, doc.UserID)
	return &UploadResult{DocumentID: doc.ID, ExtractedText: text}, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	return s.documents.ListSummariesByUserID(ctx, userID)
}

// Get returns the document with its interactions in chronological order.
// viewerID, when non-empty, must match the owner.
func (s *DocumentService) Get(ctx context.Context, id, viewerID string) (*model.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrDocumentNotFound
	}

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || (viewerID != "" && doc.UserID != viewerID) {
		return nil, ErrDocumentNotFound
	}
	if doc.Interactions == nil {
		doc.Interactions = make([]model.Interaction, 0)
	}
	return doc, nil
}

func (s *DocumentService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	doc, err := s.documents.GetWithInteractions(ctx, strings.TrimSpace(input.DocumentID))
	if err != nil {
		return nil, err
	}
	if doc == nil || (input.ViewerID != "" && doc.UserID != input.ViewerID) {
		return nil, ErrDocumentNotFound
	}
	if strings.TrimSpace(doc.ExtractedText) == "" {
		return nil, ErrNoExtractedText
	}

	question := input.Message
	if strings.TrimSpace(question) == "" {
		return nil, ErrMessageEmpty
	}
	if len(question) > MaxMessageBytes {
		return nil, ErrMessageTooLong
	}

	req := ai.AnswerRequest{Context: doc.ExtractedText, Question: question}
	if s.opts.IncludeHistory {
		req.History = recentTurns(doc.Interactions, s.opts.MaxHistory)
	}
	answer, err := s.answerer.Answer(ctx, req)
	if err != nil {
		return nil, oracleError(err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: %w", ErrOracleFailed, ai.ErrEmptyResponse)
	}

	if s.cache != nil {
		if err := s.cache.MarkDirty(ctx, doc.ID); err != nil {
			slog.WarnContext(ctx, "document_cache_mark_dirty_failed", "document_id", doc.ID, "error", err)
		}
	}
	userTurn := &model.Interaction{DocumentID: doc.ID, Role: model.RoleUser, Content: question}
	assistantTurn := &model.Interaction{DocumentID: doc.ID, Role: model.RoleAssistant, Content: answer}
	if err := s.interactions.CreateTurn(ctx, userTurn, assistantTurn); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.DeleteDocument(ctx, doc.ID); err != nil {
			slog.WarnContext(ctx, "document_cache_invalidate_failed", "document_id", doc.ID, "error", err)
		}
	}

	s.publish(ctx, model.EventTurnRecorded, doc.ID, doc.UserID)
	return &ChatResult{Question: question, Answer: answer}, nil
}

func (s *DocumentService) loadDocument(ctx context.Context, id string) (*model.Document, error) {
	if s.cache == nil {
		return s.documents.GetWithInteractions(ctx, id)
	}

	dirty, err := s.cache.IsDirty(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "document_cache_dirty_check_failed", "document_id", id, "error", err)
		dirty = true
	}
	if !dirty {
		cached, ok, err := s.cache.GetDocument(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "document_cache_get_failed", "document_id", id, "error", err)
		}
		if ok {
			return cached, nil
		}
	}

	doc, err := s.documents.GetWithInteractions(ctx, id)
	if err != nil || doc == nil {
		return doc, err
	}
	if dirty {
		return doc, nil
	}
	// A chat turn may have committed while the row was loading.
	if dirty, err := s.cache.IsDirty(ctx, id); err != nil || dirty {
		return doc, nil
	}
	if _, err := s.cache.FillIfClean(ctx, doc); err != nil {
		slog.WarnContext(ctx, "document_cache_fill_failed", "document_id", id, "error", err)
	}
	return doc, nil
}

func (s *DocumentService) publish(ctx context.Context, eventType, documentID, userID string) {
	if s.publisher == nil {
		return
	}
	ev := model.DocumentEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		DocumentID: documentID,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "document_event_publish_failed", "type", eventType, "document_id", documentID, "error", err)
	}
}

func detectMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != genericMIME {
		return declared
	}
	detected := mimetype.Detect(data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	return detected
}

func recentTurns(interactions []model.Interaction, limit int) []ai.HistoryTurn {
	if len(interactions) > limit {
		interactions = interactions[len(interactions)-limit:]
	}
	turns := make([]ai.HistoryTurn, 0, len(interactions))
	for _, it := range interactions {
		turns = append(turns, ai.HistoryTurn{Role: it.Role, Content: it.Content})
	}
	return turns
}

func oracleError(err error) error {
	if errors.Is(err, ai.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrOracleFailed, err)
}
