package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"invoicechat/internal/ai"
	"invoicechat/internal/app/memstore"
	"invoicechat/internal/model"
)

type stubOracle struct {
	mu          sync.Mutex
	text        string
	answer      string
	extractErr  error
	answerErr   error
	lastMIME    string
	lastRequest ai.AnswerRequest
	answerCalls int
}

func (o *stubOracle) ExtractText(_ context.Context, _ []byte, mimeType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastMIME = mimeType
	return o.text, o.extractErr
}

func (o *stubOracle) Answer(_ context.Context, req ai.AnswerRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answerCalls++
	o.lastRequest = req
	if o.answerErr != nil {
		return "", o.answerErr
	}
	return o.answer, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DocumentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.DocumentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type mapCache struct {
	docs    map[string]*model.Document
	dirty   map[string]bool
	deletes int
	fills   int
}

func newMapCache() *mapCache {
	return &mapCache{docs: map[string]*model.Document{}, dirty: map[string]bool{}}
}

func (c *mapCache) GetDocument(_ context.Context, id string) (*model.Document, bool, error) {
	doc, ok := c.docs[id]
	return doc, ok, nil
}

func (c *mapCache) FillIfClean(_ context.Context, doc *model.Document) (bool, error) {
	if c.dirty[doc.ID] {
		return false, nil
	}
	copied := *doc
	c.docs[doc.ID] = &copied
	c.fills++
	return true, nil
}

func (c *mapCache) DeleteDocument(_ context.Context, id string) error {
	c.deletes++
	delete(c.docs, id)
	return nil
}

func (c *mapCache) MarkDirty(_ context.Context, id string) error {
	c.dirty[id] = true
	return nil
}

func (c *mapCache) IsDirty(_ context.Context, id string) (bool, error) {
	return c.dirty[id], nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestService(store *memstore.Store, oracle *stubOracle, opts DocumentServiceOptions) *DocumentService {
	return NewDocumentService(store, store, oracle, oracle, nil, nil, opts)
}

func upload(t *testing.T, svc *DocumentService, userID string) *UploadResult {
	t.Helper()
	res, err := svc.Upload(context.Background(), UploadInput{
		UserID:      userID,
		FileName:    "invoice.png",
		ContentType: "image/png",
		Data:        pngHeader,
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return res
}

func TestUploadReusesExistingUser(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, &stubOracle{text: "Invoice #123"}, DocumentServiceOptions{})

	first := upload(t, svc, "user-1")
	second := upload(t, svc, "user-1")

	if first.DocumentID == second.DocumentID {
		t.Fatalf("expected distinct document ids")
	}
	if store.UserCount() != 1 {
		t.Fatalf("expected exactly 1 user, got %d", store.UserCount())
	}
	list, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected both documents under the same owner, got %d", len(list))
	}
}

func TestUploadRejectsMissingInput(t *testing.T) {
	svc := newTestService(memstore.New(), &stubOracle{}, DocumentServiceOptions{MaxFileBytes: 8})

	tests := []struct {
		name  string
		input UploadInput
		want  error
	}{
		{name: "no file", input: UploadInput{UserID: "u"}, want: ErrFileRequired},
		{name: "no user", input: UploadInput{Data: []byte("x")}, want: ErrUserRequired},
		{name: "user id too long", input: UploadInput{UserID: strings.Repeat("u", MaxUserIDLength+1), Data: []byte("x")}, want: ErrUserIDTooLong},
		{name: "too large", input: UploadInput{UserID: "u", Data: pngHeader}, want: ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Upload(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUploadSniffsGenericContentType(t *testing.T) {
	oracle := &stubOracle{text: "ok"}
	svc := newTestService(memstore.New(), oracle, DocumentServiceOptions{AllowedTypes: []string{"image/png"}})

	_, err := svc.Upload(context.Background(), UploadInput{
		UserID:      "u",
		FileName:    "scan",
		ContentType: "application/octet-stream",
		Data:        pngHeader,
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if oracle.lastMIME != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", oracle.lastMIME)
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	svc := newTestService(memstore.New(), &stubOracle{}, DocumentServiceOptions{AllowedTypes: []string{"image/png"}})

	_, err := svc.Upload(context.Background(), UploadInput{UserID: "u", FileName: "a.txt", ContentType: "text/plain", Data: []byte("hello")})
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestUploadPersistsNothingWhenExtractionFails(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, &stubOracle{extractErr: errors.New("model exploded")}, DocumentServiceOptions{})

	_, err := svc.Upload(context.Background(), UploadInput{UserID: "u", FileName: "a.png", ContentType: "image/png", Data: pngHeader})
	if !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed, got %v", err)
	}
	if store.UserCount() != 0 {
		t.Fatalf("failed extraction must not create a user")
	}
}

func TestListRequiresUserID(t *testing.T) {
	svc := newTestService(memstore.New(), &stubOracle{}, DocumentServiceOptions{})
	if _, err := svc.List(context.Background(), " "); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestChatRecordsTurnsInOrder(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123, Total: $50", answer: "$50"}
	svc := newTestService(store, oracle, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	const turns = 3
	for i := 0; i < turns; i++ {
		if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "What is the total?"}); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	got, err := svc.Get(context.Background(), doc.DocumentID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Interactions) != 2*turns {
		t.Fatalf("expected %d interactions, got %d", 2*turns, len(got.Interactions))
	}
	for i, it := range got.Interactions {
		wantRole := model.RoleUser
		if i%2 == 1 {
			wantRole = model.RoleAssistant
		}
		if it.Role != wantRole {
			t.Fatalf("interaction %d: expected role %s, got %s", i, wantRole, it.Role)
		}
		if i > 0 && it.CreatedAt.Before(got.Interactions[i-1].CreatedAt) {
			t.Fatalf("interaction %d is older than its predecessor", i)
		}
	}
	if len(oracle.lastRequest.History) != 0 {
		t.Fatalf("answering must be stateless by default")
	}
}

func TestChatWritesNothingWhenOracleFails(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123"}
	svc := newTestService(store, oracle, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	oracle.answerErr = errors.New("upstream timeout")
	before := store.InteractionCount(doc.DocumentID)
	_, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "What is the total?"})
	if !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed, got %v", err)
	}
	if after := store.InteractionCount(doc.DocumentID); after != before {
		t.Fatalf("interaction count changed from %d to %d", before, after)
	}
}

func TestChatTreatsEmptyAnswerAsOracleFailure(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, &stubOracle{text: "Invoice #123", answer: "   "}, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	_, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "q"})
	if !errors.Is(err, ErrOracleFailed) || !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected empty response oracle failure, got %v", err)
	}
	if store.InteractionCount(doc.DocumentID) != 0 {
		t.Fatalf("empty answer must not be recorded")
	}
}

func TestChatMapsUnavailableOracle(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123"}
	svc := newTestService(store, oracle, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	oracle.answerErr = ai.ErrUnavailable
	if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "q"}); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestChatRequiresExtractedText(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "", answer: "should not be asked"}
	svc := newTestService(store, oracle, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	for i := 0; i < 3; i++ {
		_, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "What is the total?"})
		if !errors.Is(err, ErrNoExtractedText) {
			t.Fatalf("expected ErrNoExtractedText, got %v", err)
		}
	}
	if store.InteractionCount(doc.DocumentID) != 0 {
		t.Fatalf("expected zero interactions")
	}
	if oracle.answerCalls != 0 {
		t.Fatalf("oracle must not be called without extracted text")
	}
}

func TestChatValidatesMessageAndDocument(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	svc := newTestService(store, oracle, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	tests := []struct {
		name  string
		input ChatInput
		want  error
	}{
		{name: "unknown document", input: ChatInput{DocumentID: "does-not-exist", Message: "hi"}, want: ErrDocumentNotFound},
		{name: "unknown document with empty message", input: ChatInput{DocumentID: "does-not-exist"}, want: ErrDocumentNotFound},
		{name: "blank message", input: ChatInput{DocumentID: doc.DocumentID, Message: "  "}, want: ErrMessageEmpty},
		{name: "oversized message", input: ChatInput{DocumentID: doc.DocumentID, Message: strings.Repeat("a", MaxMessageBytes+1)}, want: ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Chat(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if oracle.answerCalls != 0 || store.InteractionCount(doc.DocumentID) != 0 {
		t.Fatalf("rejected chats must not reach the oracle or the store")
	}
}

func TestChatStoresQuestionAsSent(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, &stubOracle{text: "Invoice #123", answer: "$50"}, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	const question = "  What is the total?\n"
	res, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: question})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Question != question {
		t.Fatalf("expected question echoed verbatim, got %q", res.Question)
	}
	got, err := svc.Get(context.Background(), doc.DocumentID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Interactions[0].Content != question {
		t.Fatalf("expected stored question verbatim, got %q", got.Interactions[0].Content)
	}
}

func TestChatFoldsHistoryWhenEnabled(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	svc := newTestService(store, oracle, DocumentServiceOptions{IncludeHistory: true, MaxHistory: 2})
	doc := upload(t, svc, "user-1")

	for _, q := range []string{"first?", "second?", "third?"} {
		if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: q}); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	history := oracle.lastRequest.History
	if len(history) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(history))
	}
	if history[0].Role != model.RoleUser || history[0].Content != "second?" {
		t.Fatalf("expected the latest turn, got %+v", history)
	}
}

func TestGetHidesForeignDocumentsFromViewer(t *testing.T) {
	svc := newTestService(memstore.New(), &stubOracle{text: "t"}, DocumentServiceOptions{})
	doc := upload(t, svc, "owner")

	if _, err := svc.Get(context.Background(), doc.DocumentID, "intruder"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), doc.DocumentID, "owner"); err != nil {
		t.Fatalf("owner should see the document, got %v", err)
	}
}

func TestGetNeverServesStaleCacheAfterChat(t *testing.T) {
	store := memstore.New()
	cache := newMapCache()
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	svc := NewDocumentService(store, store, oracle, oracle, cache, nil, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	if _, err := svc.Get(context.Background(), doc.DocumentID, ""); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := cache.docs[doc.DocumentID]; !ok {
		t.Fatalf("expected read-through fill")
	}

	if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "What is the total?"}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if cache.deletes == 0 || !cache.dirty[doc.DocumentID] {
		t.Fatalf("chat must mark dirty and invalidate the cache")
	}

	got, err := svc.Get(context.Background(), doc.DocumentID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Interactions) != 2 {
		t.Fatalf("expected fresh interactions, got %d", len(got.Interactions))
	}
}

// racingStore runs onLoad between reading a snapshot and returning it, the
// way a concurrent chat commit lands while a reader is still loading.
type racingStore struct {
	*memstore.Store
	onLoad func()
}

func (s *racingStore) GetWithInteractions(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.Store.GetWithInteractions(ctx, id)
	if hook := s.onLoad; hook != nil {
		s.onLoad = nil
		hook()
	}
	return doc, err
}

func TestGetDoesNotRefillCacheWithSnapshotOlderThanChat(t *testing.T) {
	store := memstore.New()
	racing := &racingStore{Store: store}
	cache := newMapCache()
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	svc := NewDocumentService(racing, store, oracle, oracle, cache, nil, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	racing.onLoad = func() {
		if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "What is the total?"}); err != nil {
			t.Errorf("Chat() error = %v", err)
		}
	}
	stale, err := svc.Get(context.Background(), doc.DocumentID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(stale.Interactions) != 0 {
		t.Fatalf("expected the pre-chat snapshot from the racing read, got %d", len(stale.Interactions))
	}
	if cache.fills != 0 {
		t.Fatalf("a snapshot loaded before the chat commit must not be cached")
	}

	delete(cache.dirty, doc.DocumentID)
	got, err := svc.Get(context.Background(), doc.DocumentID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Interactions) != 2 {
		t.Fatalf("expected 2 interactions after the marker expired, got %d", len(got.Interactions))
	}
}

func TestGetSkipsRefillWhenDirtyMarkerAppearsDuringLoad(t *testing.T) {
	store := memstore.New()
	racing := &racingStore{Store: store}
	cache := &refusingCache{mapCache: newMapCache()}
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	svc := NewDocumentService(racing, store, oracle, oracle, cache, nil, DocumentServiceOptions{})
	doc := upload(t, svc, "user-1")

	racing.onLoad = func() { cache.dirty[doc.DocumentID] = true }
	if _, err := svc.Get(context.Background(), doc.DocumentID, ""); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cache.fillAttempts != 0 {
		t.Fatalf("expected no fill attempt once the marker is set, got %d", cache.fillAttempts)
	}
}

// refusingCache counts fill attempts regardless of the dirty marker.
type refusingCache struct {
	*mapCache
	fillAttempts int
}

func (c *refusingCache) FillIfClean(ctx context.Context, doc *model.Document) (bool, error) {
	c.fillAttempts++
	return c.mapCache.FillIfClean(ctx, doc)
}

func TestPublishesEventsBestEffort(t *testing.T) {
	store := memstore.New()
	oracle := &stubOracle{text: "Invoice #123", answer: "$50"}
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := NewDocumentService(store, store, oracle, oracle, nil, publisher, DocumentServiceOptions{})

	doc := upload(t, svc, "user-1")
	if _, err := svc.Chat(context.Background(), ChatInput{DocumentID: doc.DocumentID, Message: "q"}); err != nil {
		t.Fatalf("publish failure must not fail the chat: %v", err)
	}

	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.events))
	}
	if publisher.events[0].Type != model.EventDocumentUploaded || publisher.events[1].Type != model.EventTurnRecorded {
		t.Fatalf("unexpected event types %+v", publisher.events)
	}
	if publisher.events[1].UserID != "user-1" || strings.TrimSpace(publisher.events[1].EventID) == "" {
		t.Fatalf("unexpected event payload %+v", publisher.events[1])
	}
}
