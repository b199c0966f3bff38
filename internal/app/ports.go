package app

import (
	"context"

	"invoicechat/internal/model"
)

type DocumentStore interface {
	CreateWithOwner(ctx context.Context, owner *model.User, doc *model.Document) error
	GetWithInteractions(ctx context.Context, id string) (*model.Document, error)
	ListSummariesByUserID(ctx context.Context, userID string) ([]model.DocumentSummary, error)
}

type InteractionStore interface {
	CreateTurn(ctx context.Context, question, answer *model.Interaction) error
}

// DocumentCache holds document detail snapshots. A set dirty marker means a
// chat write is in flight and the snapshot must not be trusted or refilled.
type DocumentCache interface {
	GetDocument(ctx context.Context, id string) (*model.Document, bool, error)
	FillIfClean(ctx context.Context, doc *model.Document) (bool, error)
	DeleteDocument(ctx context.Context, id string) error
	MarkDirty(ctx context.Context, id string) error
	IsDirty(ctx context.Context, id string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev model.DocumentEvent) error
}
