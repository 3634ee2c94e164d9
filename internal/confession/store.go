//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_confession_store.go -package=mocks

// Package confession stores anonymous confessions and serves them over HTTP.
package confession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AnonymousUsername is stored when a confession is submitted without a name.
const AnonymousUsername = "Anonymous"

// ErrInvalid marks a submission that failed validation.
var ErrInvalid = errors.New("invalid confession")

// Confession is one stored submission.
type Confession struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ConfessionType string    `json:"confession_type"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists confessions. List returns newest first.
type Store interface {
	Create(ctx context.Context, c Confession) (Confession, error)
	List(ctx context.Context) ([]Confession, error)
	Close() error
}
