// Package pipeline runs the two ingestion passes for a user: fetch copies new
// provider messages into the local store, process transforms pending rows and
// relays them.
package pipeline

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/mailbox"
	"github.com/pysugar/outlook-relay/internal/relay"
	"github.com/pysugar/outlook-relay/internal/transform"
)

var (
	// ErrNoConfig means the user has no stored configuration yet.
	ErrNoConfig = errors.New("user has no configuration")
	// ErrNoRecipient means processing was requested without a relay recipient.
	ErrNoRecipient = errors.New("no relay recipient configured")
)

const defaultPageSize = 100

// TokenSource yields a usable access token for a user, refreshing if needed.
type TokenSource interface {
	Fresh(ctx context.Context, user *models.User) (string, error)
}

// Pipeline holds the collaborators shared by both passes.
type Pipeline struct {
	db          *gorm.DB
	tokens      TokenSource
	mailboxes   mailbox.Factory
	transformer *transform.Transformer
	sender      *relay.Sender
	pageSize    int
	log         logging.Logger
	now         func() time.Time
}

// Options tunes a Pipeline.
type Options struct {
	PageSize int
}

func New(database *gorm.DB, tokens TokenSource, mailboxes mailbox.Factory, transformer *transform.Transformer, sender *relay.Sender, opts Options, log logging.Logger) *Pipeline {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Pipeline{
		db:          database,
		tokens:      tokens,
		mailboxes:   mailboxes,
		transformer: transformer,
		sender:      sender,
		pageSize:    pageSize,
		log:         log.WithComponent("pipeline"),
		now:         time.Now,
	}
}

// mailboxFor opens the user's mailbox with a fresh token.
func (p *Pipeline) mailboxFor(ctx context.Context, user *models.User) (mailbox.Mailbox, error) {
	tok, err := p.tokens.Fresh(ctx, user)
	if err != nil {
		return nil, err
	}
	return p.mailboxes(user.Email, tok), nil
}
