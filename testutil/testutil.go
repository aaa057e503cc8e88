// Package testutil holds fixtures shared by package tests: a migrated sqlite
// store, entity builders, a scriptable transport and a manual clock.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/CedricFinance/paulpoll/database"
	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/infrastructure/repository"
)

// Epoch is the starting time of every test Clock.
var Epoch = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

// SetupTestDB creates a fresh sqlite database with the full schema.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.SQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "paul.db")))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func SetupTestRepository(t *testing.T) services.Repository {
	t.Helper()
	return repository.New(SetupTestDB(t), database.SQLite)
}

// CreateUser stores a user named after its id.
func CreateUser(t *testing.T, repo services.Repository, id string) entities.User {
	t.Helper()

	user := entities.User{ID: id, Name: "User " + id, Locale: "en", CreatedAt: Epoch}
	if err := repo.SaveUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", id, err)
	}
	return user
}

// PollOption customises a poll before CreatePoll stores it.
type PollOption func(p *entities.Poll)

func WithVoteLimit(n int) PollOption {
	return func(p *entities.Poll) { p.VoteLimit = n }
}

func WithOwner(ownerID string) PollOption {
	return func(p *entities.Poll) { p.OwnerID = ownerID }
}

func Anonymous() PollOption {
	return func(p *entities.Poll) { p.Anonymous = true }
}

func HiddenResults() PollOption {
	return func(p *entities.Poll) { p.ResultsVisible = false }
}

func Closed() PollOption {
	return func(p *entities.Poll) { p.Closed = true }
}

func Modify(fn func(p *entities.Poll)) PollOption {
	return fn
}

// CreatePoll stores a created poll owned by "owner" with the given options.
func CreatePoll(t *testing.T, repo services.Repository, mode entities.VotingMode, options []string, opts ...PollOption) entities.Poll {
	t.Helper()

	poll := entities.NewPoll("What for lunch?", options, "owner")
	poll.Mode = mode
	poll.Created = true
	poll.CreatedAt = Epoch
	for _, opt := range opts {
		opt(&poll)
	}

	if err := repo.SaveUser(context.Background(), entities.User{ID: poll.OwnerID, Name: "Owner", Locale: "en"}); err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	if err := repo.SavePoll(context.Background(), &poll); err != nil {
		t.Fatalf("Failed to create poll: %v", err)
	}
	return poll
}

// CreateVote stores a raw vote row, bypassing the resolver.
func CreateVote(t *testing.T, repo services.Repository, poll entities.Poll, userID string, optionIndex int) entities.Vote {
	t.Helper()

	vote := entities.NewVote(userID, poll.ID, poll.Options[optionIndex].ID)
	vote.CreatedAt = Epoch
	if err := repo.SaveVote(context.Background(), &vote); err != nil {
		t.Fatalf("Failed to create vote: %v", err)
	}
	return vote
}

// AttachMirror registers a chat addressed mirror for poll.
func AttachMirror(t *testing.T, repo services.Repository, poll entities.Poll, kind entities.ReferenceKind, chatID string, messageID string) entities.Reference {
	t.Helper()

	ref := entities.NewReference(poll.ID, kind, entities.MessageHandle{ChatID: chatID, MessageID: messageID}, chatID)
	ref.CreatedAt = Epoch
	if err := repo.SaveReference(context.Background(), &ref); err != nil {
		t.Fatalf("Failed to attach mirror: %v", err)
	}
	return ref
}

// Handle builds a chat addressed handle.
func Handle(chatID string, messageID int) entities.MessageHandle {
	return entities.MessageHandle{ChatID: chatID, MessageID: fmt.Sprint(messageID)}
}
