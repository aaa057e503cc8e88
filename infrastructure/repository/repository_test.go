package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndFindPoll(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)

	due := testutil.Epoch.Add(48 * time.Hour)
	poll := testutil.CreatePoll(t, repo, entities.ModeLimited, []string{"Pizza", "Sushi"},
		testutil.WithVoteLimit(2),
		testutil.Modify(func(p *entities.Poll) { p.SetDueDate(due, testutil.Epoch) }),
	)
	require.NotZero(t, poll.ID)

	found, err := repo.FindPollByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.UUID, found.UUID)
	assert.Equal(t, entities.ModeLimited, found.Mode)
	assert.Equal(t, 2, found.VoteLimit)
	assert.True(t, found.ResultsVisible)
	require.NotNil(t, found.DueDate)
	assert.True(t, due.Equal(*found.DueDate))
	require.Len(t, found.Options, 2)
	assert.Equal(t, "Sushi", found.Options[1].Name)
	assert.Equal(t, 1, found.Options[1].Index)

	byUUID, err := repo.FindPollByUUID(ctx, poll.UUID)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, byUUID.ID)

	_, err = repo.FindPollByID(ctx, poll.ID+100)
	assert.ErrorIs(t, err, services.ErrNotFound)
	var notFound services.PollNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestUpdatePoll(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	poll.Close()
	poll.MakeAnonymous()
	require.NoError(t, repo.UpdatePoll(ctx, poll))

	found, err := repo.FindPollByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.True(t, found.Closed)
	assert.True(t, found.Anonymous)

	poll.ID = 999
	assert.ErrorIs(t, repo.UpdatePoll(ctx, poll), services.ErrNotFound)
}

func TestMarkPermanentlySummarized_TouchesOnlyTheFlag(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	closed := poll
	closed.Close()
	require.NoError(t, repo.UpdatePoll(ctx, closed))
	require.NoError(t, repo.MarkPermanentlySummarized(ctx, poll.ID))

	found, err := repo.FindPollByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.True(t, found.PermanentlySummarized)
	assert.True(t, found.Closed)
}

func TestMarkNotified(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	subscription := entities.Notification{PollID: poll.ID, ChatID: "C1", CreatedAt: testutil.Epoch}
	require.NoError(t, repo.SaveNotification(ctx, &subscription))

	step := testutil.Epoch.Add(24 * time.Hour)
	require.NoError(t, repo.MarkNotified(ctx, subscription.ID, step))

	found, err := repo.GetNotifications(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Notified(step))
	assert.False(t, found[0].Notified(step.Add(time.Hour)))
}

func TestAddOption_DuplicateIndex(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	option := entities.Option{PollID: poll.ID, Index: 1, Name: "C"}
	assert.ErrorIs(t, repo.AddOption(ctx, &option), services.ErrConflict)

	option.Index = 2
	require.NoError(t, repo.AddOption(ctx, &option))
	found, err := repo.FindOptionByID(ctx, option.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", found.Name)
}

func TestVotes(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	testutil.CreateUser(t, repo, "u1")
	poll := testutil.CreatePoll(t, repo, entities.ModeDoodle, []string{"Mon", "Tue"})

	vote := entities.NewVote("u1", poll.ID, poll.Options[0].ID)
	vote.Answer = entities.AnswerMaybe
	require.NoError(t, repo.SaveVote(ctx, &vote))

	duplicate := entities.NewVote("u1", poll.ID, poll.Options[0].ID)
	assert.ErrorIs(t, repo.SaveVote(ctx, &duplicate), services.ErrConflict)

	votes, err := repo.GetAllVotes(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "User u1", votes[0].UserName)
	assert.Equal(t, entities.AnswerMaybe, votes[0].Answer)
	assert.Nil(t, votes[0].Priority)

	vote.Answer = entities.AnswerYes
	require.NoError(t, repo.UpdateVote(ctx, vote))
	require.NoError(t, repo.UpdateVote(ctx, vote), "an unchanged row still counts as found")

	userVotes, err := repo.GetUserVotes(ctx, poll.ID, "u1", true)
	require.NoError(t, err)
	require.Len(t, userVotes, 1)
	assert.Equal(t, entities.AnswerYes, userVotes[0].Answer)

	require.NoError(t, repo.DeleteVote(ctx, vote.ID))
	assert.ErrorIs(t, repo.DeleteVote(ctx, vote.ID), services.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateVote(ctx, vote), services.ErrNotFound)
}

func TestVotes_PriorityUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	testutil.CreateUser(t, repo, "u1")
	poll := testutil.CreatePoll(t, repo, entities.ModePriority, []string{"A", "B"})

	first := entities.NewVote("u1", poll.ID, poll.Options[0].ID)
	first.SetPriority(0)
	require.NoError(t, repo.SaveVote(ctx, &first))

	second := entities.NewVote("u1", poll.ID, poll.Options[1].ID)
	second.SetPriority(0)
	assert.ErrorIs(t, repo.SaveVote(ctx, &second), services.ErrConflict)
}

func TestVote_UnknownUserIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	vote := entities.NewVote("ghost", poll.ID, poll.Options[0].ID)
	assert.ErrorIs(t, repo.SaveVote(ctx, &vote), services.ErrNotFound)
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	testutil.CreateUser(t, repo, "u1")
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(q services.Queries) error {
		vote := entities.NewVote("u1", poll.ID, poll.Options[0].ID)
		if err := q.SaveVote(ctx, &vote); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	votes, err := repo.GetAllVotes(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestReferences(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})

	admin := testutil.AttachMirror(t, repo, poll, entities.ReferenceAdmin, "owner", "1")
	inline := entities.NewReference(poll.ID, entities.ReferenceInline, testutil.Handle("C1", 7), "someone")
	require.NoError(t, repo.SaveReference(ctx, &inline))
	assert.Empty(t, inline.UserID)

	again := entities.NewReference(poll.ID, entities.ReferenceAdmin, admin.Handle, "owner")
	assert.ErrorIs(t, repo.SaveReference(ctx, &again), services.ErrConflict)

	found, err := repo.FindReferenceByHandle(ctx, entities.MessageHandle{InlineID: "C1/7"})
	require.NoError(t, err)
	assert.Equal(t, inline.ID, found.ID)
	assert.Equal(t, entities.ReferenceInline, found.Kind)

	found.Failures = 1
	found.RenderedHash = "abc"
	require.NoError(t, repo.UpdateReference(ctx, found))

	refs, err := repo.GetReferences(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, admin.ID, refs[0].ID)
	assert.Equal(t, 1, refs[1].Failures)
	assert.Equal(t, "abc", refs[1].RenderedHash)

	require.NoError(t, repo.DeleteReference(ctx, admin.ID))
	require.NoError(t, repo.DeleteReference(ctx, admin.ID))
	_, err = repo.FindReferenceByHandle(ctx, admin.Handle)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	now := testutil.Epoch

	update := entities.Update{PollID: poll.ID, NextUpdateAt: now, CreatedAt: now}
	require.NoError(t, repo.SaveUpdate(ctx, &update))

	second := entities.Update{PollID: poll.ID, NextUpdateAt: now, CreatedAt: now}
	assert.ErrorIs(t, repo.SaveUpdate(ctx, &second), services.ErrConflict)

	require.NoError(t, repo.IncrementUpdate(ctx, update.ID, now.Add(3*time.Second)))
	found, err := repo.FindUpdate(ctx, poll.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, found.PendingCount)
	assert.True(t, now.Add(3*time.Second).Equal(found.NextUpdateAt))

	due, err := repo.DueUpdates(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.DueUpdates(ctx, now.Add(3*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	deleted, err := repo.DeleteUpdate(ctx, update.ID, 0)
	require.NoError(t, err)
	assert.False(t, deleted, "a ticket that received more events survives")

	deleted, err = repo.DeleteUpdate(ctx, update.ID, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.ErrorIs(t, repo.IncrementUpdate(ctx, update.ID, now), services.ErrNotFound)
	_, err = repo.FindUpdate(ctx, poll.ID, false)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDueUpdates_OldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	now := testutil.Epoch

	late := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	early := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	require.NoError(t, repo.SaveUpdate(ctx, &entities.Update{PollID: late.ID, NextUpdateAt: now.Add(500 * time.Millisecond), CreatedAt: now}))
	require.NoError(t, repo.SaveUpdate(ctx, &entities.Update{PollID: early.ID, NextUpdateAt: now, CreatedAt: now}))

	due, err := repo.DueUpdates(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].PollID)
	assert.Equal(t, late.ID, due[1].PollID)
}

func TestPruneUpdates(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	now := testutil.Epoch

	old := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	fresh := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	require.NoError(t, repo.SaveUpdate(ctx, &entities.Update{PollID: old.ID, NextUpdateAt: now, CreatedAt: now.Add(-96 * time.Hour)}))
	require.NoError(t, repo.SaveUpdate(ctx, &entities.Update{PollID: fresh.ID, NextUpdateAt: now, CreatedAt: now}))

	n, err := repo.PruneUpdates(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindUpdate(ctx, fresh.ID, false)
	assert.NoError(t, err)
}

func TestDeletePoll_Cascades(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	testutil.CreateUser(t, repo, "u1")
	poll := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"})
	testutil.CreateVote(t, repo, poll, "u1", 0)
	testutil.AttachMirror(t, repo, poll, entities.ReferenceAdmin, "owner", "1")
	require.NoError(t, repo.SaveUpdate(ctx, &entities.Update{PollID: poll.ID, NextUpdateAt: testutil.Epoch, CreatedAt: testutil.Epoch}))
	require.NoError(t, repo.SaveNotification(ctx, &entities.Notification{PollID: poll.ID, ChatID: "C1"}))

	require.NoError(t, repo.DeletePoll(ctx, poll.ID))

	votes, err := repo.GetAllVotes(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
	refs, err := repo.GetReferences(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
	notifications, err := repo.GetNotifications(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, notifications)
	_, err = repo.FindUpdate(ctx, poll.ID, false)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestIncrementDailyStatistic(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	testutil.CreateUser(t, repo, "u1")
	day := entities.Day(testutil.Epoch)

	stat, err := repo.IncrementDailyStatistic(ctx, "u1", day, entities.StatisticVotes)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Votes)

	stat, err = repo.IncrementDailyStatistic(ctx, "u1", day, entities.StatisticVotes)
	require.NoError(t, err)
	stat, err = repo.IncrementDailyStatistic(ctx, "u1", day, entities.StatisticCallbacks)
	require.NoError(t, err)
	assert.Equal(t, 2, stat.Votes)
	assert.Equal(t, 1, stat.Callbacks)

	_, err = repo.IncrementDailyStatistic(ctx, "u1", day, entities.StatisticField("drop table"))
	assert.Error(t, err)
}

func TestSaveUser_Upserts(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)

	require.NoError(t, repo.SaveUser(ctx, entities.User{ID: "u1", Name: "Ann"}))
	require.NoError(t, repo.SaveUser(ctx, entities.User{ID: "u1", Name: "Anna", Locale: "de"}))

	user, err := repo.FindUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", user.Name)
	assert.Equal(t, "de", user.Locale)
}

func TestFindPolls(t *testing.T) {
	ctx := context.Background()
	repo := testutil.SetupTestRepository(t)
	now := testutil.Epoch

	lunch := testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"},
		testutil.Modify(func(p *entities.Poll) {
			p.Name = "Lunch"
			p.SetDueDate(now.Add(time.Hour), now)
		}))
	testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"},
		testutil.Modify(func(p *entities.Poll) { p.Name = "Dinner" }))
	testutil.CreatePoll(t, repo, entities.ModeSingle, []string{"A", "B"},
		testutil.Modify(func(p *entities.Poll) {
			p.Name = "Old lunch"
			p.Deleted = true
		}))

	polls, err := repo.FindPollsByOwner(ctx, "owner", "unch", 10)
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, lunch.ID, polls[0].ID)

	due, err := repo.FindPollsDueForNotification(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, lunch.ID, due[0].ID)

	due, err = repo.FindPollsDueForNotification(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}
