package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NitroDevv/tgbot/internal/model"
)

func TestAdminTopUpNotifiesUser(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	admin := NewAdminService(store, ledger)
	notifier := newRecordingNotifier()
	admin.SetNotifier(notifier)
	ctx := context.Background()

	balance, err := admin.TopUp(ctx, 5, 1500)
	require.NoError(t, err)
	require.Equal(t, 1500.0, balance)
	require.Equal(t, 1, notifier.count(5))

	txs := store.Transactions()
	require.Len(t, txs, 1)
	require.Equal(t, model.TransactionTypeAdminTopUp, txs[0].Type)
}

func TestBroadcastCountsOutcomes(t *testing.T) {
	store := NewMemoryStore()
	admin := NewAdminService(store, NewLedgerService(store))
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, store.CreateUser(ctx, &model.User{ID: id, ReferralCode: model.ReferralCodeFor(id)}))
	}

	notifier := &selectiveNotifier{failFor: map[int64]bool{2: true}}
	admin.SetNotifier(notifier)

	res, err := admin.Broadcast(ctx, "yangilik")
	require.NoError(t, err)
	require.Equal(t, 2, res.Sent)
	require.Equal(t, 1, res.Failed)
}

type selectiveNotifier struct {
	failFor map[int64]bool
}

func (n *selectiveNotifier) SendMessage(userID int64, _ string) error {
	if n.failFor[userID] {
		return errors.New("blocked")
	}
	return nil
}

func TestAddTemplateValidation(t *testing.T) {
	store := NewMemoryStore()
	admin := NewAdminService(store, NewLedgerService(store))
	ctx := context.Background()

	err := admin.AddTemplate(ctx, &model.Template{Name: "", FilePath: "x.zip"})
	require.ErrorIs(t, err, ErrInvalidInput)

	err = admin.AddTemplate(ctx, &model.Template{Name: "x", FilePath: "x.zip", Price: -1})
	require.ErrorIs(t, err, ErrInvalidAmount)

	tpl := &model.Template{Name: "Shop bot", FilePath: "shop.zip", Price: 50000}
	require.NoError(t, admin.AddTemplate(ctx, tpl))
	require.NotEqual(t, uuid.Nil, tpl.ID)

	got, err := admin.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	require.Equal(t, "Shop bot", got.Name)
}

func TestDeleteTemplateMissing(t *testing.T) {
	store := NewMemoryStore()
	admin := NewAdminService(store, NewLedgerService(store))

	err := admin.DeleteTemplate(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUsersReportListsEveryAccount(t *testing.T) {
	store := NewMemoryStore()
	admin := NewAdminService(store, NewLedgerService(store))
	ctx := context.Background()

	name := "Alisher"
	phone := "+998901234567"
	require.NoError(t, store.CreateUser(ctx, &model.User{ID: 10, FullName: &name, PhoneNumber: &phone, ReferralCode: "REF10"}))
	require.NoError(t, store.CreateUser(ctx, &model.User{ID: 11, ReferralCode: "REF11"}))

	report, err := admin.UsersReport(ctx)
	require.NoError(t, err)
	require.Contains(t, report, "Alisher")
	require.Contains(t, report, "+998901234567")
	require.Contains(t, report, "11")
	require.Contains(t, report, "Jami: 2 ta foydalanuvchi")
}

func TestStatsCountsDistinctRecentBuyers(t *testing.T) {
	store := NewMemoryStore()
	admin := NewAdminService(store, NewLedgerService(store))
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &model.User{ID: 1, ReferralCode: "REF1"}))
	require.NoError(t, store.CreateUser(ctx, &model.User{ID: 2, ReferralCode: "REF2"}))

	// Two instances for the same user still count one active buyer.
	seedInstance(t, store, &model.Instance{UserID: 1, Status: model.InstanceStatusActive, DaysLeft: 10})
	seedInstance(t, store, &model.Instance{UserID: 1, Status: model.InstanceStatusStopped, DaysLeft: 5})

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalUsers)
	require.Equal(t, 1, stats.ActiveUsers)
	require.Equal(t, 2, stats.TotalInstances)
}
