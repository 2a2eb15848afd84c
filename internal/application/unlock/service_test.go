package unlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/application/dispatch"
	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ListUnlockDue(ctx context.Context, now time.Time) ([]domain.User, error) {
	args := m.Called(ctx, now)
	if u, _ := args.Get(0).([]domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if d, _ := args.Get(0).([]domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) BroadcastAll(ctx context.Context, msg dispatch.Message) (*domain.DeliveryOutcome, error) {
	args := m.Called(ctx, msg)
	if o, _ := args.Get(0).(*domain.DeliveryOutcome); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDispatcher) SendToUser(ctx context.Context, userID string, devices []domain.Device, msg dispatch.Message) (*domain.DeliveryOutcome, error) {
	args := m.Called(ctx, userID, devices, msg)
	if o, _ := args.Get(0).(*domain.DeliveryOutcome); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func lockedSlot(number int, deadline time.Time) domain.SessionSlot {
	return domain.SessionSlot{SessionNumber: number, IsLocked: true, NextUnlockAt: &deadline, Reward: 0.5}
}

func unlockedSlot(number int, at time.Time) domain.SessionSlot {
	return domain.SessionSlot{SessionNumber: number, IsLocked: false, UnlockedAt: &at, Reward: 0.5}
}

func dueUser(id string, slots ...domain.SessionSlot) domain.User {
	return domain.User{UserID: id, PushEnabled: true, Enable: true, Sessions: slots}
}

func newSvc(us *mockUserStore, ds *mockDeviceStore, d *mockDispatcher) Service {
	return NewService(ServiceDeps{
		UserRepo:   us,
		DeviceRepo: ds,
		Dispatcher: d,
		Now:        func() time.Time { return testNow },
	})
}

func okOutcome() *domain.DeliveryOutcome {
	return &domain.DeliveryOutcome{Sent: 1, TotalUsers: 1}
}

// --- tests ---

func TestScanOnce_UnlocksElapsedSlotOnce(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1",
		lockedSlot(1, testNow.Add(-time.Second)),
		lockedSlot(2, testNow.Add(6*time.Hour)),
	)
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)

	var persisted []domain.SessionSlot
	us.On("Update", mock.Anything, "u1", mock.Anything).
		Run(func(args mock.Arguments) {
			updates := args.Get(2).(map[string]interface{})
			persisted = updates["sessions"].([]domain.SessionSlot)
		}).
		Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)
	d.On("SendToUser", mock.Anything, "u1", mock.Anything, mock.Anything).Return(okOutcome(), nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))

	require.Len(t, persisted, 2)
	assert.False(t, persisted[0].IsLocked)
	assert.Nil(t, persisted[0].NextUnlockAt)
	require.NotNil(t, persisted[0].UnlockedAt)
	assert.Equal(t, testNow, persisted[0].UnlockedAt.UTC())
	// Slot 2 has not elapsed and must be untouched.
	assert.True(t, persisted[1].IsLocked)
	us.AssertNumberOfCalls(t, "Update", 1)
	d.AssertNumberOfCalls(t, "SendToUser", 1)
}

func TestScanOnce_SecondCycleIsNoOp(t *testing.T) {
	// Monotonicity: after a slot is unlocked it no longer matches the scan
	// query; an immediate second cycle must do nothing for that slot.
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	// The store returns the user again (e.g. another slot is still due in
	// the future), but every elapsed slot is already unlocked.
	u := dueUser("u1",
		unlockedSlot(1, testNow.Add(-time.Minute)),
		lockedSlot(2, testNow.Add(6*time.Hour)),
	)
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	d.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScanOnce_CombinesSimultaneousUnlocksIntoOneMessage(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1",
		lockedSlot(2, testNow.Add(-time.Minute)),
		lockedSlot(3, testNow.Add(-time.Second)),
	)
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)

	var msg dispatch.Message
	d.On("SendToUser", mock.Anything, "u1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { msg = args.Get(3).(dispatch.Message) }).
		Return(okOutcome(), nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))

	d.AssertNumberOfCalls(t, "SendToUser", 1)
	assert.Contains(t, msg.Body, "2, 3")
	assert.Equal(t, "2,3", msg.Data["sessions"])
}

func TestScanOnce_SingleWritePerUserUpdatesDenormalizedDeadline(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	later := testNow.Add(6 * time.Hour)
	u := dueUser("u1",
		lockedSlot(1, testNow.Add(-time.Second)),
		lockedSlot(2, later),
	)
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)

	var updates map[string]interface{}
	us.On("Update", mock.Anything, "u1", mock.Anything).
		Run(func(args mock.Arguments) { updates = args.Get(2).(map[string]interface{}) }).
		Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)
	d.On("SendToUser", mock.Anything, "u1", mock.Anything, mock.Anything).Return(okOutcome(), nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	assert.Equal(t, later.Unix(), updates["next_unlock_at"])
}

func TestScanOnce_LastSlotUnlocked_ClearsDeadline(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1", lockedSlot(4, testNow.Add(-time.Second)))
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)

	var updates map[string]interface{}
	us.On("Update", mock.Anything, "u1", mock.Anything).
		Run(func(args mock.Arguments) { updates = args.Get(2).(map[string]interface{}) }).
		Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)
	d.On("SendToUser", mock.Anything, "u1", mock.Anything, mock.Anything).Return(okOutcome(), nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	require.Contains(t, updates, "next_unlock_at")
	assert.Nil(t, updates["next_unlock_at"])
}

func TestScanOnce_PersistFailureSkipsNotification(t *testing.T) {
	// Unlock-then-notify: if the unlock write fails, no notification may go
	// out; the user is re-evaluated next cycle.
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1", lockedSlot(1, testNow.Add(-time.Second)))
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(errors.New("write throttled"))

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	d.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScanOnce_NotifyFailureDoesNotRollBackUnlock(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1", lockedSlot(1, testNow.Add(-time.Second)))
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)
	d.On("SendToUser", mock.Anything, "u1", mock.Anything, mock.Anything).
		Return(nil, errors.New("transport down"))

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	// One write, no second write attempting a rollback.
	us.AssertNumberOfCalls(t, "Update", 1)
}

func TestScanOnce_UserWithoutDevices_StillUnlocked(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1", lockedSlot(1, testNow.Add(-time.Second)))
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{}, nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	us.AssertNumberOfCalls(t, "Update", 1)
	d.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScanOnce_PushDisabledUser_UnlockedButNotNotified(t *testing.T) {
	// Push preference gates the notification only: a user who opted out
	// still gets the unlock write, but no devices are looked up and no
	// message goes out.
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	d := new(mockDispatcher)

	u := dueUser("u1", lockedSlot(1, testNow.Add(-time.Second)))
	u.PushEnabled = false
	us.On("ListUnlockDue", mock.Anything, testNow).Return([]domain.User{u}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{{DeviceID: "d1", UserID: "u1", Token: "tok", IsActive: true}}, nil)

	require.NoError(t, newSvc(us, ds, d).ScanOnce(context.Background()))
	us.AssertNumberOfCalls(t, "Update", 1)
	ds.AssertNotCalled(t, "ListActiveByUser", mock.Anything, mock.Anything)
	d.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScanOnce_QueryFailureAbortsCycle(t *testing.T) {
	us := new(mockUserStore)
	us.On("ListUnlockDue", mock.Anything, testNow).Return(nil, errors.New("connection refused"))

	err := newSvc(us, new(mockDeviceStore), new(mockDispatcher)).ScanOnce(context.Background())
	require.Error(t, err)
}

func TestUnlockMessage_SingleSlot(t *testing.T) {
	msg := unlockMessage([]int{3})
	assert.Equal(t, "Session Unlocked", msg.Title)
	assert.Contains(t, msg.Body, "Session 3")
	assert.Equal(t, "3", msg.Data["sessions"])
}
