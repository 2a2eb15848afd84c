package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/Zerokoinhub/app-backend/internal/infrastructure/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ListPushEnabled(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if u, _ := args.Get(0).([]domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if d, _ := args.Get(0).([]domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDeviceStore) DeactivateByToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type mockImageStore struct{ mock.Mock }

func (m *mockImageStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

// fakeSender returns scripted results keyed by token.
type fakeSender struct {
	results map[string]push.Result
	sent    []string
}

func (f *fakeSender) Send(_ context.Context, token, _, _ string, _ map[string]string) push.Result {
	f.sent = append(f.sent, token)
	if r, ok := f.results[token]; ok {
		return r
	}
	return push.Result{Status: push.StatusDelivered, MessageID: "ok"}
}

// --- helpers ---

func user(id string) domain.User {
	return domain.User{UserID: id, PushEnabled: true, Enable: true}
}

func device(userID, token string) domain.Device {
	return domain.Device{DeviceID: "dev-" + token, UserID: userID, Token: token, IsActive: true}
}

func newSvc(us *mockUserStore, ds *mockDeviceStore, sender push.Sender) Service {
	return NewService(ServiceDeps{UserRepo: us, DeviceRepo: ds, Sender: sender})
}

// --- tests ---

func TestBroadcastAll_AllDelivered(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	sender := &fakeSender{}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{device("u1", "tok-a"), device("u1", "tok-b")}, nil)

	outcome, err := newSvc(us, ds, sender).BroadcastAll(context.Background(), Message{Title: "Like Post", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Sent)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 1, outcome.TotalUsers)
	assert.Equal(t, 0, outcome.InvalidTokensRemoved)
}

func TestBroadcastAll_PartialFailureIsolation(t *testing.T) {
	// Token #4 of 10 is permanently invalid; #5-#10 must still be attempted.
	us := new(mockUserStore)
	ds := new(mockDeviceStore)

	var devices []domain.Device
	results := map[string]push.Result{}
	for i := 1; i <= 10; i++ {
		tok := fmt.Sprintf("tok-%02d", i)
		devices = append(devices, device("u1", tok))
	}
	results["tok-04"] = push.Result{Status: push.StatusInvalidToken, Reason: "unregistered"}
	sender := &fakeSender{results: results}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").Return(devices, nil)
	ds.On("DeactivateByToken", mock.Anything, "tok-04").Return(nil)

	outcome, err := newSvc(us, ds, sender).BroadcastAll(context.Background(), Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Len(t, sender.sent, 10)
	assert.Equal(t, 9, outcome.Sent)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.InvalidTokensRemoved)
	ds.AssertCalled(t, "DeactivateByToken", mock.Anything, "tok-04")
}

func TestBroadcastAll_TransientErrorCountsFailedWithoutPrune(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	sender := &fakeSender{results: map[string]push.Result{
		"tok-a": {Status: push.StatusTransientError, Reason: "timeout"},
	}}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{device("u1", "tok-a"), device("u1", "tok-b")}, nil)

	outcome, err := newSvc(us, ds, sender).BroadcastAll(context.Background(), Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 1, outcome.Failed)
	ds.AssertNotCalled(t, "DeactivateByToken", mock.Anything, mock.Anything)
}

func TestBroadcastAll_UserStoreUnreachable_ErrorsWithZeroCounts(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	us.On("ListPushEnabled", mock.Anything).Return(nil, errors.New("connection refused"))

	outcome, err := newSvc(us, ds, &fakeSender{}).BroadcastAll(context.Background(), Message{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Equal(t, 0, outcome.Sent)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 0, outcome.TotalUsers)
}

func TestBroadcastAll_DeviceListFailure_SkipsUserOnly(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	sender := &fakeSender{}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1"), user("u2")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").Return(nil, errors.New("throttled"))
	ds.On("ListActiveByUser", mock.Anything, "u2").Return([]domain.Device{device("u2", "tok-c")}, nil)

	outcome, err := newSvc(us, ds, sender).BroadcastAll(context.Background(), Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 1, outcome.TotalUsers)
}

func TestBroadcastAll_PruneFailureIsBestEffort(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	sender := &fakeSender{results: map[string]push.Result{
		"tok-a": {Status: push.StatusInvalidToken},
		"tok-b": {Status: push.StatusInvalidToken},
	}}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{device("u1", "tok-a"), device("u1", "tok-b")}, nil)
	ds.On("DeactivateByToken", mock.Anything, "tok-a").Return(errors.New("conditional check failed"))
	ds.On("DeactivateByToken", mock.Anything, "tok-b").Return(nil)

	outcome, err := newSvc(us, ds, sender).BroadcastAll(context.Background(), Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Failed)
	assert.Equal(t, 1, outcome.InvalidTokensRemoved)
}

func TestSendToUser_SkipsInactiveDevices(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	sender := &fakeSender{}

	inactive := device("u1", "tok-old")
	inactive.IsActive = false

	outcome, err := newSvc(us, ds, sender).SendToUser(context.Background(), "u1",
		[]domain.Device{device("u1", "tok-a"), inactive}, Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, sender.sent)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 1, outcome.TotalUsers)
}

func TestSendToUser_NoActiveDevices_ZeroOutcome(t *testing.T) {
	outcome, err := newSvc(new(mockUserStore), new(mockDeviceStore), &fakeSender{}).
		SendToUser(context.Background(), "u1", nil, Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Sent)
	assert.Equal(t, 0, outcome.TotalUsers)
}

func TestBroadcastAll_ImageKeyResolvedOncePerDispatch(t *testing.T) {
	us := new(mockUserStore)
	ds := new(mockDeviceStore)
	is := new(mockImageStore)
	sender := &fakeSender{}

	us.On("ListPushEnabled", mock.Anything).Return([]domain.User{user("u1")}, nil)
	ds.On("ListActiveByUser", mock.Anything, "u1").
		Return([]domain.Device{device("u1", "tok-a"), device("u1", "tok-b")}, nil)
	is.On("PresignedURL", mock.Anything, "img/banner.png", imageURLTTL).
		Return("https://cdn.example/banner", nil).Once()

	key := "img/banner.png"
	svc := NewService(ServiceDeps{UserRepo: us, DeviceRepo: ds, Sender: sender, ImageStore: is})
	outcome, err := svc.BroadcastAll(context.Background(), Message{Title: "t", Body: "b", ImageKey: &key})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Sent)
	is.AssertNumberOfCalls(t, "PresignedURL", 1)
}
