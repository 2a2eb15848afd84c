package notification

import (
	"context"
	"testing"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n := args.Get(0); n != nil {
		return n.(*domain.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationStore) List(ctx context.Context) ([]domain.Notification, error) {
	args := m.Called(ctx)
	if n := args.Get(0); n != nil {
		return n.([]domain.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationStore) MarkSent(ctx context.Context, notificationID string, sentAt time.Time) error {
	return m.Called(ctx, notificationID, sentAt).Error(0)
}

func (m *mockNotificationStore) Delete(ctx context.Context, notificationID string) error {
	return m.Called(ctx, notificationID).Error(0)
}

type mockImageStore struct{ mock.Mock }

func (m *mockImageStore) UploadBase64(ctx context.Context, key, data string) (string, error) {
	args := m.Called(ctx, key, data)
	return args.String(0), args.Error(1)
}

func (m *mockImageStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestCreate_DefaultsToNormalPriorityAndUnsent(t *testing.T) {
	repo := new(mockNotificationStore)
	var stored *domain.Notification
	repo.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Notification)
	}).Return(nil)

	svc := NewService(ServiceDeps{NotificationRepo: repo})
	n, err := svc.Create(context.Background(), domain.CreateNotificationRequest{
		Title: "Bonus weekend", Body: "Double rewards until Sunday",
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PriorityNormal, n.Priority)
	assert.False(t, n.IsSent)
	assert.Nil(t, n.SentAt)
	assert.True(t, n.AutoPushEligible())
}

func TestCreate_UploadsImageToObjectStorage(t *testing.T) {
	repo := new(mockNotificationStore)
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)

	images := new(mockImageStore)
	images.On("UploadBase64", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len("notifications/")
	}), "aGVsbG8=").Return("https://bucket/key", nil)

	svc := NewService(ServiceDeps{NotificationRepo: repo, ImageStore: images})
	n, err := svc.Create(context.Background(), domain.CreateNotificationRequest{
		Title: "Bonus", Body: "Image attached", ImageBase64: "aGVsbG8=",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ImageKey)
	images.AssertExpectations(t)
}

func TestCreate_ImageWithoutStorageRejected(t *testing.T) {
	repo := new(mockNotificationStore)
	svc := NewService(ServiceDeps{NotificationRepo: repo})
	_, err := svc.Create(context.Background(), domain.CreateNotificationRequest{
		Title: "Bonus", Body: "Image attached", ImageBase64: "aGVsbG8=",
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestCreate_OptOutRecordNotAutoPushEligible(t *testing.T) {
	repo := new(mockNotificationStore)
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)

	off := false
	svc := NewService(ServiceDeps{NotificationRepo: repo})
	n, err := svc.Create(context.Background(), domain.CreateNotificationRequest{
		Title: "Silent", Body: "In-app only", AutoSendPush: &off,
	})
	require.NoError(t, err)
	assert.False(t, n.AutoPushEligible())
}

func TestMarkSent_FlagsRecordWithTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(mockNotificationStore)
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1"}, nil)
	repo.On("MarkSent", mock.Anything, "n1", now).Return(nil)

	svc := NewService(ServiceDeps{NotificationRepo: repo, Now: func() time.Time { return now }})
	n, err := svc.MarkSent(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, n.IsSent)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, now, *n.SentAt)
}

func TestMarkSent_AlreadySentConflicts(t *testing.T) {
	repo := new(mockNotificationStore)
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{
		NotificationID: "n1", IsSent: true,
	}, nil)

	svc := NewService(ServiceDeps{NotificationRepo: repo})
	_, err := svc.MarkSent(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_RemovesStoredImage(t *testing.T) {
	key := "notifications/n1.png"
	repo := new(mockNotificationStore)
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{
		NotificationID: "n1", ImageKey: &key,
	}, nil)
	repo.On("Delete", mock.Anything, "n1").Return(nil)

	images := new(mockImageStore)
	images.On("Delete", mock.Anything, key).Return(nil)

	svc := NewService(ServiceDeps{NotificationRepo: repo, ImageStore: images})
	require.NoError(t, svc.Delete(context.Background(), "n1"))
	images.AssertExpectations(t)
}

func TestDelete_WithoutImageSkipsObjectStorage(t *testing.T) {
	repo := new(mockNotificationStore)
	repo.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1"}, nil)
	repo.On("Delete", mock.Anything, "n1").Return(nil)

	images := new(mockImageStore)
	svc := NewService(ServiceDeps{NotificationRepo: repo, ImageStore: images})
	require.NoError(t, svc.Delete(context.Background(), "n1"))
	images.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_MissingRecordNotFound(t *testing.T) {
	repo := new(mockNotificationStore)
	repo.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{NotificationRepo: repo})
	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
