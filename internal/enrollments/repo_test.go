package enrollments

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertActivePaidIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID, courseID, paymentID := uuid.New(), uuid.New(), uuid.New()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	row, err := repo.UpsertActivePaid(ctx, userID, courseID, paymentID, first)
	require.NoError(t, err)
	assert.True(t, row.IsPaid)
	assert.Equal(t, enums.EnrollmentStatusActive, row.Status)
	require.NotNil(t, row.PurchasedAt)

	again, err := repo.UpsertActivePaid(ctx, userID, courseID, uuid.New(), first.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	assert.True(t, again.PurchasedAt.Equal(first), "purchased_at must keep its first value")
	require.NotNil(t, again.PaymentID)
	assert.Equal(t, paymentID, *again.PaymentID)

	var count int64
	require.NoError(t, conn.Model(&models.Enrollment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertActivePaidUpgradesUnpaidRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID, courseID := uuid.New(), uuid.New()

	require.NoError(t, conn.Create(&models.Enrollment{
		ID:       uuid.New(),
		UserID:   userID,
		CourseID: courseID,
		Status:   enums.EnrollmentStatusActive,
		IsPaid:   false,
	}).Error)

	row, err := repo.UpsertActivePaid(ctx, userID, courseID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.True(t, row.IsPaid)
	assert.NotNil(t, row.PurchasedAt)
}

func TestListMineJoinsCourseTitle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()
	course := &models.Course{ID: uuid.New(), Title: "Distributed Systems", Currency: enums.CurrencyINR, InstructorID: uuid.New()}
	require.NoError(t, conn.Create(course).Error)

	_, err := repo.UpsertActivePaid(ctx, userID, course.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	_, err = repo.UpsertActivePaid(ctx, uuid.New(), course.ID, uuid.New(), time.Now())
	require.NoError(t, err)

	svc, err := NewService(repo)
	require.NoError(t, err)
	list, err := svc.ListMine(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Distributed Systems", list[0].CourseTitle)
	assert.True(t, list[0].IsPaid)
}
