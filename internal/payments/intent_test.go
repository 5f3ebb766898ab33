package payments

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/learnhub-backend/internal/courses"
	"github.com/angelmondragon/learnhub-backend/internal/enrollments"
	"github.com/angelmondragon/learnhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubGateway struct {
	orderID string
	err     error
	block   bool
	last    razorpay.CreateOrderRequest
}

func (g *stubGateway) CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	g.last = req
	if g.block {
		<-ctx.Done()
		return nil, pkgerrors.Upstream(ctx.Err(), "execute order request")
	}
	if g.err != nil {
		return nil, g.err
	}
	return &razorpay.Order{
		ID:       g.orderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
		Raw:      json.RawMessage(`{"id":"` + g.orderID + `","status":"created"}`),
	}, nil
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

func newIntentService(t *testing.T, conn *gorm.DB, gateway *stubGateway) *IntentService {
	t.Helper()
	svc, err := NewIntentService(IntentServiceParams{
		Courses:        courses.NewRepository(conn),
		Enrollments:    enrollments.NewRepository(conn),
		Payments:       NewRepository(conn),
		Gateway:        gateway,
		GatewayTimeout: 50 * time.Millisecond,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func seedCourse(t *testing.T, conn *gorm.DB, priceCents int64) *models.Course {
	t.Helper()
	c := &models.Course{
		ID:           uuid.New(),
		Title:        "Go Concurrency",
		PriceCents:   priceCents,
		Currency:     enums.CurrencyINR,
		InstructorID: uuid.New(),
		IsPublished:  true,
	}
	require.NoError(t, conn.Create(c).Error)
	return c
}

func TestCreateIntentRecordsCreatedPayment(t *testing.T) {
	conn := dbtest.Open(t)
	gateway := &stubGateway{orderID: "order_abc"}
	svc := newIntentService(t, conn, gateway)
	course := seedCourse(t, conn, 49900)
	userID := uuid.New()

	res, err := svc.CreateIntent(context.Background(), userID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "order_abc", res.OrderID)
	assert.Equal(t, int64(49900), res.Amount)
	assert.Equal(t, enums.CurrencyINR, res.Currency)
	assert.Equal(t, "rzp_test_key", res.KeyID)
	assert.Equal(t, int64(49900), gateway.last.Amount)
	assert.Equal(t, res.PaymentID.String(), gateway.last.Receipt)

	var p models.Payment
	require.NoError(t, conn.First(&p, "id = ?", res.PaymentID).Error)
	assert.Equal(t, enums.PaymentStatusCreated, p.Status)
	assert.Equal(t, "order_abc", p.OrderReference)
	assert.Equal(t, "order_abc", p.ProviderReference)
	assert.Equal(t, userID, p.UserID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(p.Metadata, &meta))
	assert.Equal(t, course.ID.String(), meta["course_id"])
	assert.NotNil(t, meta["order"])
}

func TestCreateIntentReplayedOrderUpserts(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newIntentService(t, conn, &stubGateway{orderID: "order_same"})
	course := seedCourse(t, conn, 1000)

	first, err := svc.CreateIntent(context.Background(), uuid.New(), course.ID)
	require.NoError(t, err)
	second, err := svc.CreateIntent(context.Background(), uuid.New(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	var n int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCreateIntentValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newIntentService(t, conn, &stubGateway{orderID: "order_x"})

	_, err := svc.CreateIntent(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	free := seedCourse(t, conn, 0)
	_, err = svc.CreateIntent(context.Background(), uuid.New(), free.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreateIntentAlreadyEnrolled(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newIntentService(t, conn, &stubGateway{orderID: "order_y"})
	course := seedCourse(t, conn, 1000)
	userID := uuid.New()
	_, err := enrollments.NewRepository(conn).UpsertActivePaid(context.Background(), userID, course.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.CreateIntent(context.Background(), userID, course.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestCreateIntentGatewayFailures(t *testing.T) {
	conn := dbtest.Open(t)
	course := seedCourse(t, conn, 1000)

	svc := newIntentService(t, conn, &stubGateway{block: true})
	_, err := svc.CreateIntent(context.Background(), uuid.New(), course.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstreamTimeout), "got %v", err)

	svc = newIntentService(t, conn, &stubGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "order request failed")})
	_, err = svc.CreateIntent(context.Background(), uuid.New(), course.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)

	var n int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}
