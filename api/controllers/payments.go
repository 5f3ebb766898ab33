package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnhub-backend/api/middleware"
	"github.com/angelmondragon/learnhub-backend/api/responses"
	"github.com/angelmondragon/learnhub-backend/api/validators"
	"github.com/angelmondragon/learnhub-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
)

type intentCreator interface {
	CreateIntent(ctx context.Context, userID, courseID uuid.UUID) (*payments.IntentResult, error)
}

type verificationReconciler interface {
	ReconcileVerification(ctx context.Context, actor payments.Actor, req payments.VerifyRequest) (*payments.Result, error)
}

// CreateOrderRequest is the checkout body.
type CreateOrderRequest struct {
	CourseID string `json:"courseId" validate:"required,uuid"`
}

// PaymentCreateOrder opens a provider order for the caller and the course.
func PaymentCreateOrder(svc intentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		courseID, err := uuid.Parse(body.CourseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid course id"))
			return
		}

		result, err := svc.CreateIntent(r.Context(), middleware.UserIDFromContext(r.Context()), courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PaymentVerify finalizes a payment the client reports as captured.
func PaymentVerify(svc verificationReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body payments.VerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		actor := payments.Actor{
			UserID:  middleware.UserIDFromContext(ctx),
			Role:    middleware.RoleFromContext(ctx),
			IsAdmin: middleware.IsProfileAdmin(ctx),
		}
		if _, err := svc.ReconcileVerification(ctx, actor, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"ok": true})
	}
}
