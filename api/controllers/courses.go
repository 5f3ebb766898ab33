package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/learnhub-backend/api/middleware"
	"github.com/angelmondragon/learnhub-backend/api/responses"
	"github.com/angelmondragon/learnhub-backend/api/validators"
	"github.com/angelmondragon/learnhub-backend/internal/courses"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
)

const (
	defaultCourseLimit = 20
	maxCourseLimit     = 100
	maxCourseOffset    = 100000
	maxTitleLength     = 200
)

type courseService interface {
	List(ctx context.Context, input courses.ListCoursesInput) ([]courses.CourseDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*courses.CourseDTO, error)
	Create(ctx context.Context, actorID uuid.UUID, input courses.CreateCourseInput) (*courses.CourseDTO, error)
	Update(ctx context.Context, actorID uuid.UUID, actorRole enums.UserRole, courseID uuid.UUID, input courses.UpdateCourseInput) (*courses.CourseDTO, error)
}

// CoursesList returns the catalog. ?all=true only widens the result for admins.
func CoursesList(svc courseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultCourseLimit, 1, maxCourseLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, maxCourseOffset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		all, err := validators.ParseQueryBool(r, "all")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), courses.ListCoursesInput{
			Limit:              limit,
			Offset:             offset,
			IncludeUnpublished: all,
			IsAdmin:            middleware.IsProfileAdmin(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func CourseGet(svc courseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := courseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		course, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, course)
	}
}

func CourseCreate(svc courseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body courses.CreateCourseInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.Title = validators.SanitizeString(body.Title, maxTitleLength)

		course, err := svc.Create(r.Context(), middleware.UserIDFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, course)
	}
}

// CourseUpdate applies a partial update. Ownership is enforced by the service.
func CourseUpdate(svc courseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := courseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body courses.UpdateCourseInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Title != nil {
			title := validators.SanitizeString(*body.Title, maxTitleLength)
			body.Title = &title
		}

		ctx := r.Context()
		course, err := svc.Update(ctx, middleware.UserIDFromContext(ctx), middleware.RoleFromContext(ctx), id, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, course)
	}
}

func courseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid course id")
	}
	return id, nil
}
