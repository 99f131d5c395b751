package permissions

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// Handler exposes permission checks and grant administration over HTTP.
type Handler struct {
	resolver  *Resolver
	service   *Service
	responder httpx.Responder
	validate  *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(resolver *Resolver, service *Service, responder httpx.Responder) *Handler {
	return &Handler{resolver: resolver, service: service, responder: responder, validate: validator.New()}
}

// MountRoutes registers permission routes. Mutating routes are expected to
// be wrapped with the admin key guard by the router.
func (h *Handler) MountRoutes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/permissions/check", h.check)
	r.Get("/permissions/grants", h.listGrants)
	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/permissions/grants", h.createGrant)
		r.Put("/permissions/grants/{id}", h.updateGrant)
		r.Post("/permissions/role-grants", h.createRoleGrant)
	})
}

// check answers a single-feature check when feature_id is present, or the
// full matrix over all active features when it is not.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userEmail := strings.TrimSpace(r.URL.Query().Get("user_email"))
	if userEmail == "" {
		h.responder.Fail(w, http.StatusBadRequest, "user_email is required", nil)
		return
	}

	featureID := strings.TrimSpace(r.URL.Query().Get("feature_id"))
	if featureID != "" {
		result, err := h.resolver.CheckPermission(r.Context(), userEmail, featureID)
		if err != nil {
			h.resolutionError(w, err)
			return
		}
		httpx.OK(w, result)
		return
	}

	results, err := h.resolver.AllPermissions(r.Context(), userEmail)
	if err != nil {
		h.resolutionError(w, err)
		return
	}
	httpx.OKList(w, results, len(results))
}

func (h *Handler) resolutionError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrResolutionUnavailable) {
		h.responder.Fail(w, http.StatusInternalServerError, "permission resolution unavailable", err)
		return
	}
	h.responder.Error(w, err)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListUserGrants(r.Context(), r.URL.Query().Get("user_email"))
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OKList(w, grants, len(grants))
}

type grantForm struct {
	UserEmail  string     `json:"userEmail" validate:"required,email"`
	FeatureIDs []string   `json:"featureIds" validate:"required,min=1"`
	Level      string     `json:"level" validate:"required,oneof=edit view hidden"`
	GrantedBy  string     `json:"grantedBy"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Notes      string     `json:"notes"`
}

func (h *Handler) createGrant(w http.ResponseWriter, r *http.Request) {
	var form grantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, grantValidationMessage(err), nil)
		return
	}
	created, err := h.service.CreateUserPermission(r.Context(), CreateGrantInput{
		UserEmail:  form.UserEmail,
		FeatureIDs: form.FeatureIDs,
		Level:      form.Level,
		GrantedBy:  form.GrantedBy,
		ExpiresAt:  form.ExpiresAt,
		Notes:      form.Notes,
	})
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

type grantUpdateForm struct {
	FeatureIDs []string   `json:"featureIds" validate:"required,min=1"`
	Level      string     `json:"level" validate:"required,oneof=edit view hidden"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Notes      string     `json:"notes"`
}

func (h *Handler) updateGrant(w http.ResponseWriter, r *http.Request) {
	var form grantUpdateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, grantValidationMessage(err), nil)
		return
	}
	updated, err := h.service.UpdateUserPermission(r.Context(), chi.URLParam(r, "id"), UpdateGrantInput{
		FeatureIDs: form.FeatureIDs,
		Level:      form.Level,
		ExpiresAt:  form.ExpiresAt,
		Notes:      form.Notes,
	})
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OK(w, updated)
}

type roleGrantForm struct {
	RoleIDs    []string `json:"roleIds" validate:"required,min=1"`
	FeatureIDs []string `json:"featureIds" validate:"required,min=1"`
	Level      string   `json:"level" validate:"required,oneof=edit view hidden"`
}

func (h *Handler) createRoleGrant(w http.ResponseWriter, r *http.Request) {
	var form roleGrantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, grantValidationMessage(err), nil)
		return
	}
	created, err := h.service.CreateRoleGrant(r.Context(), CreateRoleGrantInput{
		RoleIDs:    form.RoleIDs,
		FeatureIDs: form.FeatureIDs,
		Level:      form.Level,
	})
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

func grantValidationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required", "min":
			return fe.Field() + " is required"
		case "email":
			return fe.Field() + " must be a valid email address"
		case "oneof":
			return fe.Field() + " must be one of edit, view, hidden"
		}
		return fe.Field() + " is invalid"
	}
	return "validation failed"
}
