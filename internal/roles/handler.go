package roles

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// Handler exposes role management endpoints.
type Handler struct {
	service   *Service
	responder httpx.Responder
	validate  *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service, responder httpx.Responder) *Handler {
	return &Handler{service: service, responder: responder, validate: validator.New()}
}

// MountRoutes registers role routes. Mutating routes are expected to be
// wrapped with the admin key guard by the router.
func (h *Handler) MountRoutes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/roles", h.listRoles)
	r.Get("/roles/{id}/members", h.listMembers)
	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/roles", h.createRole)
		r.Post("/roles/{id}/members", h.addMember)
		r.Delete("/roles/{id}/members/{email}", h.removeMember)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OKList(w, roles, len(roles))
}

type roleForm struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	active := true
	if form.Active != nil {
		active = *form.Active
	}
	created, err := h.service.CreateRole(r.Context(), Role{
		ID:          form.ID,
		Name:        form.Name,
		Description: form.Description,
		Active:      active,
	})
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

type memberForm struct {
	UserEmail string `json:"user_email" validate:"required,email"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var form memberForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "user_email must be a valid email address", nil)
		return
	}
	if err := h.service.AddMember(r.Context(), chi.URLParam(r, "id"), form.UserEmail); err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OK(w, map[string]string{"roleId": chi.URLParam(r, "id"), "userEmail": form.UserEmail})
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveMember(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "email")); err != nil {
		h.responder.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OKList(w, members, len(members))
}
