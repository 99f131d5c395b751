package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// Handler exposes the feature catalog over HTTP.
type Handler struct {
	service   *Service
	responder httpx.Responder
	validate  *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service, responder httpx.Responder) *Handler {
	return &Handler{service: service, responder: responder, validate: validator.New()}
}

// MountRoutes registers catalog routes. Mutating routes are expected to be
// wrapped with the admin key guard by the router.
func (h *Handler) MountRoutes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/features", h.listFeatures)
	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/features", h.createFeature)
		r.Put("/features/{id}", h.updateFeature)
	})
}

func (h *Handler) listFeatures(w http.ResponseWriter, r *http.Request) {
	var (
		features []Feature
		err      error
	)
	if r.URL.Query().Get("active") == "1" {
		features, err = h.service.ListActive(r.Context())
	} else {
		features, err = h.service.ListFeatures(r.Context())
	}
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OKList(w, features, len(features))
}

type featureForm struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	MenuGroup   string `json:"menuGroup"`
	Type        string `json:"type" validate:"required,oneof=menu feature action"`
	ParentID    string `json:"parentId"`
	SortOrder   int    `json:"sortOrder"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (f featureForm) toFeature() Feature {
	active := true
	if f.Active != nil {
		active = *f.Active
	}
	return Feature{
		ID:          f.ID,
		Name:        f.Name,
		MenuGroup:   f.MenuGroup,
		Type:        f.Type,
		ParentID:    f.ParentID,
		SortOrder:   f.SortOrder,
		Description: f.Description,
		Active:      active,
	}
}

func (h *Handler) createFeature(w http.ResponseWriter, r *http.Request) {
	var form featureForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, validationMessage(err), nil)
		return
	}
	created, err := h.service.CreateFeature(r.Context(), form.toFeature())
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) updateFeature(w http.ResponseWriter, r *http.Request) {
	var form featureForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	form.ID = chi.URLParam(r, "id")
	if err := h.validate.StructExcept(form, "ID"); err != nil {
		h.responder.Fail(w, http.StatusBadRequest, validationMessage(err), nil)
		return
	}
	updated, err := h.service.UpdateFeature(r.Context(), form.toFeature())
	if err != nil {
		h.responder.Error(w, err)
		return
	}
	httpx.OK(w, updated)
}

func validationMessage(err error) string {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " is invalid"
	}
	return "validation failed"
}
