package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pix.local/internal/app/catalog"
	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/platform/httpmiddleware"
)

type ListResponse struct {
	Items []repo.ImageSummary `json:"items"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

func NewListPhotosHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit, ok := parsePage(w, r)
		if !ok {
			return
		}
		category := r.URL.Query().Get("category")
		if category != "" && category != "all" {
			if err := catalog.ValidateCategory(category); err != nil {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		} else {
			category = ""
		}

		items, total, err := images.List(r.Context(), page, limit, category)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if items == nil {
			items = []repo.ImageSummary{}
		}
		writeJSON(w, http.StatusOK, ListResponse{Items: items, Total: total, Page: page, Limit: limit})
	}
}

func NewGetPhotoHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		img, err := images.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repo.ErrImageNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, img)
	}
}

type SimilarResponse struct {
	Target *repo.Image         `json:"target"`
	Items  []repo.ImageSummary `json:"items"`
}

func NewSimilarHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		target, items, err := images.Similar(r.Context(), id, 12)
		if err != nil {
			if errors.Is(err, repo.ErrImageNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if items == nil {
			items = []repo.ImageSummary{}
		}
		writeJSON(w, http.StatusOK, SimilarResponse{Target: target, Items: items})
	}
}

func NewSearchHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		category := r.URL.Query().Get("category")
		if q == "" && (category == "" || category == "all") {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "q or category required")
			return
		}
		if q != "" {
			if err := catalog.ValidateQuery(q); err != nil {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		}
		if category != "" {
			if err := catalog.ValidateCategory(category); err != nil {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		}
		page, limit, ok := parsePage(w, r)
		if !ok {
			return
		}

		var items []repo.ImageSummary
		var total int64
		var err error
		if q == "" {
			// 只按分类过滤
			items, total, err = images.ListByCategory(r.Context(), category, page, limit)
		} else {
			items, total, err = images.Search(r.Context(), q, category, page, limit)
		}
		if err != nil {
			slog.Error("search failed", "q", q, "category", category, "err", err)
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if items == nil {
			items = []repo.ImageSummary{}
		}
		writeJSON(w, http.StatusOK, ListResponse{Items: items, Total: total, Page: page, Limit: limit})
	}
}

func NewCategoriesHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := images.Categories(r.Context())
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if categories == nil {
			categories = []repo.CategoryCount{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	}
}

func NewSitemapHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := images.Sitemap(r.Context())
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if entries == nil {
			entries = []repo.SitemapEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
	}
}
