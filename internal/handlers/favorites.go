package handlers

import "net/http"

// SetFavoritesRequest replaces the user's favorite models.
type SetFavoritesRequest struct {
	Models []string `json:"models" validate:"max=20,unique,dive,required,max=200"`
}

// FavoritesResponse lists the user's favorite models in order.
type FavoritesResponse struct {
	Models []string `json:"models"`
}

// GetFavorites returns the user's favorite models.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	fav, err := h.data.GetFavoriteModels(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, err, "database error")
		return
	}

	h.JSON(w, http.StatusOK, FavoritesResponse{Models: fav.Models})
}

// SetFavorites replaces the user's favorite models.
func (h *Handler) SetFavorites(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req SetFavoritesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.valid(w, r, &req) {
		return
	}
	if req.Models == nil {
		req.Models = []string{}
	}

	fav, err := h.data.SetFavoriteModels(r.Context(), user.ID, req.Models)
	if err != nil {
		h.internalError(w, r, err, "failed to save favorites")
		return
	}

	h.JSON(w, http.StatusOK, FavoritesResponse{Models: fav.Models})
}
