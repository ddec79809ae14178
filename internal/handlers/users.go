package handlers

import "net/http"

// Me returns the authenticated user as currently stored.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	stored, err := h.data.GetUserByID(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, err, "failed to load user")
		return
	}
	if stored == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, stored)
}
