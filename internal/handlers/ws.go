package handlers

import "net/http"

// ChatSocket upgrades to a websocket streaming the chat's events.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	c := h.ownedChat(w, r, user)
	if c == nil {
		return
	}
	h.hub.Serve(w, r, c.ID.String())
}
