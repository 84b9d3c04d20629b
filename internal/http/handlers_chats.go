package http

import (
	"net/http"

	"paylog/internal/core"
	"paylog/internal/log"
)

// handleChatList returns the notebook thread followed by every debtor
// thread, most recently updated first.
func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request, u core.User) {
	entries, err := s.svc.Chats.List(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"results": presentChatEntries(entries)}).Write(w)
}

func (s *Server) handleChatGet(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, core.NotFound("Chat not found."))
		return
	}
	kind, err := core.ParseChatKind(r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	detail, err := s.svc.Chats.Get(r.Context(), u.ID, id, kind)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	if detail.PayNote != nil {
		NewJSONResponse().Body(presentPayNote(*detail.PayNote)).Write(w)
		return
	}
	NewJSONResponse().Body(presentDebtorDetail(*detail.Debtor)).Write(w)
}

func (s *Server) handleDebtorChatCreate(w http.ResponseWriter, r *http.Request, u core.User) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, false)
	fullName := b.text("full_name", 120)
	phone := b.text("phone", 32)
	photo, _ := b.optionalText("photo_url", 200)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	entry, err := s.svc.Chats.CreateDebtor(r.Context(), u.ID, core.NewDebtorChat{
		FullName: *fullName,
		Phone:    *phone,
		PhotoURL: photo,
	})
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Debtor chat created",
		log.FieldComponent, log.ComponentChat,
		log.FieldOperation, log.OpCreate,
		log.FieldEntityID, entry.Chat.ID,
		log.FieldChatKind, core.ChatDebtor)
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{"chat": presentDebtorEntry(entry)}).Write(w)
}
