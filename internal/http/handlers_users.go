package http

import (
	"context"
	"net/http"

	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/services"
)

const msgInvalidProfile = "Invalid profile data."

func (s *Server) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	s.issueOTP(w, r, s.svc.Auth.SendOTP, "SMS sent successfully.")
}

func (s *Server) handleOTPResend(w http.ResponseWriter, r *http.Request) {
	s.issueOTP(w, r, s.svc.Auth.ResendOTP, "SMS resent successfully.")
}

func (s *Server) issueOTP(w http.ResponseWriter, r *http.Request, send func(context.Context, string, core.Language) error, message string) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	b := newBinder(p, false)
	phone := b.text("phone", 20)
	if err := b.err(); err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}

	lang := core.LanguageFromHeader(r.Header.Get("Accept-Language"))
	if err := send(r.Context(), *phone, lang); err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "OTP issued",
		log.FieldComponent, log.ComponentOTP,
		log.FieldOperation, log.OpSendOTP,
		log.FieldOTPChannel, core.OTPPhone)
	SuccessResponse(message, nil).Write(w)
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	b := newBinder(p, false)
	phone := b.text("phone", 20)
	code := b.text("code", 5)
	if err := b.err(); err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}

	login, err := s.svc.Auth.VerifyOTP(r.Context(), *phone, *code)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "OTP verified",
		log.FieldComponent, log.ComponentAuth,
		log.FieldOperation, log.OpVerifyOTP,
		log.FieldUserID, login.User.ID,
		"new_user", login.NewUser)
	SuccessResponse("SMS verified successfully.", map[string]any{
		"access":   login.Tokens.Access,
		"refresh":  login.Tokens.Refresh,
		"user":     presentProfile(login.User),
		"new_user": login.NewUser,
	}).Write(w)
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	access, err := s.svc.Auth.Refresh(r.Context(), p.Get("refresh"))
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(map[string]string{"access": access}).Write(w)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, u core.User) {
	SuccessResponse("Profile fetched successfully.", map[string]any{"user": presentProfile(u)}).Write(w)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request, u core.User) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	b := newBinder(p, true)
	patch := services.ProfilePatch{
		FirstName:         b.optionalBlankText("first_name", 150),
		LastName:          b.optionalBlankText("last_name", 150),
		DefaultCurrencyID: b.id("default_currency", "Currency does not exist."),
	}
	if err := b.err(); err != nil {
		b.errs.Message = msgInvalidProfile
		s.fail(w, r, styleEnvelope, err)
		return
	}

	updated, err := s.svc.Auth.UpdateProfile(r.Context(), u.ID, patch)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	SuccessResponse("Profile updated successfully.", map[string]any{"user": presentProfile(updated)}).Write(w)
}

func (s *Server) handleTelegramSend(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	b := newBinder(p, false)
	tgID := b.text("telegram_user_id", 32)
	phone := b.text("phone", 20)
	first := b.optionalBlankText("first_name", 150)
	last := b.optionalBlankText("last_name", 150)
	if err := b.err(); err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}

	id := services.TelegramIdentity{TelegramUserID: *tgID, Phone: *phone}
	if first != nil {
		id.FirstName = *first
	}
	if last != nil {
		id.LastName = *last
	}
	code, err := s.svc.Auth.TelegramSendOTP(r.Context(), id)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "OTP issued",
		log.FieldComponent, log.ComponentOTP,
		log.FieldOperation, log.OpSendOTP,
		log.FieldOTPChannel, core.OTPTelegram)
	NewJSONResponse().Body(map[string]any{
		"otp":        code.Code,
		"expires_in": code.ExpiresIn,
	}).Write(w)
}

func (s *Server) handleTelegramVerify(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	b := newBinder(p, false)
	tgID := b.text("telegram_user_id", 32)
	code := b.text("otp", 5)
	if err := b.err(); err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}

	tokens, err := s.svc.Auth.TelegramVerifyOTP(r.Context(), *tgID, *code)
	if err != nil {
		s.fail(w, r, styleEnvelope, err)
		return
	}
	NewJSONResponse().Body(tokens).Write(w)
}
