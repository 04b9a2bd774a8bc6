package main

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/models"
	"agromind/internal/validation"

	"github.com/gorilla/mux"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

type sendOTPResponse struct {
	OK   bool   `json:"ok"`
	Info string `json:"info"`
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	OTP   string `json:"otp"`
}

type verifyOTPResponse struct {
	OK   bool         `json:"ok"`
	User *models.User `json:"user"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.DB != nil {
			if err := s.deps.DB.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check failed")
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleRealtime() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Server read/write timeouts must not apply to the upgraded stream.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})
		s.deps.Realtime.ServeHTTP(w, r)
	}
}

func (s *Server) handleListGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := s.deps.Groups.ListGroups(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if groups == nil {
			groups = []*models.Group{}
		}
		s.writeJSON(w, http.StatusOK, groups)
	}
}

func (s *Server) handleCreateGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGroupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		group, err := s.deps.Groups.CreateGroup(r.Context(), req.Name, req.Description)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, group)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				s.writeError(w, r, errors.NewValidationError("limit", raw, "limit must be a number"))
				return
			}
			limit = n
		}

		msgs, err := s.deps.Messages.ListMessages(r.Context(), mux.Vars(r)["id"], limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []*models.Message{}
		}
		s.writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Server) handleCreateMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := s.decodeDraft(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.deps.Messages.CreateMessage(r.Context(), mux.Vars(r)["id"], draft)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, msg)
	}
}

// decodeDraft accepts either a multipart form with an optional "image" part
// or a JSON body without an image.
func (s *Server) decodeDraft(w http.ResponseWriter, r *http.Request) (models.MessageDraft, error) {
	var draft models.MessageDraft

	if !isMultipart(r) {
		err := decodeJSON(w, r, &draft)
		draft.ImageRef = ""
		return draft, err
	}

	limit := s.deps.Uploads.MaxBytes() + constants.MaxJSONBodyBytes
	if err := validation.ValidateHTTPRequestSize(r, limit); err != nil {
		return draft, err
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(constants.MaxMultipartMemoryMB * constants.BytesPerMegabyte); err != nil {
		return draft, formError(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	draft.AuthorID = r.FormValue("userId")
	draft.AuthorName = r.FormValue("userName")
	draft.Text = r.FormValue("text")
	draft.Language = r.FormValue("lang")
	if parentID := r.FormValue("parentId"); parentID != "" {
		draft.ParentID = &parentID
	}

	file, header, err := r.FormFile("image")
	switch {
	case stderrors.Is(err, http.ErrMissingFile):
		return draft, nil
	case err != nil:
		return draft, errors.NewValidationError("image", "", "could not read image")
	}
	defer file.Close()

	ref, err := s.deps.Uploads.Save(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		return draft, err
	}
	draft.ImageRef = ref
	return draft, nil
}

func (s *Server) handlePinMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := s.deps.Messages.PinMessage(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) handleInviteLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invite, err := s.deps.Groups.InviteLink(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, invite)
	}
}

func (s *Server) handleInviteQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qr, err := s.deps.Groups.InviteQRCode(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, qr)
	}
}

func (s *Server) handleSendOTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendOTPRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		info, err := s.deps.Auth.SendOTP(r.Context(), req.Phone)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sendOTPResponse{OK: true, Info: info})
	}
}

func (s *Server) handleVerifyOTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyOTPRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.deps.Auth.VerifyOTP(r.Context(), req.Phone, req.Name, req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, verifyOTPResponse{OK: true, User: user})
	}
}

func (s *Server) handleDetect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var image io.Reader
		if isMultipart(r) {
			limit := s.deps.Detector.MaxBytes() + constants.MaxJSONBodyBytes
			if err := validation.ValidateHTTPRequestSize(r, limit); err != nil {
				s.writeError(w, r, err)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			if err := r.ParseMultipartForm(constants.MaxMultipartMemoryMB * constants.BytesPerMegabyte); err != nil {
				s.writeError(w, r, formError(err))
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			if file, _, err := r.FormFile("image"); err == nil {
				defer file.Close()
				image = file
			}
		}

		result, err := s.deps.Detector.Detect(r.Context(), image)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewValidationError("body", "", "request body too large")
		}
		return errors.NewValidationError("body", "", "invalid JSON body")
	}
	return nil
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.NewValidationError("image", "", "image too large")
	}
	return errors.NewValidationError("body", "", "invalid multipart form")
}
