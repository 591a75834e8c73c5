package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/imaging"
	"github.com/gorilla/mux"
)

const profileImageField = "profileImage"

type CandidatesHandler struct {
	store  *candidates.Store
	cities candidates.CityChecker
}

func NewCandidatesHandler(store *candidates.Store, cities candidates.CityChecker) *CandidatesHandler {
	return &CandidatesHandler{store: store, cities: cities}
}

type candidateRequest struct {
	FullName            string `json:"fullName"`
	Email               string `json:"email"`
	PhoneNumber         string `json:"phoneNumber"`
	Age                 int    `json:"age"`
	City                string `json:"city"`
	Hobbies             string `json:"hobbies"`
	WhyPerfectCandidate string `json:"whyPerfectCandidate"`
}

type createCandidateResponse struct {
	ID string `json:"id"`
}

func (h *CandidatesHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}

	id, err := h.store.Add(r.Context(), form).Wait(r.Context())
	if err != nil {
		logger.Error("add candidate", slog.Any("err", err))
		writeError(w, "failed to register candidate", http.StatusInternalServerError)
		return
	}

	writeJSON(w, createCandidateResponse{ID: id}, http.StatusCreated)
}

func (h *CandidatesHandler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.store.FindByID(mux.Vars(r)["id"])
	if !ok {
		writeError(w, "candidate not found", http.StatusNotFound)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

// LookupCandidate starts the edit flow: the candidate registered under
// ?email= becomes this session's current candidate.
func (h *CandidatesHandler) LookupCandidate(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, "email is required", http.StatusBadRequest)
		return
	}

	c, ok := h.store.FindByEmail(email)
	if !ok {
		writeError(w, "no registration found for this email", http.StatusNotFound)
		return
	}
	if !c.CanEdit {
		writeError(w, "the edit window for this registration has closed", http.StatusForbidden)
		return
	}
	h.store.SetCurrent(r.Context(), c.ID)

	writeJSON(w, c, http.StatusOK)
}

func (h *CandidatesHandler) CurrentCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.store.CurrentCandidate()
	if !ok {
		writeError(w, "no current candidate", http.StatusNotFound)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

func (h *CandidatesHandler) UpdateCandidate(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}

	updated, err := h.store.Update(r.Context(), mux.Vars(r)["id"], form).Wait(r.Context())
	if err != nil {
		logger.Error("update candidate", slog.Any("err", err))
		writeError(w, "failed to update candidate", http.StatusInternalServerError)
		return
	}
	if !updated {
		writeError(w, "candidate not found or no longer editable", http.StatusConflict)
		return
	}

	c, _ := h.store.FindByID(mux.Vars(r)["id"])
	writeJSON(w, c, http.StatusOK)
}

func (h *CandidatesHandler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	if !h.store.Remove(r.Context(), mux.Vars(r)["id"]) {
		writeError(w, "candidate not found or no longer editable", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CandidatesHandler) DeleteCurrentCandidate(w http.ResponseWriter, r *http.Request) {
	if !h.store.RemoveCurrent(r.Context()) {
		writeError(w, "no editable current candidate", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeForm reads a multipart or JSON registration form and validates it.
// On failure the response has already been written.
func (h *CandidatesHandler) decodeForm(w http.ResponseWriter, r *http.Request) (candidates.Form, bool) {
	var form candidates.Form

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(imaging.MaxSize); err != nil {
			writeError(w, "invalid multipart form", http.StatusBadRequest)
			return form, false
		}
		age, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("age")))
		form = candidates.Form{
			FullName:            r.FormValue("fullName"),
			Email:               r.FormValue("email"),
			PhoneNumber:         r.FormValue("phoneNumber"),
			Age:                 age,
			City:                r.FormValue("city"),
			Hobbies:             r.FormValue("hobbies"),
			WhyPerfectCandidate: r.FormValue("whyPerfectCandidate"),
		}
		upload, err := readUpload(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return form, false
		}
		form.ProfileImage = upload
	default:
		var req candidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request", http.StatusBadRequest)
			return form, false
		}
		form = candidates.Form{
			FullName:            req.FullName,
			Email:               req.Email,
			PhoneNumber:         req.PhoneNumber,
			Age:                 req.Age,
			City:                req.City,
			Hobbies:             req.Hobbies,
			WhyPerfectCandidate: req.WhyPerfectCandidate,
		}
	}

	if err := candidates.ValidateForm(form, h.cities); err != nil {
		var verr *candidates.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, errorResponse{Error: "validation failed", Fields: verr.Fields}, http.StatusBadRequest)
		} else {
			writeError(w, err.Error(), http.StatusBadRequest)
		}
		return form, false
	}
	return form, true
}

// readUpload returns the validated profile image of a multipart request, or
// nil when none was attached. The file is buffered so encoding does not
// depend on the request outliving the handler.
func readUpload(r *http.Request) (*imaging.Upload, error) {
	file, header, err := r.FormFile(profileImageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	u := &imaging.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	}
	if u.ContentType == "application/octet-stream" {
		u.ContentType = ""
	}
	if err := imaging.Validate(u); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(u.Data, imaging.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > imaging.MaxSize {
		return nil, imaging.ErrTooLarge
	}
	u.Data = bytes.NewReader(data)
	u.Size = int64(len(data))
	return u, nil
}
