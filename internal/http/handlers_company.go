package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"taxbridge/internal/core"
	"taxbridge/internal/country"
	"taxbridge/internal/log"
	"taxbridge/internal/logo"
)

// multipartOverhead is the slack allowed above the file limit for form
// boundaries and the companyName field.
const multipartOverhead = 64 << 10

// logoTypes maps accepted sniffed content types to the stored extension.
// Only formats the PDF exporter can decode are accepted.
var logoTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
}

type companyResponse struct {
	Company core.CompanyProfile `json:"company"`
}

type companiesResponse struct {
	Companies []core.CompanyProfile `json:"companies"`
}

type uploadResponse struct {
	PublicURL string `json:"publicUrl"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	created, err := s.deps.Profiles.Create(r.Context(), parser.Profile())
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.profileWrites, 1)
	NewResponse().Status(http.StatusCreated).JSON(companyResponse{Company: created}).Write(w)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	wallet := sanitizeInput(r.URL.Query().Get("wallet_address"))
	list, err := s.deps.Profiles.List(r.Context(), wallet)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if list == nil {
		list = []core.CompanyProfile{}
	}
	NewResponse().JSON(companiesResponse{Companies: list}).Write(w)
}

func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	wallet := sanitizeInput(r.URL.Query().Get("wallet_address"))
	if wallet == "" {
		wallet = parser.Get("wallet_address")
	}
	updated, err := s.deps.Profiles.Update(r.Context(), wallet, parser.Patch())
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.profileWrites, 1)
	NewResponse().JSON(companyResponse{Company: updated}).Write(w)
}

func (s *Server) handleUploadLogo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.Logos == nil {
		s.fail(w, r, log.OpUpload, core.NewInternal(errors.New("logo storage not configured")))
		return
	}

	limit := s.opts.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			PayloadTooLargeError(limit).Write(w)
			return
		}
		s.fail(w, r, log.OpUpload, core.NewValidation("malformed multipart body", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	owner := sanitizeInput(r.FormValue("companyName"))
	if owner == "" {
		s.fail(w, r, log.OpUpload, core.NewValidation("companyName is required", nil))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, log.OpUpload, core.NewValidation("file is required", err))
		return
	}
	defer file.Close()
	if header.Size > limit {
		PayloadTooLargeError(limit).Write(w)
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.fail(w, r, log.OpUpload, core.NewValidation("file is empty", err))
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := logoTypes[contentType]
	if !ok {
		s.fail(w, r, log.OpUpload, core.NewValidation(fmt.Sprintf("unsupported logo type %q", contentType), nil))
		return
	}

	object := logo.ObjectName(owner, "logo."+ext, s.now())
	url, err := s.deps.Logos.Put(ctx, object, contentType, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		s.fail(w, r, log.OpUpload, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.uploads, 1)
	log.FromContext(ctx).InfoContext(ctx, "Logo uploaded",
		log.FieldComponent, log.ComponentLogo,
		log.FieldObject, object,
		"bytes", header.Size)
	NewResponse().Status(http.StatusCreated).JSON(uploadResponse{PublicURL: url}).Write(w)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Countries.List(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if list == nil {
		list = []country.Country{}
	}
	NewResponse().JSON(list).Write(w)
}

// handleLogo streams a stored logo. Object names are unique per upload, so
// responses are cacheable.
func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	object := r.PathValue("object")
	if s.deps.Logos == nil || !logo.ValidObject(object) {
		s.fail(w, r, log.OpRead, core.NewNotFound("logo not found"))
		return
	}

	rc, contentType, err := s.deps.Logos.Open(r.Context(), object)
	if err != nil {
		w.Header().Del("Cache-Control")
		s.fail(w, r, log.OpRead, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Logo stream interrupted",
			log.FieldObject, object, log.FieldError, err.Error())
	}
}
