// Package form decodes and validates the two visitor forms. Validation rules
// live in struct tags and are enforced by go-playground/validator; nothing in
// this package touches storage.
package form

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"formvault/internal/submission/models"
)

// FormErrorKey holds errors that belong to the whole form rather than a field.
const FormErrorKey = "_form"

// multipart parts above this size spill to temp files while parsing.
const maxMemory = 8 << 20

const unreadableUpload = "Could not read the uploaded file."

// FieldErrors maps an HTML field name to a message shown next to it.
type FieldErrors map[string]string

func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Upload is a file part read fully into memory.
type Upload struct {
	Filename string
	Content  []byte
}

// RegisterForm is the first step: identity, two files and a comment.
type RegisterForm struct {
	Name      string `form:"name" validate:"required,max=100"`
	LastName  string `form:"last_name" validate:"required,max=100"`
	Comment   string `form:"free_field" validate:"max=1000"`
	PDFName   string `form:"pdf_file" validate:"required,max=1000,fileext=pdf doc docx"`
	ImageName string `form:"img_file" validate:"required,max=1000,fileext=jpg png pdf"`

	PDF   []byte `validate:"-"`
	Image []byte `validate:"-"`
}

// Input converts a validated form into the service input.
func (f *RegisterForm) Input() models.RegisterInput {
	return models.RegisterInput{
		Name:          f.Name,
		LastName:      f.LastName,
		Comment:       f.Comment,
		PDFFilename:   f.PDFName,
		PDF:           f.PDF,
		ImageFilename: f.ImageName,
		Image:         f.Image,
	}
}

// Values returns the text inputs so a rejected form can be re-rendered.
func (f *RegisterForm) Values() map[string]string {
	return map[string]string{
		"name":       f.Name,
		"last_name":  f.LastName,
		"free_field": f.Comment,
	}
}

// EmailForm is the second step.
type EmailForm struct {
	Email string `form:"email" validate:"required,email,max=100"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// fileext=pdf doc docx: the filename's extension, lowercased, must be listed.
	if err := v.RegisterValidation("fileext", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" {
			return true
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext == "" {
			return false
		}
		for _, allowed := range strings.Fields(fl.Param()) {
			if ext == allowed {
				return true
			}
		}
		return false
	}); err != nil {
		panic(fmt.Sprintf("register fileext validation: %v", err))
	}
	return v
}

// DecodeRegister reads the multipart register form. The request body should
// already be capped with http.MaxBytesReader. The returned form is never nil
// so callers can re-render prior input next to the errors.
func DecodeRegister(r *http.Request) (*RegisterForm, FieldErrors) {
	f := &RegisterForm{}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return f, FieldErrors{FormErrorKey: parseErrorMessage(err)}
	}

	f.Name = strings.TrimSpace(r.PostFormValue("name"))
	f.LastName = strings.TrimSpace(r.PostFormValue("last_name"))
	f.Comment = r.PostFormValue("free_field")

	errs := FieldErrors{}
	if up, err := readUpload(r, "pdf_file"); err != nil {
		errs["pdf_file"] = unreadableUpload
	} else if up != nil {
		f.PDFName, f.PDF = up.Filename, up.Content
	}
	if up, err := readUpload(r, "img_file"); err != nil {
		errs["img_file"] = unreadableUpload
	} else if up != nil {
		f.ImageName, f.Image = up.Filename, up.Content
	}

	for field, msg := range Validate(f) {
		if !errs.Has(field) {
			errs[field] = msg
		}
	}
	if len(errs) == 0 {
		return f, nil
	}
	return f, errs
}

// DecodeEmail reads the email form from a urlencoded or multipart body.
func DecodeEmail(r *http.Request) (*EmailForm, FieldErrors) {
	f := &EmailForm{}
	if err := r.ParseForm(); err != nil {
		return f, FieldErrors{FormErrorKey: parseErrorMessage(err)}
	}
	f.Email = strings.TrimSpace(r.PostFormValue("email"))
	return f, Validate(f)
}

// Validate runs the struct tag rules and returns nil when the value is valid.
func Validate(v any) FieldErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{FormErrorKey: "Invalid form submission."}
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "email":
		return "Invalid email address."
	case "fileext":
		return "Wrong format! Allowed: " + strings.Join(strings.Fields(fe.Param()), ", ") + "."
	default:
		return "Invalid value."
	}
}

// readUpload returns nil without error when the field has no file.
func readUpload(r *http.Request, field string) (*Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, nil
	}
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &Upload{Filename: header.Filename, Content: content}, nil
}

func parseErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Sprintf("Upload too large: the limit is %d MB.", tooLarge.Limit/(1024*1024))
	}
	return "Invalid form submission."
}
