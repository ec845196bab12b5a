package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/hr-ticketing/internal/service"
	apperrors "github.com/spec-kit/hr-ticketing/pkg/util/errorutil"
)

// validateStruct runs struct tag validation and converts failures to a ValidationError.
func validateStruct(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		details[strings.ToLower(fe.Field())] = msg
	}
	return apperrors.NewValidationError("invalid payload", details)
}

func readUpload(fh *multipart.FileHeader) (service.AttachmentUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.AttachmentUpload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return service.AttachmentUpload{}, err
	}
	return service.AttachmentUpload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

// parseBound accepts RFC3339 or a calendar date. A date-only upper bound covers the whole day.
func parseBound(field, value string, upper bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid date", map[string]any{field: "must be RFC3339 or YYYY-MM-DD"})
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
