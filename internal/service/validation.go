package service

import (
	"strings"

	"github.com/adserve/adzone/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("slug", validateSlugFormat)
}

// validateSlugFormat accepts lowercase alphanumerics separated by single
// hyphens: "sidebar-top", "tech-news".
func validateSlugFormat(fl validator.FieldLevel) bool {
	slug := fl.Field().String()
	if slug == "" || strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return false
	}
	prevHyphen := false
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			prevHyphen = false
		case r == '-':
			if prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return true
}

// checkInput runs struct validation and converts the first failure into a
// domain.ValidationError so transport can map it without importing the
// validator package.
func checkInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &domain.ValidationError{
			Field:  strings.ToLower(fe.Field()),
			Reason: reasonFor(fe),
		}
	}
	return &domain.ValidationError{Field: "input", Reason: err.Error()}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a well-formed URL"
	case "slug":
		return "must be a lowercase hyphenated slug"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
