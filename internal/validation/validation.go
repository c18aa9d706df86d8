// Package validation はリクエストの宣言的な検証を提供する。
// 検証ルールはリクエスト構造体のvalidateタグで宣言し、違反はフィールド単位のエラー一覧として返す。
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/model"
)

// エラーの発生箇所
const (
	LocationBody   = "body"
	LocationQuery  = "query"
	LocationParams = "params"
)

// maxBodySize はJSONリクエストボディの上限。
const maxBodySize = 1 << 20

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// validate はスレッドセーフで、構造体ごとのメタデータをキャッシュするため1インスタンスを共有する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct はvalidateタグに従ってsを検証する。
// 違反がある場合は全フィールド分をまとめたmodel.APIError（VALIDATION_FAILED）を返す。
func Struct(s any, location string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fieldErrs := make([]model.FieldError, 0, len(ves))
	for _, fe := range ves {
		fieldErrs = append(fieldErrs, model.FieldError{
			Type:     "field",
			Path:     fieldPath(fe),
			Msg:      message(fe),
			Value:    fe.Value(),
			Location: location,
		})
	}
	return model.NewValidationError(fieldErrs)
}

// DecodeJSON はリクエストボディをdstへデコードし、検証する。
// 不正なJSONは400（BAD_REQUEST）、検証エラーは400（VALIDATION_FAILED）になる。
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewBadRequestError("Invalid JSON body")
	}
	return Struct(dst, LocationBody)
}

// ParseID はパスパラメータのIDがUUID形式であることを検証する。
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", model.NewInvalidIDError(raw)
	}
	return id.String(), nil
}

// pageQuery はページング用クエリパラメータの検証ルール。
type pageQuery struct {
	Page  int    `form:"page" validate:"min=1"`
	Limit int    `form:"limit" validate:"min=1,max=100"`
	Sort  string `form:"sort" validate:"omitempty,oneof=name createdAt updatedAt category brand"`
	Order string `form:"order" validate:"omitempty,oneof=asc desc"`
}

// ParsePagination はpage・limit・sort・orderを検証してPageRequestを返す。
// pageの既定値は1、limitの既定値はdefaultLimit。
func ParsePagination(q url.Values, defaultLimit int) (model.PageRequest, error) {
	var fieldErrs []model.FieldError
	intParam := func(name string, def int) int {
		raw := q.Get(name)
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, model.FieldError{
				Type:     "field",
				Path:     name,
				Msg:      fmt.Sprintf("%s must be an integer", name),
				Value:    raw,
				Location: LocationQuery,
			})
			return def
		}
		return n
	}

	pq := pageQuery{
		Page:  intParam("page", 1),
		Limit: intParam("limit", defaultLimit),
		Sort:  q.Get("sort"),
		Order: q.Get("order"),
	}
	if len(fieldErrs) > 0 {
		return model.PageRequest{}, model.NewValidationError(fieldErrs)
	}
	if err := Struct(pq, LocationQuery); err != nil {
		return model.PageRequest{}, err
	}
	return model.PageRequest{Page: pq.Page, Limit: pq.Limit, Sort: pq.Sort, Order: pq.Order}, nil
}

// fieldPath はトップレベルの構造体名を除いたJSONパスを返す。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String
	isSlice := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array

	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "min":
		switch {
		case isString:
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case isSlice:
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		switch {
		case isString:
			return fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param())
		case isSlice:
			return fmt.Sprintf("%s cannot contain more than %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s cannot exceed %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s cannot exceed %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "Please provide a valid email"
	case "uuid", "uuid4":
		return "Invalid ID format"
	case "username":
		return "Username can only contain letters, numbers, and underscores"
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "latitude", "longitude":
		return fmt.Sprintf("%s must be a valid coordinate", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
