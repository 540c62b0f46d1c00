package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// validate はリクエスト検証に使うvalidatorインスタンス。並行利用して安全。
var validate = newValidator()

// newValidator はJSONのフィールド名でエラーを報告するvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// violationMessages はフィールドとタグごとの違反メッセージ。
var violationMessages = map[string]map[string]string{
	"fullName": {
		"required": "Full name is required",
		"type":     "Full name must be a string",
	},
	"email": {
		"required": "Email is required",
		"email":    "Email must be valid",
		"type":     "Email must be a string",
	},
	"password": {
		"required": "Password is required",
		"min":      "Password must be at least 8 characters long",
		"max":      fmt.Sprintf("Password must be at most %d bytes long", maxPasswordBytes),
		"type":     "Password must be a string",
	},
}

// violationMessage はフィールドとタグに対応するメッセージを返す。
func violationMessage(field, tag string) string {
	if msg, ok := violationMessages[field][tag]; ok {
		return msg
	}
	return field + " is invalid"
}

// Validate はリクエストのフィールド制約を検証し、違反をフィールド順に返す。
// 違反が無い場合はnilを返す。
func (r RegisterRequest) Validate() []FieldViolation {
	var violations []FieldViolation

	err := validate.Struct(r)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			violations = append(violations, FieldViolation{
				Field:   fe.Field(),
				Message: violationMessage(fe.Field(), fe.Tag()),
			})
		}
	} else if err != nil {
		violations = append(violations, FieldViolation{Field: "body", Message: err.Error()})
	}

	if len(r.Password) > maxPasswordBytes {
		violations = append(violations, FieldViolation{
			Field:   "password",
			Message: violationMessage("password", "max"),
		})
	}
	return violations
}

// fieldTargets は受け付けるJSONキーと格納先の対応を返す。キーは大文字小文字を区別する。
func (r *RegisterRequest) fieldTargets() map[string]*string {
	return map[string]*string{
		"fullName": &r.FullName,
		"email":    &r.Email,
		"password": &r.Password,
	}
}

// decodeRegisterRequest はリクエストボディを厳密にデコードする。
// 受け付けるのは1つのJSONオブジェクトのみで、未知・重複したキー、文字列以外の値、
// 後続データは *ValidationError として返す。上限を超えたボディは ErrBodyTooLarge を返す。
// 空のボディは空のリクエストとして扱う。
func decodeRegisterRequest(body io.Reader) (RegisterRequest, error) {
	var req RegisterRequest
	dec := json.NewDecoder(body)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	if err != nil {
		return RegisterRequest{}, decodeError(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return RegisterRequest{}, invalidBodyError()
	}

	targets := req.fieldTargets()
	seen := make(map[string]bool, len(targets))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return RegisterRequest{}, decodeError(err)
		}
		key, _ := tok.(string)

		target, ok := targets[key]
		if !ok {
			return RegisterRequest{}, fieldError(key, "property "+key+" should not exist")
		}
		if seen[key] {
			return RegisterRequest{}, fieldError(key, "property "+key+" must not be repeated")
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return RegisterRequest{}, decodeError(err)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return RegisterRequest{}, fieldError(key, violationMessage(key, "type"))
		}
	}

	// 閉じ括弧
	if _, err := dec.Token(); err != nil {
		return RegisterRequest{}, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return RegisterRequest{}, decodeError(err)
		}
		return RegisterRequest{}, invalidBodyError()
	}
	return req, nil
}

// decodeError は読み込みエラーをサイズ超過とJSON不正に振り分ける。
func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: 上限 %d バイト", ErrBodyTooLarge, maxErr.Limit)
	}
	return invalidBodyError()
}

// fieldError は1フィールドの違反だけを持つValidationErrorを返す。
func fieldError(field, message string) error {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Message: message}}}
}

// invalidBodyError はボディ全体がJSONオブジェクトとして読めないことを示す。
func invalidBodyError() error {
	return fieldError("body", "Request body must be a valid JSON object")
}
