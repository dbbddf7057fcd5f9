package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
)

// Minimal internal validator to avoid external dependency. Supports:
// - required
// - refcode (SPH prefix followed by 7 upper-case alphanumerics)
// - walletaddr (0x-prefixed 40 hex chars)
// - nameok (letters, numbers, space, hyphen, apostrophe, 1-100 chars)

var (
	reRefCode    = regexp.MustCompile(`^SPH[A-Z0-9]{7}$`)
	reWalletAddr = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	reNameOK     = regexp.MustCompile(`^[A-Za-z0-9 \-']{1,100}$`)
)

// ValidateStruct inspects struct tags `validate:"..."` and returns the first error encountered.
func ValidateStruct(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.New("ValidateStruct expects a struct or pointer to struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		fv := v.Field(i)
		var sval string
		if fv.IsValid() && fv.Kind() == reflect.String {
			sval = fv.String()
		}
		for _, p := range parts {
			p = strings.TrimSpace(p)
			switch p {
			case "required":
				if sval == "" {
					return errors.New(field.Name + " is required")
				}
			case "refcode":
				if sval != "" && !reRefCode.MatchString(sval) {
					return errors.New(field.Name + " must be a referral code like SPHXXXXXXX")
				}
			case "walletaddr":
				if sval != "" && !reWalletAddr.MatchString(sval) {
					return errors.New(field.Name + " must be a 0x-prefixed wallet address")
				}
			case "nameok":
				if sval != "" && !reNameOK.MatchString(sval) {
					return errors.New(field.Name + " contains invalid characters")
				}
			}
		}
	}
	return nil
}
