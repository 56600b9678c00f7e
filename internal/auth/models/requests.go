package models

import (
	"regexp"
	"strings"

	dErrors "eseva/pkg/domain-errors"
)

var (
	mobilePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	otpPattern    = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizeMobile strips spaces and dashes from a mobile number.
func NormalizeMobile(mobile string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(mobile))
}

// ValidateMobile checks a normalized mobile number.
func ValidateMobile(mobile string) error {
	if mobile == "" {
		return dErrors.New(dErrors.CodeValidation, "mobile is required")
	}
	if !mobilePattern.MatchString(mobile) {
		return dErrors.New(dErrors.CodeValidation, "mobile must be 10-15 digits")
	}
	return nil
}

type SendOTPRequest struct {
	Mobile string `json:"mobile"`
}

func (r *SendOTPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Mobile = NormalizeMobile(r.Mobile)
	return ValidateMobile(r.Mobile)
}

type VerifyOTPRequest struct {
	Mobile string `json:"mobile"`
	OTP    string `json:"otp"`
}

func (r *VerifyOTPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Mobile = NormalizeMobile(r.Mobile)
	r.OTP = strings.TrimSpace(r.OTP)
	if err := ValidateMobile(r.Mobile); err != nil {
		return err
	}
	if r.OTP == "" {
		return dErrors.New(dErrors.CodeValidation, "otp is required")
	}
	if !otpPattern.MatchString(r.OTP) {
		return dErrors.New(dErrors.CodeInvalidOTP, "invalid otp")
	}
	return nil
}
