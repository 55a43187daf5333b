// Package numfmt formats North American phone numbers for display and input.
package numfmt

//go:generate go tool errtrace -w .

import (
	"strings"
	"unicode"

	"braces.dev/errtrace"
	"github.com/nyaruka/phonenumbers"

	"github.com/ghettovoice/softphone/internal/errorutil"
)

// Mask is the display mask of a national number. Each # is replaced by a digit.
const Mask = "(###) ###-####"

// DefaultRegion is the region assumed for numbers without a country code.
const DefaultRegion = "US"

// FormatE164 formats an E.164 number for display, e.g. "+15552221111" as "(555) 222-1111".
// Numbers of other countries are formatted in the international format.
// Input that cannot be parsed as a phone number is masked as is.
func FormatE164(number string) string {
	num, err := phonenumbers.Parse(number, DefaultRegion)
	if err != nil {
		return ApplyMask(strings.Replace(number, "+1", "", 1))
	}
	if num.GetCountryCode() != 1 {
		return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	}
	return ApplyMask(phonenumbers.GetNationalSignificantNumber(num))
}

// ToE164 parses a number typed by the user in the region and returns its E.164 form.
func ToE164(number, region string) (string, error) {
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid phone number %q", number))
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// InputDigit appends the digit to a partially formatted number and re-applies the mask.
// An empty digit deletes the last digit. The second result is false if the
// digit is not a decimal digit or there is nothing to delete.
func InputDigit(digit, number string) (string, bool) {
	switch {
	case digit == "":
		clean := RemoveFormatting(number)
		if number == "" {
			return "", false
		}
		if clean == "" {
			return ApplyMask(clean), true
		}
		return ApplyMask(clean[:len(clean)-1]), true
	case len(digit) == 1 && digit[0] >= '0' && digit[0] <= '9':
		return ApplyMask(RemoveFormatting(number) + digit), true
	default:
		return "", false
	}
}

// RemoveFormatting strips all characters but decimal digits.
func RemoveFormatting(number string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
}

// ApplyMask formats the digits with [Mask].
// A partial number is formatted up to its last digit; a number with more
// digits than the mask holds is returned unchanged.
func ApplyMask(number string) string {
	digits := strings.TrimFunc(number, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits == "" {
		return number
	}

	var sb strings.Builder
	left := digits
	for i := 0; i < len(Mask) && left != ""; i++ {
		if Mask[i] == '#' {
			sb.WriteByte(left[0])
			left = left[1:]
		} else {
			sb.WriteByte(Mask[i])
		}
	}
	if left != "" {
		return number
	}
	return sb.String()
}

const ErrInvalidArgument = errorutil.ErrInvalidArgument
