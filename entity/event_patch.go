package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// UpdatableEventFields is the allow-list of keys accepted by an event update.
// Creator, id and attendees are never writable.
var UpdatableEventFields = []string{
	"title",
	"description",
	"date",
	"time",
	"location",
	"category",
	"price",
	"image_url",
	"admission_free",
}

type EventPatch struct {
	Title         *string
	Description   *string
	Date          *string
	Time          *string
	Location      *string
	Category      *Category
	Price         *decimal.Decimal
	ImageURL      *string
	AdmissionFree *bool
}

// ParseEventPatch drops keys outside the allow-list and nil values, then coerces the rest:
// price to a decimal, admission_free to a bool, everything else to a string.
func ParseEventPatch(fields map[string]any) (EventPatch, error) {
	var patch EventPatch

	allowed := lo.OmitBy(lo.PickByKeys(fields, UpdatableEventFields), func(_ string, v any) bool {
		return v == nil
	})

	for key, value := range allowed {
		switch key {
		case "price":
			price, err := coercePrice(value)
			if err != nil {
				return EventPatch{}, err
			}
			patch.Price = &price
		case "admission_free":
			admissionFree := coerceBool(value)
			patch.AdmissionFree = &admissionFree
		case "title":
			title := coerceString(value)
			if err := ValidateTitle(title); err != nil {
				return EventPatch{}, err
			}
			patch.Title = &title
		case "date":
			date := coerceString(value)
			if err := ValidateDate(date); err != nil {
				return EventPatch{}, err
			}
			patch.Date = &date
		case "category":
			category, err := ParseCategory(coerceString(value))
			if err != nil {
				return EventPatch{}, err
			}
			patch.Category = &category
		case "description":
			patch.Description = lo.ToPtr(coerceString(value))
		case "time":
			eventTime := coerceString(value)
			if err := ValidateTime(eventTime); err != nil {
				return EventPatch{}, err
			}
			patch.Time = &eventTime
		case "location":
			patch.Location = lo.ToPtr(coerceString(value))
		case "image_url":
			patch.ImageURL = lo.ToPtr(coerceString(value))
		}
	}

	return patch, nil
}

func coercePrice(value any) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		err   error
	)

	switch v := value.(type) {
	case decimal.Decimal:
		price = v
	case float64:
		price = decimal.NewFromFloat(v)
	case int:
		price = decimal.NewFromInt(int64(v))
	case int64:
		price = decimal.NewFromInt(v)
	case json.Number:
		price, err = decimal.NewFromString(v.String())
	case string:
		if strings.TrimSpace(v) == "" {
			price = decimal.Zero
		} else {
			price, err = decimal.NewFromString(strings.TrimSpace(v))
		}
	case bool:
		if v {
			price = decimal.NewFromInt(1)
		}
	default:
		err = fmt.Errorf("unsupported type %T", value)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price is not a number: %v", ErrValidation, err)
	}

	return NormalizePrice(price)
}

// coerceBool follows truthiness: zero values are false. Strings that parse as a boolean use that value.
func coerceBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
