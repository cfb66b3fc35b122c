package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Column limits of the events table.
const (
	MaxTitleLength = 255
	MaxTimeLength  = 32
	priceScale     = 2
)

// MaxPrice is the largest value NUMERIC(10, 2) holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

type Category string

const (
	CategoryBusiness  Category = "business"
	CategorySocial    Category = "social"
	CategoryEducation Category = "education"
	CategoryOther     Category = "other"
)

var Categories = []Category{CategoryBusiness, CategorySocial, CategoryEducation, CategoryOther}

// ParseCategory maps an empty value to CategoryOther.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
}

type Event struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Location      string          `json:"location"`
	Organizer     string          `json:"organizer"`
	ImageURL      string          `json:"image_url"`
	Price         decimal.Decimal `json:"price"`
	AdmissionFree bool            `json:"admission_free"`
	Category      Category        `json:"category"`
	CreatorID     string          `json:"creator_id"`
	Attendees     []string        `json:"attendees"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsFree decides the booking path. AdmissionFree is display-only and never skips payment.
func (e Event) IsFree() bool {
	return e.Price.IsZero()
}

func (e Event) IsCreator(userID string) bool {
	return userID != "" && e.CreatorID == userID
}

type EventInput struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Location      string          `json:"location"`
	Organizer     string          `json:"organizer"`
	ImageURL      string          `json:"image_url"`
	Price         decimal.Decimal `json:"price"`
	AdmissionFree bool            `json:"admission_free"`
	Category      string          `json:"category"`
}

func (in EventInput) Validate() error {
	if err := ValidateTitle(in.Title); err != nil {
		return err
	}
	if err := ValidateDate(in.Date); err != nil {
		return err
	}
	if err := ValidateTime(in.Time); err != nil {
		return err
	}
	if _, err := NormalizePrice(in.Price); err != nil {
		return err
	}
	if _, err := ParseCategory(in.Category); err != nil {
		return err
	}
	return nil
}

func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(strings.TrimSpace(title)) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

func ValidateTime(t string) error {
	if utf8.RuneCountInString(t) > MaxTimeLength {
		return fmt.Errorf("%w: time must be at most %d characters", ErrValidation, MaxTimeLength)
	}
	return nil
}

// NormalizePrice rounds to cents, half away from zero, as the price column stores it.
func NormalizePrice(price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: price must be 0 or more", ErrValidation)
	}

	rounded := price.Round(priceScale)
	if rounded.GreaterThan(MaxPrice) {
		return decimal.Decimal{}, fmt.Errorf("%w: price must be at most %s", ErrValidation, MaxPrice)
	}

	return rounded, nil
}

func ValidateDate(date string) error {
	if strings.TrimSpace(date) == "" {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date must be formatted as YYYY-MM-DD", ErrValidation)
	}
	return nil
}

type EventFilter struct {
	Category Category
}
