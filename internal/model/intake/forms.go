package intake

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// ValidationError reports the first invalid field of a form.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var timeSlotPattern = regexp.MustCompile(`^([01]\d|2[0-3]):00$`)

// ConsultationRequest is the clinic consultation form.
type ConsultationRequest struct {
	FullName            string    `json:"fullName"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	AppointmentDateTime string    `json:"appointmentDateTime"`
	ConsultationType    string    `json:"consultationType"`
	Reason              string    `json:"reason"`
	Services            []string  `json:"services"`
	AdditionalNotes     string    `json:"additionalNotes"`
	HearAboutUs         string    `json:"hearAboutUs"`
	HearAboutUsOther    string    `json:"hearAboutUsOther"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// Validate checks required fields.
func (r ConsultationRequest) Validate() error {
	if strings.TrimSpace(r.FullName) == "" {
		return invalid("fullName", "is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Phone) == "" {
		return invalid("phone", "is required")
	}
	if strings.TrimSpace(r.AppointmentDateTime) == "" {
		return invalid("appointmentDateTime", "is required")
	}
	switch r.ConsultationType {
	case "in-person", "virtual":
	default:
		return invalid("consultationType", "must be in-person or virtual")
	}
	if r.HearAboutUs == "other" && strings.TrimSpace(r.HearAboutUsOther) == "" {
		return invalid("hearAboutUsOther", "is required when hearAboutUs is other")
	}
	return nil
}

// BookingRequest is the short appointment booking form.
type BookingRequest struct {
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Message       string    `json:"message"`
	PreferredDate string    `json:"preferredDate"`
	PreferredTime string    `json:"preferredTime"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Validate checks required fields.
func (r BookingRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name", "is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.PreferredDate) == "" {
		return invalid("preferredDate", "is required")
	}
	switch r.PreferredTime {
	case "", "morning", "afternoon", "evening":
	default:
		return invalid("preferredTime", "must be morning, afternoon or evening")
	}
	return nil
}

// SampleCollectionRequest asks for an at-home sample pickup.
type SampleCollectionRequest struct {
	TestType            string    `json:"testType"`
	FullName            string    `json:"fullName"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	DateOfBirth         string    `json:"dateOfBirth"`
	Address             string    `json:"address"`
	PreferredDate       string    `json:"preferredDate"`
	PreferredTime       string    `json:"preferredTime"`
	SpecialInstructions string    `json:"specialInstructions"`
	AgreedToTerms       bool      `json:"agreedToTerms"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// Validate checks required fields against the sample-test catalog.
func (r SampleCollectionRequest) Validate(catalog *Catalog) error {
	if catalog != nil {
		if _, ok := catalog.FindTest(r.TestType); !ok {
			return invalid("testType", "is not a known sample test")
		}
	} else if strings.TrimSpace(r.TestType) == "" {
		return invalid("testType", "is required")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return invalid("fullName", "is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Address) == "" {
		return invalid("address", "is required")
	}
	if strings.TrimSpace(r.PreferredDate) == "" {
		return invalid("preferredDate", "is required")
	}
	if r.PreferredTime != "" {
		if !timeSlotPattern.MatchString(r.PreferredTime) {
			return invalid("preferredTime", "must be an HH:00 slot")
		}
		if catalog != nil && !catalog.HasTimeSlot(r.PreferredTime) {
			return invalid("preferredTime", "is not an offered slot")
		}
	}
	if !r.AgreedToTerms {
		return invalid("agreedToTerms", "must be accepted")
	}
	return nil
}

// ChatbaseMessage is a free-text note forwarded to the support inbox.
type ChatbaseMessage struct {
	Message     string    `json:"message"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Validate checks the message is not blank.
func (m ChatbaseMessage) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return invalid("message", "is required")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("email", "is not a valid address")
	}
	return nil
}
