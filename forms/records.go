package forms

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ConsultationsTable  = "Consultations"
	LawFirmTable        = "Reach Out - Law Firm"
	CandidateTable      = "Reach Out - Candidate"
	StatusPending       = "pending"
	scheduledDateLayout = "2 January 2006"
)

var Services = []string{
	"strategic_election_campaign",
	"trademark_intellectual_property_advisory",
	"energy_environment_sustainability_advisory",
	"hospital_healthcare_ambulance_services_advisory",
}

var Consultants = []string{"sanjay_singh"}

var TimeSlots = []string{"10:00 AM", "11:30 AM", "02:00 PM", "04:00 PM", "05:30 PM"}

// Consultation is a booked consultation slot.
type Consultation struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required"`
	MethodOfContact string `json:"method_of_contact" validate:"required,oneof=email phone"`
	ServiceID       string `json:"service_id" validate:"omitempty,service"`
	ConsultantID    string `json:"consultant_id" validate:"omitempty,consultant"`
	ScheduledDate   string `json:"scheduled_date" validate:"required"`
	ScheduledTime   string `json:"scheduled_time" validate:"required,timeslot"`
	Status          string `json:"status"`
}

// FormatScheduledDate renders a day the way bookings store it, e.g. "7 March 2025".
func FormatScheduledDate(t time.Time) string {
	return t.Format(scheduledDateLayout)
}

// LawFirmInquiry is the contact form for organizations.
type LawFirmInquiry struct {
	OrganizationName string `json:"organization_name" validate:"required"`
	EmailAddress     string `json:"email_address" validate:"required,email"`
	Subject          string `json:"subject" validate:"required"`
	Message          string `json:"message"`
}

// CandidateInquiry is the contact form for job candidates.
type CandidateInquiry struct {
	CandidateName string `json:"candidate_name" validate:"required"`
	EmailAddress  string `json:"email_address" validate:"required,email"`
	Subject       string `json:"subject" validate:"required"`
	Message       string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "service", Services)
	mustRegister(v, "consultant", Consultants)
	mustRegister(v, "timeslot", TimeSlots)
	return v
}

func mustRegister(v *validator.Validate, tag string, allowed []string) {
	if err := v.RegisterValidation(tag, oneOf(allowed)); err != nil {
		panic(fmt.Sprintf("forms: register %q validation: %v", tag, err))
	}
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	}
}
