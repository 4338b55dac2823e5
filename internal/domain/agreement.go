package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DefaultRepSignature is sent when the representative did not sign by hand.
const DefaultRepSignature = "Staff Signed"

// AgreementDraft is an agreement being filled in, not yet created on the backend.
// Every field holds raw operator input; coercion happens in Submission.
type AgreementDraft struct {
	// Payer ("client") section.
	ClientTitle        string `json:"clt_title"`
	ClientFirstName    string `json:"clt_first_name"`
	ClientLastName     string `json:"clt_last_name"`
	ClientEmail        string `json:"clt_email"`
	ClientPhone        string `json:"clt_phone"`
	ClientAddress      string `json:"clt_address"`
	ClientCity         string `json:"clt_city"`
	ClientState        string `json:"clt_state"`
	ClientZip          string `json:"clt_zip"`
	ClientRelationship string `json:"clt_relationship"`
	ResponsibleParty   string `json:"responsible_party"`

	// Care-recipient section.
	CareTitle     string `json:"care_title"`
	CareFirstName string `json:"care_first_name"`
	CareLastName  string `json:"care_last_name"`
	CareDOB       string `json:"care_dob"`
	CareAddress   string `json:"care_recipient_address"`
	CareCity      string `json:"care_city"`
	CareState     string `json:"care_state"`
	CareZip       string `json:"care_zip"`

	// Office section.
	BranchCode          string `json:"branch_code"`
	InitialInquiryDate  string `json:"initial_inquiry_date"`
	AgreementDate       string `json:"agreement_date"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	ServicesStartTime   string `json:"services_start_time"`
	HandledBy           string `json:"handled_by"`
	InstructionsGivenBy string `json:"instructions_given_by"`
	CareType            string `json:"care_type"`
	HourlyRate          string `json:"hourly_rate"`
	MileageRate         string `json:"mileage_rate"`
	RepSignature        string `json:"rep_signature"`
}

// NewAgreementDraft returns a draft with the intake form defaults.
func NewAgreementDraft(today time.Time) AgreementDraft {
	return AgreementDraft{
		ClientTitle:   "Mr.",
		ClientState:   "MD",
		CareTitle:     "Mrs.",
		AgreementDate: today.Format(DateLayout),
	}
}

var draftFields = map[string]func(*AgreementDraft) *string{
	"clt_title":              func(d *AgreementDraft) *string { return &d.ClientTitle },
	"clt_first_name":         func(d *AgreementDraft) *string { return &d.ClientFirstName },
	"clt_last_name":          func(d *AgreementDraft) *string { return &d.ClientLastName },
	"clt_email":              func(d *AgreementDraft) *string { return &d.ClientEmail },
	"clt_phone":              func(d *AgreementDraft) *string { return &d.ClientPhone },
	"clt_address":            func(d *AgreementDraft) *string { return &d.ClientAddress },
	"clt_city":               func(d *AgreementDraft) *string { return &d.ClientCity },
	"clt_state":              func(d *AgreementDraft) *string { return &d.ClientState },
	"clt_zip":                func(d *AgreementDraft) *string { return &d.ClientZip },
	"clt_relationship":       func(d *AgreementDraft) *string { return &d.ClientRelationship },
	"care_title":             func(d *AgreementDraft) *string { return &d.CareTitle },
	"care_first_name":        func(d *AgreementDraft) *string { return &d.CareFirstName },
	"care_last_name":         func(d *AgreementDraft) *string { return &d.CareLastName },
	"care_dob":               func(d *AgreementDraft) *string { return &d.CareDOB },
	"care_recipient_address": func(d *AgreementDraft) *string { return &d.CareAddress },
	"care_city":              func(d *AgreementDraft) *string { return &d.CareCity },
	"care_state":             func(d *AgreementDraft) *string { return &d.CareState },
	"care_zip":               func(d *AgreementDraft) *string { return &d.CareZip },
	"branch_code":            func(d *AgreementDraft) *string { return &d.BranchCode },
	"initial_inquiry_date":   func(d *AgreementDraft) *string { return &d.InitialInquiryDate },
	"agreement_date":         func(d *AgreementDraft) *string { return &d.AgreementDate },
	"start_date":             func(d *AgreementDraft) *string { return &d.StartDate },
	"end_date":               func(d *AgreementDraft) *string { return &d.EndDate },
	"services_start_time":    func(d *AgreementDraft) *string { return &d.ServicesStartTime },
	"handled_by":             func(d *AgreementDraft) *string { return &d.HandledBy },
	"instructions_given_by":  func(d *AgreementDraft) *string { return &d.InstructionsGivenBy },
	"care_type":              func(d *AgreementDraft) *string { return &d.CareType },
	"hourly_rate":            func(d *AgreementDraft) *string { return &d.HourlyRate },
	"mileage_rate":           func(d *AgreementDraft) *string { return &d.MileageRate },
	"rep_signature":          func(d *AgreementDraft) *string { return &d.RepSignature },
}

// DraftFieldNames lists the fields accepted by Set, sorted.
func DraftFieldNames() []string {
	names := make([]string, 0, len(draftFields))
	for name := range draftFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns one field by its wire name. responsible_party is derived and
// cannot be set directly.
func (d *AgreementDraft) Set(field, value string) error {
	ref, ok := draftFields[field]
	if !ok {
		return fmt.Errorf("unknown draft field %q", field)
	}
	*ref(d) = value
	if field == "clt_first_name" || field == "clt_last_name" {
		d.ResponsibleParty = strings.TrimSpace(d.ClientFirstName + " " + d.ClientLastName)
	}
	return nil
}

// Get reads one field by its wire name.
func (d *AgreementDraft) Get(field string) (string, bool) {
	if field == "responsible_party" {
		return d.ResponsibleParty, true
	}
	ref, ok := draftFields[field]
	if !ok {
		return "", false
	}
	return *ref(d), true
}

// AgreementSubmission is the create-agreement request body.
type AgreementSubmission struct {
	ClientTitle        string `json:"clt_title,omitempty"`
	ClientFirstName    string `json:"clt_first_name"`
	ClientLastName     string `json:"clt_last_name"`
	ClientEmail        string `json:"clt_email,omitempty"`
	ClientPhone        string `json:"clt_phone,omitempty"`
	ClientAddress      string `json:"clt_address"`
	ClientCity         string `json:"clt_city,omitempty"`
	ClientState        string `json:"clt_state,omitempty"`
	ClientZip          string `json:"clt_zip,omitempty"`
	ClientRelationship string `json:"clt_relationship,omitempty"`
	ResponsibleParty   string `json:"responsible_party,omitempty"`

	CareTitle     string  `json:"care_title,omitempty"`
	CareFirstName string  `json:"care_first_name"`
	CareLastName  string  `json:"care_last_name"`
	CareDOB       *string `json:"care_dob"`
	CareAddress   string  `json:"care_recipient_address,omitempty"`
	CareCity      string  `json:"care_city,omitempty"`
	CareState     string  `json:"care_state,omitempty"`
	CareZip       string  `json:"care_zip,omitempty"`

	BranchCode          string  `json:"branch_code"`
	InitialInquiryDate  *string `json:"initial_inquiry_date"`
	AgreementDate       *string `json:"agreement_date"`
	StartDate           string  `json:"start_date"`
	EndDate             *string `json:"end_date"`
	ServicesStartTime   string  `json:"services_start_time,omitempty"`
	HandledBy           string  `json:"handled_by,omitempty"`
	InstructionsGivenBy string  `json:"instructions_given_by,omitempty"`
	CareType            string  `json:"care_type,omitempty"`
	HourlyRate          float64 `json:"hourly_rate"`
	MileageRate         float64 `json:"mileage_rate"`

	ClientSignature string `json:"client_signature"`
	RepSignature    string `json:"rep_signature"`
}

// Submission coerces the draft into its wire shape. Rates that are unset,
// unparsable or negative become 0; start_date defaults to today; the other
// optional dates become null.
func (d *AgreementDraft) Submission(signature string, today time.Time) AgreementSubmission {
	startDate := strings.TrimSpace(d.StartDate)
	if startDate == "" {
		startDate = today.Format(DateLayout)
	}
	repSignature := d.RepSignature
	if strings.TrimSpace(repSignature) == "" {
		repSignature = DefaultRepSignature
	}

	return AgreementSubmission{
		ClientTitle:         d.ClientTitle,
		ClientFirstName:     d.ClientFirstName,
		ClientLastName:      d.ClientLastName,
		ClientEmail:         d.ClientEmail,
		ClientPhone:         d.ClientPhone,
		ClientAddress:       d.ClientAddress,
		ClientCity:          d.ClientCity,
		ClientState:         d.ClientState,
		ClientZip:           d.ClientZip,
		ClientRelationship:  d.ClientRelationship,
		ResponsibleParty:    d.ResponsibleParty,
		CareTitle:           d.CareTitle,
		CareFirstName:       d.CareFirstName,
		CareLastName:        d.CareLastName,
		CareDOB:             optionalDate(d.CareDOB),
		CareAddress:         d.CareAddress,
		CareCity:            d.CareCity,
		CareState:           d.CareState,
		CareZip:             d.CareZip,
		BranchCode:          d.BranchCode,
		InitialInquiryDate:  optionalDate(d.InitialInquiryDate),
		AgreementDate:       optionalDate(d.AgreementDate),
		StartDate:           startDate,
		EndDate:             optionalDate(d.EndDate),
		ServicesStartTime:   d.ServicesStartTime,
		HandledBy:           d.HandledBy,
		InstructionsGivenBy: d.InstructionsGivenBy,
		CareType:            d.CareType,
		HourlyRate:          ParseRate(d.HourlyRate),
		MileageRate:         ParseRate(d.MileageRate),
		ClientSignature:     signature,
		RepSignature:        repSignature,
	}
}

// ParseRate reads a non-negative decimal, returning 0 for anything else.
func ParseRate(raw string) float64 {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func optionalDate(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

// AgreementSummary is the read-only projection returned by the list endpoint.
type AgreementSummary struct {
	ID            int64   `json:"id"`
	PayerName     string  `json:"payer_name"`
	RecipientLast string  `json:"care_last_name"`
	BranchCode    string  `json:"branch_code"`
	HourlyRate    float64 `json:"hourly_rate"`
	Status        string  `json:"status,omitempty"`
}

// DocumentName is the suggested file name for the agreement's PDF.
func (a AgreementSummary) DocumentName() string {
	return DocumentName(a.ID, a.RecipientLast)
}

// DocumentName builds "Agreement_<last>.pdf", falling back to the ID.
func DocumentName(id int64, recipientLast string) string {
	last := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, strings.TrimSpace(recipientLast))
	if last == "" {
		last = strconv.FormatInt(id, 10)
	}
	return "Agreement_" + last + ".pdf"
}

// Branch is one office returned by branch lookup.
type Branch struct {
	Code      string `json:"branch_code"`
	Name      string `json:"branch_name"`
	StateCode string `json:"state_code"`
}
