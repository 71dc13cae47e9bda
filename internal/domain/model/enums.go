package model

import "fmt"

// VaccinationType classifies the requested dose.
type VaccinationType string

const (
	VaccinationFirst  VaccinationType = "FIRST"
	VaccinationSecond VaccinationType = "SECOND"
	VaccinationBoost  VaccinationType = "BOOST"
)

var vaccinationTypes = map[string]VaccinationType{
	"FIRST":  VaccinationFirst,
	"SECOND": VaccinationSecond,
	"BOOST":  VaccinationBoost,
}

// ParseVaccinationType maps a string value to a VaccinationType.
// Unknown values are an error, not a zero value.
func ParseVaccinationType(s string) (VaccinationType, error) {
	if t, ok := vaccinationTypes[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown vaccination type %q", s)
}

// Variant is an optional vaccine-variant filter accepted by the search endpoint.
type Variant string

const (
	VariantOmicronBA1  Variant = "OMC_BA1"
	VariantOmicronBA45 Variant = "OMC_BA4-5"
)

var variants = map[string]Variant{
	"OMC_BA1":   VariantOmicronBA1,
	"OMC_BA4-5": VariantOmicronBA45,
}

// ParseVariant maps a string value to a Variant.
func ParseVariant(s string) (Variant, error) {
	if v, ok := variants[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// Vaccine identifies a vaccine product by the provider's numeric code.
type Vaccine string

const (
	VaccineAstraZeneca        Vaccine = "001"
	VaccineBiontechPfizer     Vaccine = "002"
	VaccineModerna            Vaccine = "003"
	VaccineJanssen            Vaccine = "005"
	VaccineNuvaxovid          Vaccine = "006"
	VaccineValneva            Vaccine = "008"
	VaccineBiontechPfizerBA1  Vaccine = "009"
	VaccineModernaSpikevax0   Vaccine = "010"
	VaccineBiontechPfizerBA45 Vaccine = "011"
)

var vaccines = map[string]Vaccine{
	"001": VaccineAstraZeneca,
	"002": VaccineBiontechPfizer,
	"003": VaccineModerna,
	"005": VaccineJanssen,
	"006": VaccineNuvaxovid,
	"008": VaccineValneva,
	"009": VaccineBiontechPfizerBA1,
	"010": VaccineModernaSpikevax0,
	"011": VaccineBiontechPfizerBA45,
}

// VaccineFromID maps a provider vaccine code to a Vaccine.
func VaccineFromID(id string) (Vaccine, error) {
	if v, ok := vaccines[id]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown vaccine ID %q", id)
}

// Outcome is the result of a single find/book attempt.
type Outcome string

const (
	OutcomeNotFound      Outcome = "not_found"
	OutcomeFound         Outcome = "found"
	OutcomeBooked        Outcome = "booked"
	OutcomeBookingFailed Outcome = "booking_failed"
	OutcomeCancelled     Outcome = "cancelled"
)
