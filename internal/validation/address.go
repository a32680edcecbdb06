package validation

import (
	"regexp"
	"strings"
)

var (
	usPostal = regexp.MustCompile(`^(\d{5}(-\d{4})?|\d{9})$`)
	caPostal = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z][ -]?\d[A-Za-z]\d$`)
	ukPostal = regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]? ?\d[A-Za-z]{2}$`)
)

// shipping destinations; UK is used rather than GB
var supportedCountries = map[string]bool{}

func init() {
	for _, c := range strings.Fields(`
		US CA UK AU DE FR JP BR IN CN RU MX ES IT NL SE NO DK FI PT GR IE PL AT CH BE SG NZ ZA AE
		SA KR TW HK TH MY ID PH VN TR IL EG NG KE ZW GH MA DZ TN AR CL CO PE VE EC BO PY UY CR PA
		DO JM TT BS BB LC GD VC AG KN DM BZ GT SV HN NI CU HT PR GU VI MP AS FM MH PW WS TO FJ PG
		SB VU KI TV NR`) {
		supportedCountries[c] = true
	}
}

// SupportedCountry reports whether orders can ship to the ISO-like code.
func SupportedCountry(code string) bool {
	return supportedCountries[strings.ToUpper(code)]
}

// ValidPostalCode checks the format for US, CA and UK. Other supported
// countries only need a non-empty code.
func ValidPostalCode(postalCode, country string) bool {
	switch strings.ToUpper(country) {
	case "US":
		return usPostal.MatchString(postalCode)
	case "CA":
		return caPostal.MatchString(postalCode)
	case "UK":
		return ukPostal.MatchString(postalCode)
	default:
		return strings.TrimSpace(postalCode) != ""
	}
}

// FormatAddress title-cases street and city and normalizes the postal code.
// The address is assumed valid.
func FormatAddress(a Address) Address {
	a.Country = strings.ToUpper(a.Country)
	a.Street = titleWords(a.Street)
	a.City = titleWords(a.City)
	a.PostalCode = formatPostalCode(a.PostalCode, a.Country)
	return a
}

func formatPostalCode(pc, country string) string {
	switch country {
	case "US":
		if len(pc) == 9 {
			return pc[:5] + "-" + pc[5:]
		}
	case "CA":
		pc = strings.ToUpper(pc)
		if len(pc) == 6 {
			return pc[:3] + " " + pc[3:]
		}
	case "UK":
		return strings.ToUpper(pc)
	}
	return pc
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
