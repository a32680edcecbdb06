package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-payments/internal/orders"
)

type amountRequest interface {
	amount() decimal.Decimal
}

// New returns a configured validator with the struct-level amount and
// address rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	v.RegisterStructValidation(positiveAmountValidation,
		CryptoPaymentRequest{}, CardPaymentRequest{}, PayPalPaymentRequest{}, CreateOrderRequest{})
	v.RegisterStructValidation(addressValidation, Address{})

	if err := v.RegisterValidation("order_status", func(fl validatorv10.FieldLevel) bool {
		return orders.Status(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Sprintf("validation: register order_status: %v", err))
	}

	return v
}

// positiveAmountValidation rejects zero, negative and missing amounts.
func positiveAmountValidation(sl validatorv10.StructLevel) {
	req, ok := sl.Current().Interface().(amountRequest)
	if !ok {
		return
	}
	if amt := req.amount(); !amt.IsPositive() {
		sl.ReportError(amt.String(), "amount", "Amount", "positive_amount", "")
	}
}

func addressValidation(sl validatorv10.StructLevel) {
	a := sl.Current().Interface().(Address)
	if a.Country == "" || a.PostalCode == "" {
		// required tags already report these
		return
	}
	if !SupportedCountry(a.Country) {
		sl.ReportError(a.Country, "country", "Country", "supported_country", "")
		return
	}
	if !ValidPostalCode(a.PostalCode, a.Country) {
		sl.ReportError(a.PostalCode, "postal_code", "PostalCode", "postal_code", fmt.Sprintf("invalid postal code for %s", a.Country))
	}
}
