package payments

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var sensitiveKeys = map[string]bool{
	"apikey":        true,
	"api_key":       true,
	"clientsecret":  true,
	"webhooksecret": true,
	"cardnumber":    true,
	"card":          true,
	"cvv":           true,
	"password":      true,
}

// Sanitize returns a copy of data without credential or card fields, at any
// depth. Keys are matched case-insensitively.
func Sanitize(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if sensitiveKeys[strings.ToLower(k)] {
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			v = Sanitize(nested)
		}
		out[k] = v
	}
	return out
}

// GeneratePaymentID returns pay_<unix millis>_<9 base36 chars>. intn must
// return a value in [0, n).
func GeneratePaymentID(now time.Time, intn func(n int) int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteByte(alphabet[intn(len(alphabet))])
	}
	return fmt.Sprintf("pay_%s_%s", strconv.FormatInt(now.UnixMilli(), 10), b.String())
}
