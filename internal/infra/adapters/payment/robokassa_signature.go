package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount the way the gateway expects it in the
// outgoing request: two fractional digits, '.' separator, no grouping.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Sign computes the outgoing request signature:
// md5(MerchantLogin:OutSum:InvId:Password1), upper-case hex.
func Sign(merchantLogin string, amount decimal.Decimal, invoiceID int64, secretOut string) string {
	raw := merchantLogin + ":" + FormatAmount(amount) + ":" + strconv.FormatInt(invoiceID, 10) + ":" + secretOut
	return digest(raw)
}

// CallbackSignature computes the signature the gateway attaches to a result
// notification: md5(OutSum:InvId:Password2) over OutSum exactly as sent.
// There is no merchant login in this shape.
func CallbackSignature(outSum string, invoiceID int64, secretIn string) string {
	raw := outSum + ":" + strconv.FormatInt(invoiceID, 10) + ":" + secretIn
	return digest(raw)
}

// Verify checks a result notification signature, case-insensitively and in
// constant time.
func Verify(outSum string, invoiceID int64, supplied, secretIn string) bool {
	expected := strings.ToLower(CallbackSignature(outSum, invoiceID, secretIn))
	got := strings.ToLower(strings.TrimSpace(supplied))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func digest(raw string) string {
	sum := md5.Sum([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
