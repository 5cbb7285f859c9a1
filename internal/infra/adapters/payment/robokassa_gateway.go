package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"telegram-ai-consult/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RobokassaGateway)(nil)

const defaultRobokassaURL = "https://auth.robokassa.ru/Merchant/Index.aspx"

// RobokassaGateway builds signed redirect URLs and verifies result
// notifications. The outgoing and incoming secrets are independent
// (Password1 / Password2 in gateway terms) and are never assumed equal.
type RobokassaGateway struct {
	merchantLogin string
	secretOut     string
	secretIn      string
	baseURL       string
	isTest        bool
}

func NewRobokassaGateway(merchantLogin, secretOut, secretIn, baseURL string, isTest bool) (*RobokassaGateway, error) {
	if strings.TrimSpace(merchantLogin) == "" {
		return nil, errors.New("robokassa: merchant login empty")
	}
	if secretOut == "" || secretIn == "" {
		return nil, errors.New("robokassa: both request and result passwords are required")
	}
	if baseURL == "" {
		baseURL = defaultRobokassaURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("robokassa: invalid base url: %w", err)
	}
	return &RobokassaGateway{
		merchantLogin: merchantLogin,
		secretOut:     secretOut,
		secretIn:      secretIn,
		baseURL:       baseURL,
		isTest:        isTest,
	}, nil
}

func (g *RobokassaGateway) Name() string { return "robokassa" }

// CheckoutURL returns the hosted payment page URL carrying MerchantLogin,
// OutSum, InvId, Description and SignatureValue.
func (g *RobokassaGateway) CheckoutURL(invoiceID int64, amount decimal.Decimal, description string) (string, error) {
	if invoiceID <= 0 || !amount.IsPositive() {
		return "", errors.New("robokassa: invalid invoice or amount")
	}
	params := url.Values{}
	params.Set("MerchantLogin", g.merchantLogin)
	params.Set("OutSum", FormatAmount(amount))
	params.Set("InvId", strconv.FormatInt(invoiceID, 10))
	params.Set("Description", description)
	params.Set("SignatureValue", Sign(g.merchantLogin, amount, invoiceID, g.secretOut))
	// test mode must be flagged explicitly or the gateway charges for real
	if g.isTest {
		params.Set("IsTest", "1")
	}
	return g.baseURL + "?" + params.Encode(), nil
}

func (g *RobokassaGateway) VerifyCallback(outSum string, invoiceID int64, signature string) bool {
	return Verify(outSum, invoiceID, signature, g.secretIn)
}
