package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/paypro-bridge/internal/models"

	"github.com/shopspring/decimal"
)

// ReceiptRenderer produces the subject and HTML body of a paid receipt.
type ReceiptRenderer interface {
	Render(mapping *models.OrderMapping, order models.JSON) (subject string, htmlBody string, err error)
}

// HTMLReceiptRenderer renders receipts with html/template.
type HTMLReceiptRenderer struct {
	brand           string
	subjectTemplate string
	tmpl            *template.Template
}

type receiptLine struct {
	Name     string
	Quantity string
	Price    string
}

type receiptView struct {
	Brand            string
	CustomerName     string
	OrderID          string
	GatewayPaymentID string
	Amount           string
	PaidAt           string
	Items            []receiptLine
}

const receiptHTML = `<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<h2>{{.Brand}}</h2>
<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>We have received your payment. Thank you for your order.</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><td>Order</td><td><strong>{{.OrderID}}</strong></td></tr>
{{if .GatewayPaymentID}}<tr><td>PayPro ID</td><td>{{.GatewayPaymentID}}</td></tr>{{end}}
<tr><td>Amount</td><td>PKR {{.Amount}}</td></tr>
{{if .PaidAt}}<tr><td>Paid at</td><td>{{.PaidAt}}</td></tr>{{end}}
</table>
{{if .Items}}<h3>Items</h3>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{.Price}}</td></tr>
{{end}}</table>{{end}}
<p style="color:#888">This is an automated receipt from {{.Brand}}.</p>
</body></html>`

// NewHTMLReceiptRenderer creates the renderer. subjectTemplate takes the order id via %s.
func NewHTMLReceiptRenderer(brand, subjectTemplate string) *HTMLReceiptRenderer {
	if strings.TrimSpace(brand) == "" {
		brand = "Secrets Discounts"
	}
	if strings.TrimSpace(subjectTemplate) == "" {
		subjectTemplate = "Payment receipt for order %s"
	}
	return &HTMLReceiptRenderer{
		brand:           brand,
		subjectTemplate: subjectTemplate,
		tmpl:            template.Must(template.New("receipt").Parse(receiptHTML)),
	}
}

// Render builds the receipt for a paid mapping. order may be nil.
func (r *HTMLReceiptRenderer) Render(mapping *models.OrderMapping, order models.JSON) (string, string, error) {
	if mapping == nil {
		return "", "", fmt.Errorf("%w: mapping is nil", ErrValidation)
	}
	view := receiptView{
		Brand:            r.brand,
		CustomerName:     mapping.Customer.Name,
		OrderID:          mapping.InternalOrderID,
		GatewayPaymentID: mapping.GatewayPaymentID,
		Amount:           decimal.NewFromInt(mapping.Amount).StringFixed(2),
		Items:            receiptLines(order),
	}
	if mapping.PaidAt != nil {
		view.PaidAt = mapping.PaidAt.UTC().Format(time.RFC1123)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", "", err
	}
	subject := r.subjectTemplate
	if strings.Contains(subject, "%s") {
		subject = fmt.Sprintf(subject, mapping.InternalOrderID)
	}
	return subject, buf.String(), nil
}

func receiptLines(order models.JSON) []receiptLine {
	raw, ok := order["items"].([]interface{})
	if !ok {
		return nil
	}
	lines := make([]receiptLine, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name := firstText(obj, "name", "title", "productName")
		if name == "" {
			continue
		}
		lines = append(lines, receiptLine{
			Name:     name,
			Quantity: firstText(obj, "quantity", "qty"),
			Price:    firstText(obj, "price", "amount"),
		})
	}
	return lines
}

func firstText(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return decimal.NewFromFloat(v).String()
		}
	}
	return ""
}
