package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// BookingDetails is what the confirmation email shows
type BookingDetails struct {
	BookingID      string
	CustomerName   string
	CarName        string
	PickupLocation string
	StartDate      time.Time
	EndDate        time.Time
	Days           int
	DailyRate      float64
	TotalPrice     float64
	Status         string
}

var bookingTemplate = template.Must(template.New("booking").Funcs(template.FuncMap{
	"money": formatMoney,
	"date":  func(t time.Time) string { return t.Format("Mon 2 Jan 2006") },
	"ref":   shortRef,
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #1f6feb; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Your car is booked</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hello {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}}, thank you for renting with us.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Booking reference</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{ref .BookingID}}</p>
		</div>

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<tr><td style="padding: 8px; color: #666;">Car</td><td style="padding: 8px;">{{.CarName}}</td></tr>
			<tr><td style="padding: 8px; color: #666;">Pickup</td><td style="padding: 8px;">{{.PickupLocation}}</td></tr>
			<tr><td style="padding: 8px; color: #666;">From</td><td style="padding: 8px;">{{date .StartDate}}</td></tr>
			<tr><td style="padding: 8px; color: #666;">To</td><td style="padding: 8px;">{{date .EndDate}}</td></tr>
			<tr><td style="padding: 8px; color: #666;">Days</td><td style="padding: 8px;">{{.Days}} x {{money .DailyRate}}</td></tr>
			<tr><td style="padding: 8px; color: #666;">Status</td><td style="padding: 8px;">{{.Status}}</td></tr>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #1f6feb; margin-left: 10px;">{{money .TotalPrice}}</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically. Reply to this address if anything looks wrong.
		</p>
	</div>
</body>
</html>`))

// BuildBookingConfirmationBody renders the HTML body. Customer supplied
// fields are escaped.
func BuildBookingConfirmationBody(b BookingDetails) (string, error) {
	var buf bytes.Buffer
	if err := bookingTemplate.Execute(&buf, b); err != nil {
		return "", fmt.Errorf("render booking email: %w", err)
	}
	return buf.String(), nil
}

// formatMoney renders an amount with two decimals and comma separators
func formatMoney(amount float64) string {
	str := fmt.Sprintf("%.2f", amount)
	whole, cents, _ := strings.Cut(str, ".")
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	result.WriteString("$")
	remainder := len(whole) % 3
	if remainder > 0 {
		result.WriteString(whole[:remainder])
	}
	for i := remainder; i < len(whole); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(whole[i : i+3])
	}
	result.WriteString(".")
	result.WriteString(cents)
	return result.String()
}
