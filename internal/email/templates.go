package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
)

const (
	headerStyle = `style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;"`
	panelStyle  = `style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;"`
	cellStyle   = `padding: 12px; border-bottom: 1px solid #eee;`
)

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// greetingName falls back to the shipping name when the customer snapshot
// has none.
func greetingName(o *order.Order) string {
	if o.Customer.Name != "" {
		return o.Customer.Name
	}
	return strings.TrimSpace(o.ShippingAddress.FirstName + " " + o.ShippingAddress.LastName)
}

// layout wraps the message content in the shared frame.
func layout(title, name, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div `+headerStyle+`>
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Dear %s,</p>
%s
		<p style="margin-top: 30px; font-size: 12px; color: #999;">This is an automated message. Please do not reply.</p>
	</div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(name), content)
}

func detailsPanel(rows ...[2]string) string {
	var b strings.Builder
	b.WriteString("\t\t<div " + panelStyle + ">\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "\t\t\t<p style=\"margin: 0;\"><strong>%s:</strong> %s</p>\n",
			html.EscapeString(row[0]), html.EscapeString(row[1]))
	}
	b.WriteString("\t\t</div>\n")
	return b.String()
}

// BuildOrderConfirmationBody lists the ordered items, totals and shipping address.
func BuildOrderConfirmationBody(o *order.Order) string {
	var itemsHTML strings.Builder
	for _, item := range o.Items {
		fmt.Fprintf(&itemsHTML, `			<tr>
				<td style="%s">%s</td>
				<td style="%s text-align: center;">%d</td>
				<td style="%s text-align: right;">%s</td>
				<td style="%s text-align: right;">%s</td>
			</tr>
`,
			cellStyle, html.EscapeString(item.Name),
			cellStyle, item.Quantity,
			cellStyle, money(item.UnitPrice),
			cellStyle, money(item.LineTotal()),
		)
	}

	addr := o.ShippingAddress
	cityLine := strings.TrimSpace(fmt.Sprintf("%s, %s %s", addr.City, addr.State, addr.ZipCode))

	var content strings.Builder
	content.WriteString("\t\t<p>Thank you for your order! Your order has been confirmed and is being processed.</p>\n")
	content.WriteString(detailsPanel(
		[2]string{"Order ID", "#" + o.ShortID()},
		[2]string{"Order Date", o.CreatedAt.Format("January 2, 2006")},
		[2]string{"Total Amount", money(o.Pricing.GrandTotal)},
	))
	fmt.Fprintf(&content, `		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Order Items</h2>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 12px; text-align: left;">Item</th>
				<th style="padding: 12px; text-align: center;">Qty</th>
				<th style="padding: 12px; text-align: right;">Price</th>
				<th style="padding: 12px; text-align: right;">Subtotal</th>
			</tr>
			</thead>
			<tbody>
%s			</tbody>
		</table>
`, itemsHTML.String())
	content.WriteString(detailsPanel(
		[2]string{"Items", money(o.Pricing.ItemsTotal)},
		[2]string{"Shipping", money(o.Pricing.ShippingTotal)},
		[2]string{"Tax", money(o.Pricing.TaxTotal)},
		[2]string{"Total", money(o.Pricing.GrandTotal)},
	))
	fmt.Fprintf(&content, `		<h2 style="font-size: 18px;">Shipping Address</h2>
		<p>%s<br>%s<br>%s</p>
		<p>We'll send you an email when your order ships.</p>
		<p>Thank you for shopping with us!</p>
`, html.EscapeString(addr.Address), html.EscapeString(cityLine), html.EscapeString(addr.Country))

	return layout("Order Confirmation", greetingName(o), content.String())
}

func BuildPaymentConfirmedBody(o *order.Order) string {
	rows := [][2]string{
		{"Order ID", "#" + o.ShortID()},
		{"Amount Paid", money(o.Pricing.GrandTotal)},
	}
	if o.PaymentReceipt != nil {
		rows = append(rows, [2]string{"Transaction", o.PaymentReceipt.TransactionID})
	}
	content := "\t\t<p>We have received your payment. Your order is now being prepared for shipment.</p>\n" +
		detailsPanel(rows...) +
		"\t\t<p>Thank you for shopping with us!</p>\n"
	return layout("Payment Received", greetingName(o), content)
}

func BuildOrderShippedBody(o *order.Order) string {
	content := "\t\t<p>Great news! Your order has been shipped and is on its way to you.</p>\n" +
		detailsPanel(
			[2]string{"Order ID", "#" + o.ShortID()},
			[2]string{"Status", "Shipped"},
			[2]string{"Expected Delivery", "3-5 business days"},
		) +
		"\t\t<p>You can track your order status in your account dashboard.</p>\n" +
		"\t\t<p>Thank you for your patience!</p>\n"
	return layout("Order Shipped!", greetingName(o), content)
}

func BuildOrderDeliveredBody(o *order.Order) string {
	deliveredAt := o.UpdatedAt
	if o.DeliveredAt != nil {
		deliveredAt = *o.DeliveredAt
	}
	content := "\t\t<p>Your order has been successfully delivered!</p>\n" +
		detailsPanel(
			[2]string{"Order ID", "#" + o.ShortID()},
			[2]string{"Status", "Delivered"},
			[2]string{"Delivery Date", deliveredAt.Format("January 2, 2006")},
		) +
		"\t\t<p>We hope you love your purchase! Please leave us a review if you have a moment.</p>\n" +
		"\t\t<p>Thank you for shopping with us!</p>\n"
	return layout("Order Delivered!", greetingName(o), content)
}

func BuildOrderCancelledBody(o *order.Order) string {
	content := "\t\t<p>Your order has been cancelled.</p>\n" +
		detailsPanel(
			[2]string{"Order ID", "#" + o.ShortID()},
			[2]string{"Status", "Cancelled"},
		)
	if o.IsPaid {
		content += "\t\t<p>Your payment of " + money(o.Pricing.GrandTotal) + " was received; our team will contact you about the refund.</p>\n"
	}
	content += "\t\t<p>If you have any questions, please contact our support team.</p>\n"
	return layout("Order Cancelled", greetingName(o), content)
}
