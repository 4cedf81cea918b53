package email

import (
	"fmt"
	"net/smtp"

	"github.com/example/storefront-orders/internal/domain/order"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	auth     smtp.Auth
	sendMail sendFunc
}

// NewService creates a new email service. Authentication is used only when
// username is set.
func NewService(host, port, from, username, password string) *Service {
	s := &Service{
		host:     host,
		port:     port,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to string, o *order.Order) error {
	subject := fmt.Sprintf("Order Confirmation - #%s", o.ShortID())
	return s.send(to, subject, BuildOrderConfirmationBody(o))
}

func (s *Service) SendPaymentConfirmed(to string, o *order.Order) error {
	subject := fmt.Sprintf("Payment Received - #%s", o.ShortID())
	return s.send(to, subject, BuildPaymentConfirmedBody(o))
}

func (s *Service) SendOrderShipped(to string, o *order.Order) error {
	subject := fmt.Sprintf("Your Order Has Shipped - #%s", o.ShortID())
	return s.send(to, subject, BuildOrderShippedBody(o))
}

func (s *Service) SendOrderDelivered(to string, o *order.Order) error {
	subject := fmt.Sprintf("Your Order Has Been Delivered - #%s", o.ShortID())
	return s.send(to, subject, BuildOrderDeliveredBody(o))
}

func (s *Service) SendOrderCancelled(to string, o *order.Order) error {
	subject := fmt.Sprintf("Your Order Has Been Cancelled - #%s", o.ShortID())
	return s.send(to, subject, BuildOrderCancelledBody(o))
}

func (s *Service) send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("email: no recipient for %q", subject)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, s.auth, s.from, []string{to}, []byte(msg))
}
