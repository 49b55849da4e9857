// Package notify carries recorded orders to the outside world: confirmation
// e-mails over SMTP and order-created events over AMQP. Both collaborators
// are optional; checkout proceeds identically with none configured.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	mail "github.com/wneessen/go-mail"

	"github.com/shukshop/storefront/internal/domain/order"
)

// MailConfig configures the SMTP confirmation mailer.
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

// Enabled reports whether enough configuration is present to send mail.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Mailer sends an order confirmation to the customer and a copy to the shop
// admin. It implements order.Notifier.
type Mailer struct {
	cfg    MailConfig
	client *mail.Client
}

var _ order.Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer from the given configuration.
func NewMailer(cfg MailConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &Mailer{cfg: cfg, client: client}, nil
}

// OrderCreated sends the confirmation e-mails for a freshly recorded order.
func (m *Mailer) OrderCreated(ctx context.Context, o *order.Order) error {
	body := orderSummary(o)

	var msgs []*mail.Msg
	if o.Customer.Email != "" {
		msg, err := m.newMessage(o.Customer.Email,
			fmt.Sprintf("Order confirmation %s", o.TransactionID),
			"Thank you for your order! We have received it and it is being processed.\n\n"+body)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if m.cfg.AdminEmail != "" {
		msg, err := m.newMessage(m.cfg.AdminEmail,
			fmt.Sprintf("New order received %s", o.TransactionID),
			fmt.Sprintf("Customer: %s <%s> %s\n\n%s",
				o.Customer.Name, o.Customer.Email, o.Customer.Phone, body))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := m.client.DialAndSendWithContext(ctx, msgs...); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}

func (m *Mailer) newMessage(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, errors.Wrap(err, "set from")
	}
	if err := msg.To(to); err != nil {
		return nil, errors.Wrap(err, "set to")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// orderSummary renders the plain-text line-item breakdown shared by both
// e-mails.
func orderSummary(o *order.Order) string {
	var b strings.Builder
	b.WriteString("Order summary:\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %s x%d @ ₪%s\n", it.Name, it.Quantity, it.UnitPrice.StringFixed(2))
	}
	if o.CouponCode != "" {
		fmt.Fprintf(&b, "Coupon %s: -₪%s\n", o.CouponCode, o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Shipping (%s): ₪%s\n", o.ShippingMethod, o.ShippingCost.StringFixed(2))
	fmt.Fprintf(&b, "Total: ₪%s\n", o.FinalTotal.StringFixed(2))
	fmt.Fprintf(&b, "\nYour order number is %s\n", o.TransactionID)
	return b.String()
}
