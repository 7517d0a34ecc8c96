// Package notifications renders and delivers customer facing order email.
package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	gomail "github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/config"
	"github.com/acrylicworks/api/internal/services"
)

// defaultSendTimeout bounds dialing and the SMTP conversation. Confirmations are sent from the
// payment webhook request, so a stalled relay must not hold it open.
const defaultSendTimeout = 10 * time.Second

const confirmationTemplate = `# Thank you for your order, {{ .Name }}

Your payment for order **{{ .Order.OrderNumber }}** has been received.

| Item | Qty | Amount |
| --- | ---: | ---: |
{{- range .Lines }}
| {{ .Name }} | {{ .Quantity }} | {{ .Amount }} |
{{- end }}

Subtotal: {{ .Subtotal }}
Tax: {{ .Tax }}
Shipping: {{ .Shipping }}
**Total: {{ .Total }}**
{{ if .NeedsUploads }}
Some items are made from your artwork. Our staff will review your uploads before production starts and will contact you if a revision is needed.
{{ end }}
{{- if .OrderURL }}
[View your order]({{ .OrderURL }})
{{ end }}`

// Sender delivers composed messages.
type Sender interface {
	Send(ctx context.Context, msg *gomail.Msg) error
}

// SMTPSender sends mail through an SMTP relay, upgrading to TLS when the relay offers it.
type SMTPSender struct {
	client  *gomail.Client
	timeout time.Duration
}

// NewSMTPSender builds a sender from notification configuration.
func NewSMTPSender(cfg config.NotificationConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(defaultSendTimeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUsername),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("notifications: smtp client: %w", err)
	}
	return &SMTPSender{client: client, timeout: defaultSendTimeout}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.DialAndSendWithContext(ctx, msg)
}

// Mailer renders order confirmations as markdown, converts them to sanitised HTML and sends a
// multipart/alternative message with both bodies in quoted-printable UTF-8.
type Mailer struct {
	sender        Sender
	from          string
	storefrontURL string
	tmpl          *template.Template
	markdown      goldmark.Markdown
	policy        *bluemonday.Policy
	now           func() time.Time
}

// NewMailer validates the sender address and parses the template.
func NewMailer(sender Sender, cfg config.NotificationConfig) (*Mailer, error) {
	if sender == nil {
		return nil, errors.New("notifications: sender is required")
	}
	from := strings.TrimSpace(cfg.FromAddress)
	if err := newMessage().From(from); err != nil {
		return nil, fmt.Errorf("notifications: invalid from address: %w", err)
	}
	tmpl, err := template.New("confirmation").Parse(confirmationTemplate)
	if err != nil {
		return nil, fmt.Errorf("notifications: parse template: %w", err)
	}
	return &Mailer{
		sender:        sender,
		from:          from,
		storefrontURL: strings.TrimRight(strings.TrimSpace(cfg.StorefrontURL), "/"),
		tmpl:          tmpl,
		markdown:      goldmark.New(goldmark.WithExtensions(extension.Table)),
		policy:        bluemonday.UGCPolicy(),
		now:           time.Now,
	}, nil
}

type confirmationLine struct {
	Name     string
	Quantity int
	Amount   string
}

type confirmationView struct {
	Name         string
	Order        domain.Order
	Lines        []confirmationLine
	Subtotal     string
	Tax          string
	Shipping     string
	Total        string
	NeedsUploads bool
	OrderURL     string
}

// SendOrderConfirmation implements services.OrderNotifier.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, msg services.OrderConfirmation) error {
	text, html, err := m.renderConfirmation(msg)
	if err != nil {
		return err
	}
	out, err := m.compose(msg.CustomerName, msg.CustomerEmail, fmt.Sprintf("Order %s confirmed", msg.Order.OrderNumber), text, html)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, out); err != nil {
		return fmt.Errorf("notifications: send confirmation: %w", err)
	}
	return nil
}

func (m *Mailer) renderConfirmation(msg services.OrderConfirmation) (string, string, error) {
	order := msg.Order
	name := strings.TrimSpace(msg.CustomerName)
	if name == "" {
		name = "customer"
	}
	view := confirmationView{
		Name:         escapeMarkdown(name),
		Order:        order,
		Subtotal:     FormatMoney(order.Totals.Subtotal, order.Currency),
		Tax:          FormatMoney(order.Totals.Tax, order.Currency),
		Shipping:     FormatMoney(order.Totals.ShippingFee, order.Currency),
		Total:        FormatMoney(order.Totals.Total, order.Currency),
		NeedsUploads: order.RequiresUploads(),
	}
	for _, item := range order.Items {
		view.Lines = append(view.Lines, confirmationLine{
			Name:     escapeMarkdown(item.ProductName),
			Quantity: item.Quantity,
			Amount:   FormatMoney(item.UnitPrice*int64(item.Quantity), order.Currency),
		})
	}
	if m.storefrontURL != "" {
		view.OrderURL = m.storefrontURL + "/orders/" + order.ID
	}

	var md bytes.Buffer
	if err := m.tmpl.Execute(&md, view); err != nil {
		return "", "", fmt.Errorf("notifications: render template: %w", err)
	}
	var html bytes.Buffer
	if err := m.markdown.Convert(md.Bytes(), &html); err != nil {
		return "", "", fmt.Errorf("notifications: render markdown: %w", err)
	}
	return md.String(), m.policy.Sanitize(html.String()), nil
}

func (m *Mailer) compose(name, address, subject, text, html string) (*gomail.Msg, error) {
	out := newMessage()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("notifications: invalid from address: %w", err)
	}
	if err := out.AddToFormat(strings.TrimSpace(name), strings.TrimSpace(address)); err != nil {
		return nil, fmt.Errorf("notifications: invalid recipient: %w", err)
	}
	out.Subject(subject)
	out.SetDateWithValue(m.now())
	out.SetBodyString(gomail.TypeTextPlain, text)
	out.AddAlternativeString(gomail.TypeTextHTML, html)
	return out, nil
}

func newMessage() *gomail.Msg {
	return gomail.NewMsg(gomail.WithEncoding(gomail.EncodingQP), gomail.WithCharset(gomail.CharsetUTF8))
}

// FormatMoney renders an amount in minor units with the currency's narrow symbol, English digit
// grouping and the currency's standard number of decimals, e.g. 123400 JPY as "¥123,400" and
// 1999 USD as "$19.99".
func FormatMoney(minor int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Sprintf("%d %s", minor, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	divisor := int64(math.Pow10(scale))
	printer := message.NewPrinter(language.English)
	out := sign + fmt.Sprint(currency.NarrowSymbol(unit)) + printer.Sprintf("%d", minor/divisor)
	if scale > 0 {
		out += fmt.Sprintf(".%0*d", scale, minor%divisor)
	}
	return out
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "|", `\|`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(value string) string {
	return markdownEscaper.Replace(strings.TrimSpace(value))
}

var _ services.OrderNotifier = (*Mailer)(nil)
