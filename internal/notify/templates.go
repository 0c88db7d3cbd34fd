package notify

import (
	"fmt"
	"html"
	"strings"

	"provisioner/internal/domain"
	"provisioner/internal/util"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

type template struct {
	subject string
	body    string
}

const layout = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>{subject}</title></head>
<body style="font-family:Arial,sans-serif;line-height:1.6;color:#1f2937;max-width:600px;margin:0 auto;padding:20px">
<h1 style="color:#991B1B">FIXER</h1>
{content}
<p style="color:#6b7280;font-size:13px">Hai bisogno di aiuto? Rispondi a questa email.</p>
</body></html>`

var templates = map[domain.NotificationKind]template{
	domain.NotifyOrderConfirmed: {
		subject: "Ordine Confermato - {plan_name}",
		body: `<p>Ciao {name},</p>
<p>abbiamo ricevuto il tuo ordine <strong>{order_id}</strong> per il piano <strong>{plan_name}</strong>.</p>
<p>Il nostro team inizierà a configurare il tuo servizio entro 1 settimana lavorativa.</p>`,
	},
	domain.NotifyAgentReady: {
		subject: "Il Tuo AI Centralinista è Pronto!",
		body: `<p>Ciao {name},</p>
<p>il tuo AI Centralinista è stato configurato e testato con successo.</p>
<p style="font-size:22px"><strong>{phone_number}</strong></p>
<p>Per attivare il servizio configura l'inoltro chiamate dal tuo provider telefonico al numero sopra indicato.</p>`,
	},
	domain.NotifyActivation: {
		subject: "Attiva il Tuo AI Centralinista - Istruzioni",
		body: `<p>Ciao {name},</p>
<p>per completare l'attivazione configura l'inoltro chiamate dal tuo numero esistente al numero FIXER.</p>
{instructions}
<p><strong>Il Tuo Numero:</strong> {customer_phone}<br><strong>Numero FIXER:</strong> {phone_number}</p>
<p>Una volta configurato l'inoltro, tutte le chiamate verranno gestite dal tuo AI Centralinista.</p>`,
	},
	domain.NotifyOperatorAlert: {
		subject: "[provisioning] {step} fallito per {order_id}",
		body: `<p>Ordine <strong>{order_id}</strong>, passo <strong>{step}</strong>.</p>
<pre>{error}</pre>`,
	},
}

// Render builds the email for n. Variables are HTML-escaped before substitution.
func Render(n domain.Notification) (Message, error) {
	t, ok := templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown notification kind %q", domain.ErrInvalidInput, n.Kind)
	}
	vars := make(map[string]string, len(n.Vars)+2)
	for k, v := range n.Vars {
		vars[k] = html.EscapeString(v)
	}
	if vars["order_id"] == "" {
		vars["order_id"] = html.EscapeString(n.OrderID)
	}
	if vars["name"] == "" {
		vars["name"] = html.EscapeString(n.To)
	}
	if n.Kind == domain.NotifyActivation {
		vars["instructions"] = ForwardingInstructions(n.Vars["carrier"], n.Vars["phone_number"], n.Vars["customer_phone"])
	}

	subject := util.RenderTemplate(t.subject, n.Vars)
	content := util.RenderTemplate(t.body, vars)
	body := util.RenderTemplate(layout, map[string]string{"subject": html.EscapeString(subject), "content": content})
	return Message{Subject: subject, HTML: body}, nil
}

var carrierSteps = map[string][]string{
	"tim": {
		"Chiama il 119 (servizio clienti TIM)",
		"Richiedi l'attivazione dell'inoltro chiamate",
		"Fornisci il numero di destinazione: <strong>{number}</strong>",
		"L'inoltro sarà attivo entro 24 ore",
	},
	"vodafone": {
		"Accedi all'area clienti Vodafone",
		"Vai su \"Servizi\" → \"Inoltro Chiamate\"",
		"Inserisci il numero di destinazione: <strong>{number}</strong>",
		"Salva le modifiche",
	},
	"wind tre": {
		"Chiama il 155 (servizio clienti Wind Tre)",
		"Richiedi l'attivazione dell'inoltro chiamate",
		"Fornisci il numero di destinazione: <strong>{number}</strong>",
		"L'inoltro sarà attivo entro poche ore",
	},
	"iliad": {
		"Accedi all'app Iliad o al sito web",
		"Vai su \"Servizi\" → \"Inoltro Chiamate\"",
		"Inserisci il numero di destinazione: <strong>{number}</strong>",
		"Conferma l'attivazione",
	},
}

// ForwardingInstructions returns carrier-specific HTML steps for forwarding
// customerPhone to number, or a generic paragraph for unknown carriers.
func ForwardingInstructions(carrier, number, customerPhone string) string {
	vars := map[string]string{"number": html.EscapeString(number), "customer": html.EscapeString(customerPhone)}
	key := strings.ToLower(strings.TrimSpace(carrier))
	if key == "windtre" || key == "wind" {
		key = "wind tre"
	}
	steps, ok := carrierSteps[key]
	if !ok {
		return util.RenderTemplate(`<p>Contatta il tuo provider telefonico per attivare l'inoltro chiamate dal numero <strong>{customer}</strong> al numero <strong>{number}</strong>.</p>`, vars)
	}
	var b strings.Builder
	b.WriteString("<ol>")
	for _, s := range steps {
		b.WriteString("<li>")
		b.WriteString(util.RenderTemplate(s, vars))
		b.WriteString("</li>")
	}
	b.WriteString("</ol>")
	return b.String()
}
