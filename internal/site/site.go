// Package site 保存目标售票站点的元素描述符目录。
// 每个目标的描述符按“最精确在前、通用文本兜底在后”排列。
package site

import (
	"fmt"

	"ticket_engine/internal/locator"
	"ticket_engine/internal/page"
)

type Field struct {
	Name   string
	Target locator.Target
}

type Catalogue struct {
	Name string

	// 登录
	LoginPath     string
	Unauthed      locator.Target
	LoginEmail    locator.Target
	LoginPassword locator.Target
	LoginSubmit   locator.Target
	AccountMarker locator.Target

	// 排队
	QueueDomain   string
	QueueFrame    locator.Target
	QueuePosition locator.Target

	// 选票前置步骤（都是可选的）
	TicketCard  locator.Target
	VerEntradas locator.Target

	Quantity locator.Target
	Continue locator.Target

	BillingEmail locator.Target

	Finalize      locator.Target
	StrongAuth    locator.Target
	ErrorBanner   locator.Target
	SuccessBanner locator.Target
	OrderNumber   locator.Target
}

func t(name string, ds ...page.Descriptor) locator.Target { return locator.NewTarget(name, ds...) }

// AllAccess allaccess.com.ar 的描述符目录。
func AllAccess() *Catalogue {
	return &Catalogue{
		Name:      "allaccess",
		LoginPath: "login",
		Unauthed: t("unauthenticated",
			page.TextMatch("a, button", `iniciar sesi[oó]n|login|ingresar`),
		),
		LoginEmail: t("login_email",
			page.CSS(`input[type="email"]`),
			page.CSS(`input[name*="email"]`),
			page.CSS(`input[name*="usuario"]`),
		),
		LoginPassword: t("login_password",
			page.CSS(`input[type="password"]`),
			page.CSS(`input[name*="password"]`),
			page.CSS(`input[name*="contraseña"]`),
		),
		LoginSubmit: t("login_submit",
			page.CSS(`button[type="submit"]`),
			page.Text("button", "Ingresar"),
			page.Text("button", "Login"),
		),
		AccountMarker: t("account_indicator",
			page.TextMatch("a, button, span", `mi cuenta|account|perfil`),
		),

		QueueDomain:   "queue-it.net",
		QueueFrame:    t("queue_frame", page.CSS(`iframe[src*="queue-it"]`)),
		QueuePosition: t("queue_position", page.TextMatch("p, span, div", `position|queue|posici[oó]n`)),

		TicketCard: t("ticket_card",
			page.CSS(`a[href*="/event/"][class*="card"]`),
			page.CSS(`a[href*="/event/"] img`),
			page.CSS(`div[class*="event-card"] a`),
			page.CSS(`div[class*="card"] a[href*="/event/"]`),
			page.Text("button", "Comprar"),
			page.Text("button", "Ver Entradas"),
			page.Text("a", "Comprar Entradas"),
		),
		VerEntradas: t("ver_entradas",
			page.Text("button", "Ver Entradas"),
			page.Text("button", "Comprar"),
			page.Text("button", "Comprar Entradas"),
			page.Text("a", "Ver Entradas"),
			page.CSS(`button[class*="buy"]`),
			page.CSS(`button[class*="comprar"]`),
		),

		Quantity: t("quantity",
			page.CSS(`button[aria-label*="Agregar"]`),
			page.Text("button", "+"),
			page.CSS(`button[class*="increment"]`),
			page.CSS(`button[class*="add"]`),
			page.CSS(`button[aria-label*="increase"]`),
			page.CSS(`input[type="number"]`),
		),
		Continue: t("continue",
			page.Text("button", "Continuar"),
			page.Text("button", "Continue"),
			page.Text("button", "Siguiente"),
			page.CSS(`button[type="submit"]`),
			page.CSS(`button[class*="continue"]`),
			page.CSS(`button[class*="next"]`),
		),

		BillingEmail: t("billing_email", page.CSS(`input[type="email"]`)),

		Finalize: t("finalize",
			page.Text("button", "Finalizar"),
			page.Text("button", "Pagar"),
			page.Text("button", "Confirmar"),
		),
		StrongAuth: t("strong_auth",
			page.CSS(`iframe[src*="3ds"]`),
			page.TextMatch("h1, h2, h3, p, span, div", `3d secure|3ds|verificaci[oó]n`),
		),
		ErrorBanner: t("error_banner",
			page.CSS(`[role="alert"][class*="error"]`),
			page.TextMatch("h1, h2, h3, p, span, div", `error|invalid|declined|rechazad`),
		),
		SuccessBanner: t("success_banner",
			page.TextMatch("h1, h2, h3, p, span, div", `confirmaci[oó]n|confirmation|[eé]xito|success|orden|order`),
		),
		OrderNumber: t("order_number",
			page.CSS(`[data-order-id]`),
			page.TextMatch("h1, h2, h3, p, span, strong, div", `orden|order|#`),
		),
	}
}

// TicketType 按票种名称定位的目标。
func (c *Catalogue) TicketType(name string) locator.Target {
	return t("ticket_type",
		page.Text("button", name),
		page.Text("div", name),
		page.CSS(fmt.Sprintf(`[data-sector=%q]`, name)),
		page.Text(`div[class*="ticket"]`, name),
		page.Text(`div[class*="sector"]`, name),
	)
}

// EventDate 场次日期；preferred 为空时选第一个可用日期。
func (c *Catalogue) EventDate(preferred string) locator.Target {
	containers := []string{
		`button[class*="date"]`,
		`div[class*="date-selector"] button`,
		`[data-date]`,
		`button[class*="fecha"]`,
		`div[class*="fechas"] button`,
	}
	ds := make([]page.Descriptor, 0, len(containers))
	for _, sel := range containers {
		if preferred != "" {
			ds = append(ds, page.Text(sel, preferred))
		} else {
			ds = append(ds, page.CSS(sel))
		}
	}
	return t("event_date", ds...)
}

func (c *Catalogue) BillingFields() []Field {
	return []Field{
		{"first_name", t("billing_first_name", page.CSS(`input[name*="first"]`), page.CSS(`input[name*="nombre"]`))},
		{"last_name", t("billing_last_name", page.CSS(`input[name*="last"]`), page.CSS(`input[name*="apellido"]`))},
		{"document_number", t("billing_document", page.CSS(`input[name*="document"]`), page.CSS(`input[name*="dni"]`))},
		{"phone", t("billing_phone", page.CSS(`input[name*="phone"]`), page.CSS(`input[name*="telefono"]`))},
		{"address", t("billing_address", page.CSS(`input[name*="address"]`), page.CSS(`input[name*="direccion"]`))},
		{"city", t("billing_city", page.CSS(`input[name*="city"]`), page.CSS(`input[name*="ciudad"]`))},
		{"postal_code", t("billing_postal_code", page.CSS(`input[name*="postal"]`), page.CSS(`input[name*="codigo"]`))},
	}
}

func (c *Catalogue) CardFields() []Field {
	return []Field{
		{"number", t("card_number", page.CSS(`input[name*="card"][name*="number"]`), page.CSS(`input[placeholder*="card number"]`), page.CSS(`input[name*="tarjeta"]`))},
		{"holder", t("card_holder", page.CSS(`input[name*="holder"]`), page.CSS(`input[name*="titular"]`))},
		{"expiry_month", t("card_expiry_month", page.CSS(`select[name*="month"]`), page.CSS(`input[name*="month"]`), page.CSS(`select[name*="mes"]`))},
		{"expiry_year", t("card_expiry_year", page.CSS(`select[name*="year"]`), page.CSS(`input[name*="year"]`), page.CSS(`select[name*="anio"]`))},
		{"cvv", t("card_cvv", page.CSS(`input[name*="cvv"]`), page.CSS(`input[name*="security"]`))},
	}
}
