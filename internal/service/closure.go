package service

import (
	"fmt"
	"strings"
	"time"

	"freight-settlement-service/internal/model"
)

// BuildClosureDraft arma el borrador de cierre a partir del ledger y el
// pricing. Es determinístico: regenerarlo produce el mismo resultado para el
// mismo pedido, así que el worker puede reprocesar el evento sin riesgo.
// El texto para el cliente va en portugués (mercado brasileño).
func BuildClosureDraft(o *model.Order, now time.Time) *model.ClosureRecord {
	onTime := true
	if o.DeliveryDateActual != nil {
		onTime = !o.DeliveryDateActual.After(o.DeliveryDateEstimate)
	}

	var delayReason string
	var damages []string
	for _, ev := range o.TrackingEvents {
		switch ev.Status {
		case model.EventDelayed:
			if ev.Description != "" {
				delayReason = ev.Description
			}
		case model.EventException:
			if ev.Description != "" {
				damages = append(damages, ev.Description)
			}
		}
	}
	damageReport := strings.Join(damages, "; ")

	score := 5
	if !onTime {
		score -= 1
	}
	if damageReport != "" {
		score -= 2
	}
	if score < 1 {
		score = 1
	}

	summary := fmt.Sprintf(
		"Frete %s concluído: %s/%s → %s/%s, %d evento(s) de rastreamento registrados.",
		o.OrderNumber,
		o.Origin.City, o.Origin.State,
		o.Destination.City, o.Destination.State,
		len(o.TrackingEvents),
	)
	if !onTime {
		summary += " Entrega fora do prazo estimado."
	}

	return &model.ClosureRecord{
		Summary: summary,
		PerformanceMetrics: model.PerformanceMetrics{
			OnTimeDelivery: onTime,
			DamageReport:   damageReport,
			DelayReason:    delayReason,
			OverallScore:   score,
		},
		SuggestedMessage: "Obrigado pela confiança em nossos serviços!",
		InvoiceDraft:     buildInvoiceDraft(o),
		IsCompleted:      false,
		GeneratedAt:      now,
	}
}

func buildInvoiceDraft(o *model.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fatura — Pedido %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "Frete base: %.2f %s\n", o.Pricing.BasePrice, o.Pricing.Currency)
	for _, f := range o.Pricing.AdditionalFees {
		fmt.Fprintf(&b, "%s: %.2f %s\n", f.Name, f.Amount, o.Pricing.Currency)
	}
	fmt.Fprintf(&b, "Total: %.2f %s", o.Pricing.TotalPrice, o.Pricing.Currency)
	return b.String()
}
