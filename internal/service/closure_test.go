package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freight-settlement-service/internal/model"
)

func closureOrder() *model.Order {
	estimate := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	actual := estimate.Add(-6 * time.Hour)
	return &model.Order{
		OrderNumber:          "FRT-TEST-ABC123",
		Origin:               model.Location{City: "Sorriso", State: "MT"},
		Destination:          model.Location{City: "Santos", State: "SP"},
		DeliveryDateEstimate: estimate,
		DeliveryDateActual:   &actual,
		Pricing: model.Pricing{
			BasePrice: 2000,
			AdditionalFees: []model.Fee{
				{Name: "Pedágio", Amount: 200},
			},
			Currency:   "BRL",
			TotalPrice: 2200,
		},
		TrackingEvents: []model.TrackingEvent{
			{Status: model.EventCreated},
			{Status: model.EventInTransit},
			{Status: model.EventDelivered},
		},
	}
}

func TestBuildClosureDraftOnTime(t *testing.T) {
	now := time.Now().UTC()
	cl := BuildClosureDraft(closureOrder(), now)

	assert.True(t, cl.PerformanceMetrics.OnTimeDelivery)
	assert.Equal(t, 5, cl.PerformanceMetrics.OverallScore)
	assert.Empty(t, cl.PerformanceMetrics.DamageReport)
	assert.Empty(t, cl.PerformanceMetrics.DelayReason)
	assert.False(t, cl.IsCompleted)
	assert.Equal(t, now, cl.GeneratedAt)
	assert.Contains(t, cl.Summary, "FRT-TEST-ABC123")
	assert.Contains(t, cl.Summary, "Sorriso/MT")
	assert.NotContains(t, cl.Summary, "fora do prazo")
}

func TestBuildClosureDraftLate(t *testing.T) {
	o := closureOrder()
	late := o.DeliveryDateEstimate.Add(48 * time.Hour)
	o.DeliveryDateActual = &late
	o.TrackingEvents = append(o.TrackingEvents, model.TrackingEvent{
		Status:      model.EventDelayed,
		Description: "Interdição na BR-163",
	})

	cl := BuildClosureDraft(o, time.Now().UTC())
	assert.False(t, cl.PerformanceMetrics.OnTimeDelivery)
	assert.Equal(t, 4, cl.PerformanceMetrics.OverallScore)
	assert.Equal(t, "Interdição na BR-163", cl.PerformanceMetrics.DelayReason)
	assert.Contains(t, cl.Summary, "fora do prazo")
}

func TestBuildClosureDraftDamages(t *testing.T) {
	o := closureOrder()
	o.TrackingEvents = append(o.TrackingEvents,
		model.TrackingEvent{Status: model.EventException, Description: "Avaria na lona"},
		model.TrackingEvent{Status: model.EventException, Description: "Perda de 200kg"},
	)

	cl := BuildClosureDraft(o, time.Now().UTC())
	assert.Equal(t, "Avaria na lona; Perda de 200kg", cl.PerformanceMetrics.DamageReport)
	assert.Equal(t, 3, cl.PerformanceMetrics.OverallScore)
}

func TestBuildClosureDraftScoreFloor(t *testing.T) {
	o := closureOrder()
	late := o.DeliveryDateEstimate.Add(time.Hour)
	o.DeliveryDateActual = &late
	o.TrackingEvents = append(o.TrackingEvents,
		model.TrackingEvent{Status: model.EventException, Description: "Avaria grave"},
	)

	cl := BuildClosureDraft(o, time.Now().UTC())
	// tarde (-1) y con avería (-2): 2, nunca menor que 1
	assert.Equal(t, 2, cl.PerformanceMetrics.OverallScore)
	assert.GreaterOrEqual(t, cl.PerformanceMetrics.OverallScore, 1)
}

func TestBuildClosureDraftDeterministic(t *testing.T) {
	o := closureOrder()
	now := time.Now().UTC()
	assert.Equal(t, BuildClosureDraft(o, now), BuildClosureDraft(o, now))
}

func TestBuildInvoiceDraft(t *testing.T) {
	cl := BuildClosureDraft(closureOrder(), time.Now().UTC())
	require.NotEmpty(t, cl.InvoiceDraft)
	assert.Contains(t, cl.InvoiceDraft, "Frete base: 2000.00 BRL")
	assert.Contains(t, cl.InvoiceDraft, "Pedágio: 200.00 BRL")
	assert.Contains(t, cl.InvoiceDraft, "Total: 2200.00 BRL")
}
