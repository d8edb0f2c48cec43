// models.go
package model

import "time"

// Status es el estado actual de un pedido de frete.
// Solo la máquina de estados (service) puede cambiarlo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelayed   Status = "delayed"
	StatusDelivered Status = "delivered"
	StatusDisputed  Status = "disputed"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Estados finales: no admiten más transiciones.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// EventStatus es el tag de un evento de rastreo. No es lo mismo que Status:
// "created" y "exception" existen solo en el ledger.
type EventStatus string

const (
	EventCreated   EventStatus = "created"
	EventAccepted  EventStatus = "accepted"
	EventPickedUp  EventStatus = "picked_up"
	EventInTransit EventStatus = "in_transit"
	EventDelayed   EventStatus = "delayed"
	EventDelivered EventStatus = "delivered"
	EventException EventStatus = "exception"
)

type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type Contact struct {
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
}

type Location struct {
	Address     string       `bson:"address" json:"address"`
	City        string       `bson:"city" json:"city"`
	State       string       `bson:"state" json:"state"`
	ZipCode     string       `bson:"zip_code,omitempty" json:"zipCode,omitempty"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	Contact     *Contact     `bson:"contact,omitempty" json:"contact,omitempty"`
}

// CargoItem es una línea de carga del pedido.
// Categorías válidas: grain, livestock, equipment, fertilizer, other.
type CargoItem struct {
	Name        string  `bson:"name" json:"name"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	Quantity    float64 `bson:"quantity" json:"quantity"`
	Unit        string  `bson:"unit" json:"unit"`
	Weight      float64 `bson:"weight" json:"weight"`
	Category    string  `bson:"category" json:"category"`
}

type Fee struct {
	Name        string  `bson:"name" json:"name"`
	Amount      float64 `bson:"amount" json:"amount"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
}

type Pricing struct {
	BasePrice      float64 `bson:"base_price" json:"basePrice"`
	AdditionalFees []Fee   `bson:"additional_fees,omitempty" json:"additionalFees,omitempty"`
	Currency       string  `bson:"currency" json:"currency"`

	// Siempre derivado. Nunca se asigna directo: usar ComputeTotal.
	TotalPrice float64 `bson:"total_price" json:"totalPrice"`
}

// ComputeTotal recalcula el total (base + fees).
func (p *Pricing) ComputeTotal() {
	total := p.BasePrice
	for _, f := range p.AdditionalFees {
		total += f.Amount
	}
	p.TotalPrice = total
}

type EventMetadata struct {
	Driver    string   `bson:"driver,omitempty" json:"driver,omitempty"`
	Vehicle   string   `bson:"vehicle,omitempty" json:"vehicle,omitempty"`
	Notes     string   `bson:"notes,omitempty" json:"notes,omitempty"`
	Images    []string `bson:"images,omitempty" json:"images,omitempty"`
	Documents []string `bson:"documents,omitempty" json:"documents,omitempty"`
}

// TrackingEvent es inmutable una vez agregado al ledger.
// Nunca se edita ni se borra.
type TrackingEvent struct {
	ID          string         `bson:"event_id" json:"eventId"`
	Status      EventStatus    `bson:"status" json:"status"`
	Location    Location       `bson:"location" json:"location"`
	Description string         `bson:"description,omitempty" json:"description,omitempty"`
	Metadata    *EventMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp   time.Time      `bson:"timestamp" json:"timestamp"`
	AuthorID    string         `bson:"author_id" json:"authorId"`
}

type PerformanceMetrics struct {
	OnTimeDelivery bool   `bson:"on_time_delivery" json:"onTimeDelivery"`
	DamageReport   string `bson:"damage_report,omitempty" json:"damageReport,omitempty"`
	DelayReason    string `bson:"delay_reason,omitempty" json:"delayReason,omitempty"`
	OverallScore   int    `bson:"overall_score" json:"overallScore"`
}

// ClosureRecord es el borrador de cierre generado a partir del ledger.
// Mientras IsCompleted sea false se puede regenerar cuantas veces haga falta.
type ClosureRecord struct {
	Summary            string             `bson:"summary" json:"summary"`
	PerformanceMetrics PerformanceMetrics `bson:"performance_metrics" json:"performanceMetrics"`
	SuggestedMessage   string             `bson:"suggested_message" json:"suggestedMessage"`
	InvoiceDraft       string             `bson:"invoice_draft" json:"invoiceDraft"`
	IsCompleted        bool               `bson:"is_completed" json:"isCompleted"`
	FinalMessage       string             `bson:"final_message,omitempty" json:"finalMessage,omitempty"`
	GeneratedAt        time.Time          `bson:"generated_at" json:"generatedAt"`
	CompletedBy        string             `bson:"completed_by,omitempty" json:"completedBy,omitempty"`
	CompletedAt        *time.Time         `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// RatingEntry: a lo sumo una por (pedido, rater). Inmutable.
type RatingEntry struct {
	SubjectRole string    `bson:"subject_role" json:"subjectRole"` // rol del que califica: buyer | seller
	Score       int       `bson:"score" json:"score"`              // 1..5
	Comment     string    `bson:"comment,omitempty" json:"comment,omitempty"`
	RaterID     string    `bson:"rater_id" json:"raterId"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

type Order struct {
	ID          string `bson:"_id" json:"id"`
	OrderNumber string `bson:"order_number" json:"orderNumber"`

	BuyerID   string `bson:"buyer_id" json:"buyerId"`
	SellerID  string `bson:"seller_id" json:"sellerId"`
	CarrierID string `bson:"carrier_id,omitempty" json:"carrierId,omitempty"` // vacío hasta accepted

	Origin      Location `bson:"origin" json:"origin"`
	Destination Location `bson:"destination" json:"destination"`

	PickupDate           time.Time  `bson:"pickup_date" json:"pickupDate"`
	DeliveryDateEstimate time.Time  `bson:"delivery_date_estimate" json:"deliveryDateEstimate"`
	DeliveryDateActual   *time.Time `bson:"delivery_date_actual,omitempty" json:"deliveryDateActual,omitempty"`

	Items   []CargoItem `bson:"items" json:"items"`
	Pricing Pricing     `bson:"pricing" json:"pricing"`

	Status         Status          `bson:"status" json:"status"`
	TrackingEvents []TrackingEvent `bson:"tracking_events" json:"trackingEvents"`

	AIClosure *ClosureRecord `bson:"ai_closure,omitempty" json:"aiClosure,omitempty"`
	Ratings   []RatingEntry  `bson:"ratings,omitempty" json:"ratings,omitempty"`

	// Control de concurrencia optimista: cada escritura compara y suma 1.
	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsParty indica si el usuario es comprador, vendedor o el transportista asignado.
func (o *Order) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	return o.BuyerID == userID || o.SellerID == userID || (o.CarrierID != "" && o.CarrierID == userID)
}

// Parties devuelve los involucrados, sin duplicados y sin el actor.
func (o *Order) Parties(exclude string) []string {
	seen := map[string]bool{exclude: true, "": true}
	var out []string
	for _, id := range []string{o.BuyerID, o.SellerID, o.CarrierID} {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// EscrowState es el estado de los fondos retenidos de un pedido.
// held → released | cancelled | disputed; disputed → released | cancelled.
// Nunca hacia atrás.
type EscrowState string

const (
	EscrowHeld      EscrowState = "held"
	EscrowReleased  EscrowState = "released"
	EscrowCancelled EscrowState = "cancelled"
	EscrowDisputed  EscrowState = "disputed"
)

func (s EscrowState) IsTerminal() bool {
	return s == EscrowReleased || s == EscrowCancelled
}

// EscrowRecord: un documento por pedido, clave = orderId.
type EscrowRecord struct {
	OrderID       string      `bson:"_id" json:"orderId"`
	PayerID       string      `bson:"payer_id" json:"payerId"` // comprador
	PayeeID       string      `bson:"payee_id" json:"payeeId"` // vendedor
	Amount        float64     `bson:"amount" json:"amount"`
	Currency      string      `bson:"currency" json:"currency"`
	State         EscrowState `bson:"state" json:"state"`
	DisputeReason string      `bson:"dispute_reason,omitempty" json:"disputeReason,omitempty"`
	CreatedAt     time.Time   `bson:"created_at" json:"createdAt"`
	ResolvedAt    *time.Time  `bson:"resolved_at,omitempty" json:"resolvedAt,omitempty"`
}
