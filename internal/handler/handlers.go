package handler

import (
	"order-service/internal/events"
	"order-service/internal/orders"
	"order-service/internal/reports"
)

var (
	orderEngine  *orders.Engine
	reportEngine *reports.Engine
	publisher    events.Publisher = events.NopPublisher{}
)

// Init wires the engines and the event publisher into the handler package.
// Called once from main before routes are registered.
func Init(oe *orders.Engine, re *reports.Engine, pub events.Publisher) {
	orderEngine = oe
	reportEngine = re
	if pub != nil {
		publisher = pub
	}
}
