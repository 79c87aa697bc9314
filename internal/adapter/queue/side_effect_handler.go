package queue

import (
	"github.com/aq2208/gcheckout-api/internal/usecase"
)

// RegisterSideEffects routes each side-effect queue to its Dispatcher method.
func RegisterSideEffects(r *Router, d *usecase.Dispatcher) {
	r.Register(LoyaltyQueue, JSONHandler[usecase.OrderPlacedMsg]{HandleFunc: d.AwardLoyalty})
	r.Register(ReferralQueue, JSONHandler[usecase.OrderPlacedMsg]{HandleFunc: d.CompleteReferral})
}
