package stripe

import (
	"context"
	"strings"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
	"go.uber.org/zap"
)

// Refunder reverses settled transactions when a paid booking is
// cancelled.
type Refunder struct {
	gateway paymentdomain.Gateway
	log     *zap.Logger
}

func NewRefunder(gateway paymentdomain.Gateway, log *zap.Logger) bookingdomain.RefundRequester {
	return &Refunder{
		gateway: gateway,
		log:     log.Named("payment.refunder"),
	}
}

func (r *Refunder) RequestRefund(ctx context.Context, tx ledgerdomain.PaymentTransaction) error {
	if tx.Status != ledgerdomain.TransactionStatusSucceeded {
		return nil
	}
	// recurring invoice rows carry an event reference, not a checkout
	// session, and cannot be refunded through the sessions API
	if strings.HasPrefix(tx.SessionReference, "evt_") {
		r.log.Warn("skipping refund for invoice-settled transaction",
			zap.String("booking_id", tx.BookingID.String()),
			zap.String("session_reference", tx.SessionReference),
		)
		return nil
	}
	return r.gateway.Refund(ctx, tx.SessionReference, tx.Amount)
}
