package service

import (
	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
)

// isTransitionAllowed is the single source of truth for the booking
// state machine. Anything not listed here is rejected.
func isTransitionAllowed(from, to bookingdomain.BookingStatus) bool {
	switch from {
	case bookingdomain.BookingStatusRequested:
		return to == bookingdomain.BookingStatusApproved ||
			to == bookingdomain.BookingStatusRejected
	case bookingdomain.BookingStatusApproved:
		return to == bookingdomain.BookingStatusUpfrontPaid ||
			to == bookingdomain.BookingStatusCancelled
	case bookingdomain.BookingStatusUpfrontPaid:
		return to == bookingdomain.BookingStatusInProgress ||
			to == bookingdomain.BookingStatusCancelled
	case bookingdomain.BookingStatusInProgress:
		return to == bookingdomain.BookingStatusCompleted ||
			to == bookingdomain.BookingStatusCancelled
	default:
		// completed, cancelled and rejected are terminal
		return false
	}
}

func isValidStatus(status bookingdomain.BookingStatus) bool {
	switch status {
	case bookingdomain.BookingStatusRequested,
		bookingdomain.BookingStatusApproved,
		bookingdomain.BookingStatusRejected,
		bookingdomain.BookingStatusUpfrontPaid,
		bookingdomain.BookingStatusInProgress,
		bookingdomain.BookingStatusCompleted,
		bookingdomain.BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// approveBlockingStatuses are the statuses that make a slot
// authoritative at approval time. Two requested bookings may coexist;
// approval is the serialization point.
var approveBlockingStatuses = []bookingdomain.BookingStatus{
	bookingdomain.BookingStatusApproved,
	bookingdomain.BookingStatusUpfrontPaid,
	bookingdomain.BookingStatusInProgress,
}

// requestBlockingStatuses drive the advisory check at request time.
var requestBlockingStatuses = []bookingdomain.BookingStatus{
	bookingdomain.BookingStatusRequested,
	bookingdomain.BookingStatusApproved,
	bookingdomain.BookingStatusUpfrontPaid,
	bookingdomain.BookingStatusInProgress,
}
