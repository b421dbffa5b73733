package models

import (
	"fmt"
	"strings"
)

// ProductKind identifies a bookable vertical.
type ProductKind string

const (
	KindHotel     ProductKind = "hotel"
	KindTour      ProductKind = "tour"
	KindCarRental ProductKind = "car_rental"
	KindActivity  ProductKind = "activity"
	KindVisa      ProductKind = "visa"
)

// DateLayout describes which date columns a vertical's reservations carry.
type DateLayout int

const (
	// DatesRange requires start and end (hotel stay, car pickup/dropoff).
	DatesRange DateLayout = iota
	// DatesPeriod carries a start date plus a free-text period (tours).
	DatesPeriod
	// DatesSingle carries one date (activity day, visa application date).
	DatesSingle
)

// KindSpec is the per-vertical table and tag mapping used by the generic pipeline.
type KindSpec struct {
	Kind             ProductKind
	ReservationTable string
	InvoiceTable     string
	TravelerTable    string
	ProductColumn    string
	Dates            DateLayout
	PaymentType      string
	ServiceType      string
}

var kindSpecs = map[ProductKind]KindSpec{
	KindHotel:     newKindSpec(KindHotel, "hotel", DatesRange, "hotel_booking"),
	KindTour:      newKindSpec(KindTour, "tour", DatesPeriod, "tour_booking"),
	KindCarRental: newKindSpec(KindCarRental, "car_rental", DatesRange, "car_rental_booking"),
	KindActivity:  newKindSpec(KindActivity, "activity", DatesSingle, "activity_booking"),
	KindVisa:      newKindSpec(KindVisa, "visa", DatesSingle, "visa_application"),
}

func newKindSpec(kind ProductKind, prefix string, dates DateLayout, paymentType string) KindSpec {
	return KindSpec{
		Kind:             kind,
		ReservationTable: prefix + "_reservations",
		InvoiceTable:     prefix + "_reservation_invoices",
		TravelerTable:    prefix + "_reservation_users",
		ProductColumn:    prefix + "_id",
		Dates:            dates,
		PaymentType:      paymentType,
		ServiceType:      prefix,
	}
}

// AllKinds returns every vertical in a stable order.
func AllKinds() []ProductKind {
	return []ProductKind{KindHotel, KindTour, KindCarRental, KindActivity, KindVisa}
}

func (k ProductKind) Spec() (KindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

// MustSpec panics on an unknown kind. Use only with values from ParseKind or the Kind constants.
func (k ProductKind) MustSpec() KindSpec {
	s, ok := kindSpecs[k]
	if !ok {
		panic(fmt.Sprintf("unknown product kind %q", string(k)))
	}
	return s
}

func (k ProductKind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func ParseKind(s string) (ProductKind, error) {
	k := ProductKind(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	if !k.Valid() {
		return "", fmt.Errorf("unknown product kind %q", s)
	}
	return k, nil
}

// KindByPaymentType maps the gateway metadata tag back to a vertical.
func KindByPaymentType(paymentType string) (ProductKind, bool) {
	for _, s := range kindSpecs {
		if s.PaymentType == paymentType {
			return s.Kind, true
		}
	}
	return "", false
}
