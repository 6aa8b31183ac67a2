package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

const (
	groomingCollection = "appointments_grooming"
	daycareCollection  = "appointments_daycare"
)

// AppointmentRepository reads the grooming and daycare schedule books and
// writes price changes back to them.
type AppointmentRepository struct {
	grooming *pfirestore.BaseRepository[appointmentDocument]
	daycare  *pfirestore.BaseRepository[appointmentDocument]
}

// NewAppointmentRepository constructs a Firestore-backed appointment repository.
func NewAppointmentRepository(provider *pfirestore.Provider) (*AppointmentRepository, error) {
	if provider == nil {
		return nil, errors.New("appointment repository requires firestore provider")
	}
	return &AppointmentRepository{
		grooming: pfirestore.NewBaseRepository[appointmentDocument](provider, groomingCollection),
		daycare:  pfirestore.NewBaseRepository[appointmentDocument](provider, daycareCollection),
	}, nil
}

// Find loads a single schedule entry.
func (r *AppointmentRepository) Find(ctx context.Context, ref domain.AppointmentRef) (domain.Appointment, error) {
	base, err := r.book(ref.Kind)
	if err != nil {
		return domain.Appointment{}, err
	}
	doc, err := base.Get(ctx, strings.TrimSpace(ref.ID))
	if err != nil {
		return domain.Appointment{}, err
	}
	return decodeAppointment(ref.Kind, doc.ID, doc.Data), nil
}

// ListOpenByCustomer returns unsettled schedule entries from both books,
// soonest first.
func (r *AppointmentRepository) ListOpenByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error) {
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return nil, errors.New("appointment repository: customer id is required")
	}

	var appointments []domain.Appointment
	for _, kind := range []domain.AppointmentKind{domain.AppointmentKindGrooming, domain.AppointmentKindDaycare} {
		base, err := r.book(kind)
		if err != nil {
			return nil, err
		}
		docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("customerId", "==", cid).Where("settled", "==", false)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			appointments = append(appointments, decodeAppointment(kind, doc.ID, doc.Data))
		}
	}
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].StartsAt.Before(appointments[j].StartsAt)
	})
	return appointments, nil
}

// UpdatePrice writes the price back to the schedule entry.
func (r *AppointmentRepository) UpdatePrice(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error {
	base, err := r.book(ref.Kind)
	if err != nil {
		return err
	}
	_, err = base.Update(ctx, strings.TrimSpace(ref.ID), []firestore.Update{
		{Path: "price", Value: price},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

func (r *AppointmentRepository) book(kind domain.AppointmentKind) (*pfirestore.BaseRepository[appointmentDocument], error) {
	if r == nil {
		return nil, errors.New("appointment repository not initialised")
	}
	switch kind {
	case domain.AppointmentKindGrooming:
		return r.grooming, nil
	case domain.AppointmentKindDaycare:
		return r.daycare, nil
	default:
		return nil, fmt.Errorf("appointment repository: unknown kind %q", kind)
	}
}

func decodeAppointment(kind domain.AppointmentKind, id string, doc appointmentDocument) domain.Appointment {
	return domain.Appointment{
		Ref:         domain.AppointmentRef{Kind: kind, ID: id},
		CustomerID:  doc.CustomerID,
		ServiceName: doc.ServiceName,
		Price:       doc.Price,
		StartsAt:    doc.StartsAt,
	}
}

type appointmentDocument struct {
	CustomerID  string    `firestore:"customerId"`
	ServiceName string    `firestore:"serviceName"`
	Price       int64     `firestore:"price"`
	Settled     bool      `firestore:"settled"`
	StartsAt    time.Time `firestore:"startsAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

var _ repositories.AppointmentRepository = (*AppointmentRepository)(nil)
