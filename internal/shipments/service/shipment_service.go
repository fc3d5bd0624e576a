package service

import (
	"context"
	"strings"
	"time"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/internal/shipments/models"
	"opsdesk/internal/shipments/sla"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/requestcontext"
)

type CreateInput struct {
	Reference   string
	CustomerID  *domain.CustomerID
	Origin      string
	Destination string
	Carrier     string
	SLADeadline *time.Time
}

// UpdateInput carries optional field changes. Nil pointers leave a field as is;
// the Clear flags remove optional values.
type UpdateInput struct {
	Reference     *string
	CustomerID    *domain.CustomerID
	ClearCustomer bool
	Origin        *string
	Destination   *string
	Carrier       *string
	SLADeadline   *time.Time
	ClearDeadline bool
}

type ListFilter struct {
	Status         models.Status
	SLAStatus      models.SLAStatus
	CustomerID     *domain.CustomerID
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// SLASummary counts a tenant's live shipments by SLA status.
type SLASummary struct {
	OnTime    int `json:"onTime"`
	Warning   int `json:"warning"`
	Overdue   int `json:"overdue"`
	Untracked int `json:"untracked"`
	Total     int `json:"total"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Shipment, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	sh, err := models.NewShipment(p.TenantID, in.Reference, in.Origin, in.Destination, in.Carrier, in.CustomerID, in.SLADeadline, now, p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	if status := s.classifier.Evaluate(sh, now); status != "" {
		sh.ApplySLA(status, now)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.shipments.Insert(txCtx, sh); err != nil {
			return wrapShipmentErr(err, "create shipment")
		}
		if err := s.recordHistory(txCtx, sh, "", "created", now, p.UserID); err != nil {
			return err
		}
		return s.emitter.Record(txCtx, audit.EventShipmentCreated, resourceType, sh.ID.String(), sh.Reference)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCreated()
	return sh, nil
}

func (s *Service) Get(ctx context.Context, id domain.ShipmentID) (*models.Shipment, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	sh, err := s.shipments.Get(ctx, p.TenantID, uuidOf(id))
	if err != nil {
		return nil, wrapShipmentErr(err, "load shipment")
	}
	if err := visible(sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Shipment, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{
		IncludeDeleted: f.IncludeDeleted && p.IsAdmin(),
		Limit:          f.Limit,
		Offset:         f.Offset,
	}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	if f.SLAStatus != "" {
		q = q.Where("slaStatus", f.SLAStatus)
	}
	if f.CustomerID != nil {
		q = q.Where("customerId", *f.CustomerID)
	}
	out, err := s.shipments.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapShipmentErr(err, "list shipments")
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id domain.ShipmentID, in UpdateInput) (*models.Shipment, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	if err := validateUpdate(in); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var updated *models.Shipment
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sh, err := s.shipments.Execute(txCtx, p.TenantID, uuidOf(id),
			func(sh *models.Shipment) error {
				return invariantToConflict(sh.CanEdit())
			},
			func(sh *models.Shipment) {
				applyUpdate(sh, in)
				s.reclassify(sh, now)
				sh.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapShipmentErr(err, "update shipment")
		}
		updated = sh
		return s.emitter.Record(txCtx, audit.EventShipmentUpdated, resourceType, sh.ID.String(), sh.Reference)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ChangeStatus moves a shipment along its lifecycle and appends a history entry.
func (s *Service) ChangeStatus(ctx context.Context, id domain.ShipmentID, to models.Status, note string) (*models.Shipment, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	if !to.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid shipment status: "+string(to))
	}

	now := requestcontext.Now(ctx)
	var (
		updated *models.Shipment
		from    models.Status
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sh, err := s.shipments.Execute(txCtx, p.TenantID, uuidOf(id),
			func(sh *models.Shipment) error {
				return invariantToConflict(sh.CanTransition(to))
			},
			func(sh *models.Shipment) {
				from = sh.Status
				sh.ApplyTransition(to, now, p.UserID)
				s.reclassify(sh, now)
			},
		)
		if err != nil {
			return wrapShipmentErr(err, "change shipment status")
		}
		updated = sh
		if err := s.recordHistory(txCtx, sh, from, note, now, p.UserID); err != nil {
			return err
		}
		return s.emitter.Record(txCtx, audit.EventShipmentStatusChanged, resourceType, sh.ID.String(),
			string(from)+" -> "+string(to))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementTransition(string(to))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id domain.ShipmentID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	if err := models.RequireDelete(p); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sh, err := s.shipments.Execute(txCtx, p.TenantID, uuidOf(id),
			func(sh *models.Shipment) error {
				if sh.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, "Shipment not found")
				}
				return nil
			},
			func(sh *models.Shipment) { sh.ApplyDelete(now, p.UserID) },
		)
		if err != nil {
			return wrapShipmentErr(err, "delete shipment")
		}
		return s.emitter.Record(txCtx, audit.EventShipmentDeleted, resourceType, sh.ID.String(), sh.Reference)
	})
}

// History returns the status changes of a shipment, oldest first.
func (s *Service) History(ctx context.Context, id domain.ShipmentID) ([]*models.StatusHistoryEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	tenant := requestcontext.TenantID(ctx)
	entries, err := s.history.List(ctx, tenant, docstore.Query{}.Where("shipmentId", id))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status history")
	}
	return entries, nil
}

func (s *Service) SLASummary(ctx context.Context) (*SLASummary, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	all, err := s.shipments.List(ctx, p.TenantID, docstore.Query{})
	if err != nil {
		return nil, wrapShipmentErr(err, "summarize shipments")
	}
	summary := &SLASummary{Total: len(all)}
	for _, sh := range all {
		switch sh.SLAStatus {
		case models.SLAOnTime:
			summary.OnTime++
		case models.SLAWarning:
			summary.Warning++
		case models.SLAOverdue:
			summary.Overdue++
		default:
			summary.Untracked++
		}
	}
	return summary, nil
}

// RecalculateSLA runs the sweep for the caller's tenant on demand.
func (s *Service) RecalculateSLA(ctx context.Context) (*sla.Report, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRecalculate(p); err != nil {
		return nil, err
	}
	report, err := s.sweeper.RunTenant(ctx, p.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to recalculate sla")
	}
	return &report, nil
}

func (s *Service) reclassify(sh *models.Shipment, now time.Time) {
	if sh.SLADeadline == nil {
		sh.SLAStatus = ""
		sh.SLALastCheckedAt = nil
		return
	}
	sh.ApplySLA(s.classifier.Evaluate(sh, now), now)
}

func validateUpdate(in UpdateInput) error {
	if in.Reference != nil {
		ref := strings.TrimSpace(*in.Reference)
		if ref == "" {
			return dErrors.New(dErrors.CodeValidation, "shipment reference is required")
		}
		if len(ref) > models.MaxReferenceLength {
			return dErrors.New(dErrors.CodeValidation, "shipment reference must be 64 characters or less")
		}
	}
	if in.Destination != nil && strings.TrimSpace(*in.Destination) == "" {
		return dErrors.New(dErrors.CodeValidation, "shipment destination is required")
	}
	return nil
}

func applyUpdate(sh *models.Shipment, in UpdateInput) {
	if in.Reference != nil {
		sh.Reference = strings.TrimSpace(*in.Reference)
	}
	if in.Origin != nil {
		sh.Origin = strings.TrimSpace(*in.Origin)
	}
	if in.Destination != nil {
		sh.Destination = strings.TrimSpace(*in.Destination)
	}
	if in.Carrier != nil {
		sh.Carrier = strings.TrimSpace(*in.Carrier)
	}
	switch {
	case in.ClearCustomer:
		sh.CustomerID = nil
	case in.CustomerID != nil:
		c := *in.CustomerID
		sh.CustomerID = &c
	}
	switch {
	case in.ClearDeadline:
		sh.SLADeadline = nil
	case in.SLADeadline != nil:
		d := *in.SLADeadline
		sh.SLADeadline = &d
	}
}
