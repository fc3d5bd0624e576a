package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	auditloghandler "opsdesk/internal/auditlog/handler"
	auditlogservice "opsdesk/internal/auditlog/service"
	commissionhandler "opsdesk/internal/commissions/handler"
	commissionmodels "opsdesk/internal/commissions/models"
	commissionservice "opsdesk/internal/commissions/service"
	customerhandler "opsdesk/internal/customers/handler"
	customermodels "opsdesk/internal/customers/models"
	customerservice "opsdesk/internal/customers/service"
	dashboardhandler "opsdesk/internal/dashboards/handler"
	dashboardmodels "opsdesk/internal/dashboards/models"
	dashboardservice "opsdesk/internal/dashboards/service"
	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/backend"
	documenthandler "opsdesk/internal/documents/handler"
	documentmodels "opsdesk/internal/documents/models"
	documentservice "opsdesk/internal/documents/service"
	templatehandler "opsdesk/internal/emailtemplates/handler"
	templatemodels "opsdesk/internal/emailtemplates/models"
	templateservice "opsdesk/internal/emailtemplates/service"
	employeehandler "opsdesk/internal/employees/handler"
	employeemodels "opsdesk/internal/employees/models"
	employeeservice "opsdesk/internal/employees/service"
	httpapi "opsdesk/internal/http"
	invoicehandler "opsdesk/internal/invoices/handler"
	invoicemodels "opsdesk/internal/invoices/models"
	invoiceservice "opsdesk/internal/invoices/service"
	permissionhandler "opsdesk/internal/permissionrequests/handler"
	permissionmodels "opsdesk/internal/permissionrequests/models"
	permissionservice "opsdesk/internal/permissionrequests/service"
	"opsdesk/internal/platform/config"
	platformmetrics "opsdesk/internal/platform/metrics"
	projecthandler "opsdesk/internal/projects/handler"
	projectmodels "opsdesk/internal/projects/models"
	projectservice "opsdesk/internal/projects/service"
	quotehandler "opsdesk/internal/quotes/handler"
	quotemodels "opsdesk/internal/quotes/models"
	quoteservice "opsdesk/internal/quotes/service"
	shipmenthandler "opsdesk/internal/shipments/handler"
	shipmentmetrics "opsdesk/internal/shipments/metrics"
	shipmentmodels "opsdesk/internal/shipments/models"
	shipmentservice "opsdesk/internal/shipments/service"
	"opsdesk/internal/shipments/sla"
)

// modules holds what the router and scheduler need from the business
// packages.
type modules struct {
	api                []httpapi.Registrar
	raw                []httpapi.Registrar
	sweeper            *sla.Sweeper
	quotes             *quoteservice.Service
	permissionRequests *permissionservice.Service
}

func buildModules(ctx context.Context, cfg *config.Config, in *infra, reg prometheus.Registerer, log *slog.Logger) (*modules, error) {
	o := &storeOpener{ctx: ctx, backend: in.backend}
	var (
		shipments   = openStore[*shipmentmodels.Shipment](o, shipmentmodels.Schema)
		history     = openStore[*shipmentmodels.StatusHistoryEntry](o, shipmentmodels.HistorySchema)
		projects    = openStore[*projectmodels.Project](o, projectmodels.Schema)
		customers   = openStore[*customermodels.Customer](o, customermodels.Schema)
		employees   = openStore[*employeemodels.Employee](o, employeemodels.Schema)
		invoices    = openStore[*invoicemodels.Invoice](o, invoicemodels.Schema)
		quotes      = openStore[*quotemodels.Quote](o, quotemodels.Schema)
		commissions = openStore[*commissionmodels.Commission](o, commissionmodels.Schema)
		templates   = openStore[*templatemodels.Template](o, templatemodels.Schema)
		dashboards  = openStore[*dashboardmodels.Dashboard](o, dashboardmodels.Schema)
		requests    = openStore[*permissionmodels.Request](o, permissionmodels.Schema)
		grants      = openStore[*permissionmodels.Grant](o, permissionmodels.GrantSchema)
		documents   = openStore[*documentmodels.Document](o, documentmodels.Schema)
	)
	if o.err != nil {
		return nil, o.err
	}

	mutations := platformmetrics.NewMutations(reg)
	shipMetrics := shipmentmetrics.New(reg)

	classifier := sla.NewClassifier(cfg.SLA.WarningThreshold)
	sweeper := sla.NewSweeper(shipments, classifier,
		sla.WithLogger(log),
		sla.WithAuditPublisher(in.publisher),
		sla.WithMetrics(shipMetrics),
		sla.WithTracer(otel.Tracer("opsdesk/shipments/sla")),
	)

	shipmentSvc := shipmentservice.New(shipments, history, classifier,
		shipmentservice.WithLogger(log),
		shipmentservice.WithAuditPublisher(in.publisher),
		shipmentservice.WithMetrics(shipMetrics),
		shipmentservice.WithTx(in.tx),
		shipmentservice.WithSweeper(sweeper),
	)
	projectSvc := projectservice.New(projects,
		projectservice.WithLogger(log),
		projectservice.WithAuditPublisher(in.publisher),
		projectservice.WithMetrics(mutations),
		projectservice.WithTx(in.tx),
	)
	customerSvc := customerservice.New(customers,
		customerservice.WithLogger(log),
		customerservice.WithAuditPublisher(in.publisher),
		customerservice.WithMetrics(mutations),
		customerservice.WithTx(in.tx),
	)
	employeeSvc := employeeservice.New(employees,
		employeeservice.WithLogger(log),
		employeeservice.WithAuditPublisher(in.publisher),
		employeeservice.WithMetrics(mutations),
		employeeservice.WithTx(in.tx),
	)
	invoiceSvc := invoiceservice.New(invoices, in.counter,
		invoiceservice.WithLogger(log),
		invoiceservice.WithAuditPublisher(in.publisher),
		invoiceservice.WithMetrics(mutations),
		invoiceservice.WithTx(in.tx),
	)
	quoteSvc := quoteservice.New(quotes, in.counter, invoiceSvc,
		quoteservice.WithLogger(log),
		quoteservice.WithAuditPublisher(in.publisher),
		quoteservice.WithMetrics(mutations),
		quoteservice.WithTx(in.tx),
	)
	commissionSvc := commissionservice.New(commissions, employees,
		commissionservice.WithLogger(log),
		commissionservice.WithAuditPublisher(in.publisher),
		commissionservice.WithMetrics(mutations),
		commissionservice.WithTx(in.tx),
	)
	templateSvc := templateservice.New(templates,
		templateservice.WithLogger(log),
		templateservice.WithAuditPublisher(in.publisher),
		templateservice.WithMetrics(mutations),
		templateservice.WithTx(in.tx),
	)
	dashboardSvc := dashboardservice.New(dashboards,
		dashboardservice.WithLogger(log),
		dashboardservice.WithAuditPublisher(in.publisher),
		dashboardservice.WithMetrics(mutations),
		dashboardservice.WithTx(in.tx),
	)
	permissionSvc := permissionservice.New(requests, grants,
		permissionservice.WithLogger(log),
		permissionservice.WithAuditPublisher(in.publisher),
		permissionservice.WithMetrics(mutations),
		permissionservice.WithTx(in.tx),
	)
	documentSvc := documentservice.New(documents, in.blobs,
		documentservice.WithLogger(log),
		documentservice.WithAuditPublisher(in.publisher),
		documentservice.WithMetrics(mutations),
		documentservice.WithTx(in.tx),
		documentservice.WithMaxSize(cfg.ObjectStore.MaxUploadBytes),
	)
	auditSvc := auditlogservice.New(in.auditStore, auditlogservice.WithLogger(log))

	return &modules{
		api: []httpapi.Registrar{
			shipmenthandler.New(shipmentSvc, log),
			projecthandler.New(projectSvc, log),
			customerhandler.New(customerSvc, log),
			employeehandler.New(employeeSvc, log),
			invoicehandler.New(invoiceSvc, log),
			quotehandler.New(quoteSvc, log),
			commissionhandler.New(commissionSvc, log),
			templatehandler.New(templateSvc, log),
			dashboardhandler.New(dashboardSvc, log),
			permissionhandler.New(permissionSvc, log),
			auditloghandler.New(auditSvc, log),
		},
		raw: []httpapi.Registrar{
			documenthandler.New(documentSvc, log),
		},
		sweeper:            sweeper,
		quotes:             quoteSvc,
		permissionRequests: permissionSvc,
	}, nil
}

// storeOpener opens one typed store per collection and keeps the first error.
type storeOpener struct {
	ctx     context.Context
	backend *backend.Backend
	err     error
}

func openStore[T docstore.Entity[T]](o *storeOpener, schema docstore.Schema) docstore.Store[T] {
	if o.err != nil {
		return nil
	}
	s, err := backend.Open[T](o.ctx, o.backend, schema)
	if err != nil {
		o.err = fmt.Errorf("open %s store: %w", schema.Collection, err)
	}
	return s
}
