// Package billing creates, updates and prices invoices and estimates. Every
// write runs in one transaction: validation, reconciliation and pricing finish
// before the first statement that changes data.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-bengkel/internal/catalog"
	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/events"
	"github.com/noah-isme/backend-bengkel/internal/lineitem"
	"github.com/noah-isme/backend-bengkel/internal/obs"
	"github.com/noah-isme/backend-bengkel/internal/pricing"
	"github.com/noah-isme/backend-bengkel/internal/reconcile"
	"github.com/noah-isme/backend-bengkel/internal/store"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

// Service orchestrates document writes.
type Service struct {
	tx        Transactor
	reads     Querier
	allocator *docnumber.Allocator
	catalog   catalog.Lookup
	validator *validation.Validator
	bus       *events.Bus
	metrics   *obs.DomainMetrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// Config groups Service dependencies. Catalog is only used by Preview;
// writes price through the transaction.
type Config struct {
	Tx        Transactor
	Reads     Querier
	Allocator *docnumber.Allocator
	Catalog   catalog.Lookup
	Validator *validation.Validator
	Bus       *events.Bus
	Metrics   *obs.DomainMetrics
	Logger    zerolog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Tx == nil:
		return nil, errors.New("billing: transactor is required")
	case cfg.Reads == nil:
		return nil, errors.New("billing: read querier is required")
	case cfg.Allocator == nil:
		return nil, errors.New("billing: number allocator is required")
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = &events.Bus{}
	}
	return &Service{
		tx:        cfg.Tx,
		reads:     cfg.Reads,
		allocator: cfg.Allocator,
		catalog:   cfg.Catalog,
		validator: v,
		bus:       bus,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("bengkel/billing"),
	}, nil
}

type eventPayload struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Number int64  `json:"number"`
	Amount string `json:"amount"`
	Paid   bool   `json:"paid"`
	Actor  string `json:"actor"`
}

func payloadOf(doc store.Document, actor string) eventPayload {
	return eventPayload{ID: doc.ID, Kind: doc.Kind, Number: doc.Number, Amount: money(doc.Amount), Paid: doc.Paid, Actor: actor}
}

// Create validates, prices and stores a new document with the next number of its kind.
func (s *Service) Create(ctx context.Context, kind docnumber.Kind, req CreateRequest) (doc Document, err error) {
	ctx, span := s.start(ctx, "billing.create", kind)
	defer func() { s.finish(span, kind, "create", err) }()

	if !kind.Valid() {
		return Document{}, fmt.Errorf("billing: unknown kind %q", kind)
	}
	if err := s.validator.Struct(req); err != nil {
		return Document{}, err
	}
	dueDate, _, err := parseDueDate(req.DueDate)
	if err != nil {
		return Document{}, err
	}
	items, _, err := parseMaterials(req.Materials)
	if err != nil {
		return Document{}, err
	}
	req.DiscountType = normalizeType(req.DiscountType)
	if err := precheck(req.ServiceCharge, req.Discount, req.DiscountType, req.VAT, true); err != nil {
		return Document{}, err
	}
	serviceCharge := decimal.Zero
	if req.ServiceCharge != nil {
		serviceCharge = *req.ServiceCharge
	}

	actor := common.Actor(ctx)
	var (
		created  store.Document
		lines    []store.DocumentLine
		recorded []store.Event
	)
	err = s.tx.InTx(ctx, func(q Querier) error {
		if err := checkReferences(ctx, q, req.CustomerID, req.VehicleID, req.JobTypeID); err != nil {
			return err
		}

		started := time.Now()
		prices, names, err := materialPrices(ctx, q, lineitem.IDs(items))
		if err != nil {
			return err
		}
		priced := make([]pricing.Line, 0, len(items))
		for _, item := range items {
			priced = append(priced, pricing.Line{Quantity: item.Quantity, UnitPrice: prices[item.MaterialID]})
		}
		breakdown, err := pricing.Compute(pricing.Input{
			ServiceCharge: &serviceCharge,
			Lines:         priced,
			Discount:      req.Discount,
			DiscountType:  req.DiscountType,
			VAT:           req.VAT,
		})
		s.metrics.ObservePricing(time.Since(started))
		if err != nil {
			return err
		}

		number, err := s.allocator.Next(ctx, q, kind)
		if err != nil {
			s.metrics.AllocatorFailure(string(kind))
			return err
		}
		created, err = q.CreateDocument(ctx, store.CreateDocumentParams{
			Kind:          string(kind),
			Number:        number,
			CustomerID:    req.CustomerID,
			VehicleID:     req.VehicleID,
			JobTypeID:     req.JobTypeID,
			Description:   cleanDescription(req.Description),
			DueDate:       dueDate,
			ServiceCharge: serviceCharge,
			Discount:      toNull(req.Discount),
			DiscountType:  req.DiscountType,
			VAT:           toNull(req.VAT),
			Amount:        breakdown.Total,
			Actor:         actor,
		})
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		for _, item := range items {
			if err := q.InsertDocumentLine(ctx, store.InsertDocumentLineParams{
				DocumentID: created.ID,
				MaterialID: item.MaterialID,
				Quantity:   item.Quantity,
				UnitPrice:  prices[item.MaterialID],
			}); err != nil {
				return fmt.Errorf("insert line item %d: %w", item.MaterialID, err)
			}
			lines = append(lines, store.DocumentLine{
				DocumentID:  created.ID,
				MaterialID:  item.MaterialID,
				ProductName: names[item.MaterialID],
				Quantity:    item.Quantity,
				UnitPrice:   prices[item.MaterialID],
			})
		}
		ev, err := s.bus.Record(ctx, q, events.Topic(string(kind), "created"), strconv.FormatInt(created.ID, 10), payloadOf(created, actor))
		if err != nil {
			return err
		}
		recorded = append(recorded, ev)
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	s.metrics.NumberIssued(string(kind))
	s.metrics.LineItems("add", len(items))
	s.dispatch(ctx, recorded)
	if lines == nil {
		lines = []store.DocumentLine{}
	}
	return present(created, lines), nil
}

// Update applies a partial change. Line items are reconciled against the
// stored set: added materials take the current catalog price, modified ones
// keep their snapshot.
func (s *Service) Update(ctx context.Context, kind docnumber.Kind, id int64, req UpdateRequest) (doc Document, err error) {
	ctx, span := s.start(ctx, "billing.update", kind)
	defer func() { s.finish(span, kind, "update", err) }()

	if !kind.Valid() {
		return Document{}, fmt.Errorf("billing: unknown kind %q", kind)
	}
	if err := s.validator.Struct(req); err != nil {
		return Document{}, err
	}
	if req.Paid != nil && kind != docnumber.KindInvoice {
		return Document{}, ErrPaidNotAllowed
	}
	dueDate, setDueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		return Document{}, err
	}
	items, replaceLines, err := parseMaterials(req.Materials)
	if err != nil {
		return Document{}, err
	}
	req.DiscountType = normalizeType(req.DiscountType)
	if err := precheck(req.ServiceCharge, req.Discount, req.DiscountType, req.VAT, false); err != nil {
		return Document{}, err
	}

	actor := common.Actor(ctx)
	var (
		updated  store.Document
		lines    []store.DocumentLine
		diff     reconcile.Result
		recorded []store.Event
	)
	err = s.tx.InTx(ctx, func(q Querier) error {
		cur, err := q.GetDocumentForUpdate(ctx, string(kind), id)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s %d", ErrDocumentNotFound, kind, id)
			}
			return fmt.Errorf("load document: %w", err)
		}
		if cur.Paid {
			return ErrDocumentPaid
		}

		next := mergeUpdate(cur, req, dueDate, setDueDate)
		if next.CustomerID != cur.CustomerID || next.VehicleID != cur.VehicleID || next.JobTypeID != cur.JobTypeID {
			if err := checkReferences(ctx, q, next.CustomerID, next.VehicleID, next.JobTypeID); err != nil {
				return err
			}
		}
		if err := pricing.CheckDiscount(nullPtr(next.Discount), next.DiscountType); err != nil {
			return err
		}

		stored, err := q.ListDocumentLines(ctx, cur.ID)
		if err != nil {
			return fmt.Errorf("list line items: %w", err)
		}
		current := make([]reconcile.Line, 0, len(stored))
		for _, l := range stored {
			current = append(current, reconcile.Line{MaterialID: l.MaterialID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		}
		if replaceLines {
			diff = reconcile.Diff(items, current)
		} else {
			diff = reconcile.Result{ToUnchanged: current}
		}

		started := time.Now()
		prices, _, err := materialPrices(ctx, q, diff.AddedIDs())
		if err != nil {
			return err
		}
		final := diff.Lines(prices)
		priced := make([]pricing.Line, 0, len(final))
		for _, l := range final {
			priced = append(priced, pricing.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		}
		breakdown, err := pricing.Compute(pricingInput(next, priced))
		s.metrics.ObservePricing(time.Since(started))
		if err != nil {
			return err
		}
		next.Amount = breakdown.Total

		for _, l := range diff.ToRemove {
			if err := q.DeleteDocumentLine(ctx, cur.ID, l.MaterialID); err != nil {
				return fmt.Errorf("remove line item %d: %w", l.MaterialID, err)
			}
		}
		for _, c := range diff.ToModify {
			if err := q.UpdateDocumentLineQuantity(ctx, cur.ID, c.MaterialID, c.Quantity); err != nil {
				return fmt.Errorf("modify line item %d: %w", c.MaterialID, err)
			}
		}
		for _, item := range diff.ToAdd {
			if err := q.InsertDocumentLine(ctx, store.InsertDocumentLineParams{
				DocumentID: cur.ID,
				MaterialID: item.MaterialID,
				Quantity:   item.Quantity,
				UnitPrice:  prices[item.MaterialID],
			}); err != nil {
				return fmt.Errorf("insert line item %d: %w", item.MaterialID, err)
			}
		}

		updated, err = q.UpdateDocument(ctx, store.UpdateDocumentParams{
			ID:            cur.ID,
			Kind:          cur.Kind,
			CustomerID:    next.CustomerID,
			VehicleID:     next.VehicleID,
			JobTypeID:     next.JobTypeID,
			Description:   next.Description,
			DueDate:       next.DueDate,
			ServiceCharge: next.ServiceCharge,
			Discount:      next.Discount,
			DiscountType:  next.DiscountType,
			VAT:           next.VAT,
			Amount:        next.Amount,
			Paid:          next.Paid,
			Actor:         actor,
		})
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if lines, err = q.ListDocumentLines(ctx, cur.ID); err != nil {
			return fmt.Errorf("list line items: %w", err)
		}

		aggregate := strconv.FormatInt(updated.ID, 10)
		ev, err := s.bus.Record(ctx, q, events.Topic(string(kind), "updated"), aggregate, payloadOf(updated, actor))
		if err != nil {
			return err
		}
		recorded = append(recorded, ev)
		if updated.Paid && !cur.Paid {
			ev, err := s.bus.Record(ctx, q, events.TopicInvoicePaid, aggregate, payloadOf(updated, actor))
			if err != nil {
				return err
			}
			recorded = append(recorded, ev)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	s.metrics.LineItems("add", len(diff.ToAdd))
	s.metrics.LineItems("modify", len(diff.ToModify))
	s.metrics.LineItems("remove", len(diff.ToRemove))
	s.dispatch(ctx, recorded)
	if lines == nil {
		lines = []store.DocumentLine{}
	}
	return present(updated, lines), nil
}

// Get returns a document with its line items and price breakdown.
func (s *Service) Get(ctx context.Context, kind docnumber.Kind, id int64) (doc Document, err error) {
	ctx, span := s.start(ctx, "billing.get", kind)
	defer func() { s.finish(span, kind, "get", err) }()

	stored, err := s.reads.GetDocument(ctx, string(kind), id)
	if err != nil {
		if store.IsNotFound(err) {
			return Document{}, fmt.Errorf("%w: %s %d", ErrDocumentNotFound, kind, id)
		}
		return Document{}, fmt.Errorf("load document: %w", err)
	}
	lines, err := s.reads.ListDocumentLines(ctx, stored.ID)
	if err != nil {
		return Document{}, fmt.Errorf("list line items: %w", err)
	}
	if lines == nil {
		lines = []store.DocumentLine{}
	}
	return present(stored, lines), nil
}

// List returns a page of documents of kind, newest first.
func (s *Service) List(ctx context.Context, kind docnumber.Kind, filter ListFilter) (res ListResult, err error) {
	ctx, span := s.start(ctx, "billing.list", kind)
	defer func() { s.finish(span, kind, "list", err) }()

	params := store.ListDocumentsParams{
		Kind:       string(kind),
		CustomerID: filter.CustomerID,
		Paid:       filter.Paid,
		Limit:      filter.Page.PerPage,
		Offset:     filter.Page.Offset(),
	}
	total, err := s.reads.CountDocuments(ctx, params)
	if err != nil {
		return ListResult{}, fmt.Errorf("count documents: %w", err)
	}
	rows, err := s.reads.ListDocuments(ctx, params)
	if err != nil {
		return ListResult{}, fmt.Errorf("list documents: %w", err)
	}
	res = ListResult{Items: make([]Document, 0, len(rows)), Total: total}
	for _, row := range rows {
		res.Items = append(res.Items, present(row, nil))
	}
	return res, nil
}

// Delete removes an unpaid document together with its line items. The number
// it held is not reissued.
func (s *Service) Delete(ctx context.Context, kind docnumber.Kind, id int64) (err error) {
	ctx, span := s.start(ctx, "billing.delete", kind)
	defer func() { s.finish(span, kind, "delete", err) }()

	actor := common.Actor(ctx)
	var recorded []store.Event
	err = s.tx.InTx(ctx, func(q Querier) error {
		cur, err := q.GetDocumentForUpdate(ctx, string(kind), id)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s %d", ErrDocumentNotFound, kind, id)
			}
			return fmt.Errorf("load document: %w", err)
		}
		if cur.Paid {
			return ErrDocumentPaid
		}
		if _, err := q.DeleteDocument(ctx, string(kind), id); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		ev, err := s.bus.Record(ctx, q, events.Topic(string(kind), "deleted"), strconv.FormatInt(id, 10), payloadOf(cur, actor))
		if err != nil {
			return err
		}
		recorded = append(recorded, ev)
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, recorded)
	return nil
}

// Preview prices a prospective document without writing anything. Materials
// are priced at their current catalog cost.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (p Preview, err error) {
	ctx, span := s.tracer.Start(ctx, "billing.preview")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	items, _, err := parseMaterials(&req.Materials)
	if err != nil {
		return Preview{}, err
	}
	req.DiscountType = normalizeType(req.DiscountType)
	if err := precheck(req.ServiceCharge, req.Discount, req.DiscountType, req.VAT, true); err != nil {
		return Preview{}, err
	}

	started := time.Now()
	prices, names, err := s.previewPrices(ctx, lineitem.IDs(items))
	if err != nil {
		return Preview{}, err
	}
	p = Preview{Materials: lineitem.Encode(items), Lines: make([]Line, 0, len(items))}
	priced := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		price := prices[item.MaterialID]
		priced = append(priced, pricing.Line{Quantity: item.Quantity, UnitPrice: price})
		p.Lines = append(p.Lines, lineView(item.MaterialID, item.Quantity, names[item.MaterialID], price))
	}
	b, err := pricing.Compute(pricing.Input{
		ServiceCharge: req.ServiceCharge,
		Lines:         priced,
		Discount:      req.Discount,
		DiscountType:  req.DiscountType,
		VAT:           req.VAT,
	})
	s.metrics.ObservePricing(time.Since(started))
	if err != nil {
		return Preview{}, err
	}
	p.Breakdown = *breakdownView(b)
	return p, nil
}

func (s *Service) previewPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, map[int64]string, error) {
	if s.catalog == nil {
		return materialPrices(ctx, s.reads, ids)
	}
	prices := make(map[int64]decimal.Decimal, len(ids))
	names := make(map[int64]string, len(ids))
	var missing []int64
	for _, id := range ids {
		m, err := s.catalog.GetMaterial(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrMaterialNotFound) {
				missing = append(missing, id)
				continue
			}
			return nil, nil, err
		}
		prices[id] = m.ProductCost
		names[id] = m.ProductName
	}
	if len(missing) > 0 {
		return nil, nil, &MissingMaterialsError{IDs: missing}
	}
	return prices, names, nil
}

func (s *Service) start(ctx context.Context, name string, kind docnumber.Kind) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("billing.kind", string(kind))))
}

func (s *Service) finish(span trace.Span, kind docnumber.Kind, op string, err error) {
	s.metrics.DocumentOp(string(kind), op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// dispatch hands committed events to the relay. Failures are logged only:
// the events are already stored with the document.
func (s *Service) dispatch(ctx context.Context, evs []store.Event) {
	if err := s.bus.Dispatch(ctx, evs...); err != nil {
		s.logger.Warn().Err(err).Int("events", len(evs)).Msg("dispatch domain events")
	}
}

// materialPrices loads the current catalog cost of every id through q.
func materialPrices(ctx context.Context, q Querier, ids []int64) (map[int64]decimal.Decimal, map[int64]string, error) {
	prices := make(map[int64]decimal.Decimal, len(ids))
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return prices, names, nil
	}
	rows, err := q.GetMaterialsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load materials: %w", err)
	}
	for _, m := range rows {
		prices[m.ID] = m.ProductCost
		names[m.ID] = m.ProductName
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &MissingMaterialsError{IDs: missing}
	}
	return prices, names, nil
}

func checkReferences(ctx context.Context, q Querier, customerID, vehicleID, jobTypeID int64) error {
	ok, err := q.CustomerExists(ctx, customerID)
	if err != nil {
		return fmt.Errorf("check customer: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
	}
	owner, err := q.VehicleOwner(ctx, vehicleID)
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("%w: %d", ErrVehicleNotFound, vehicleID)
		}
		return fmt.Errorf("check vehicle: %w", err)
	}
	if owner != customerID {
		return ErrVehicleNotOwned
	}
	ok, err = q.JobTypeExists(ctx, jobTypeID)
	if err != nil {
		return fmt.Errorf("check job type: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobTypeNotFound, jobTypeID)
	}
	return nil
}

// parseMaterials decodes the line-item string. provided is false when the
// field was absent, which leaves stored line items untouched on update.
func parseMaterials(raw *string) (items []lineitem.Item, provided bool, err error) {
	if raw == nil {
		return nil, false, nil
	}
	items, err = lineitem.Parse(*raw)
	if err != nil {
		return nil, true, err
	}
	if err := lineitem.CheckUnique(items); err != nil {
		return nil, true, err
	}
	return items, true, nil
}

// parseDueDate returns the parsed date and whether the field was present.
// An empty string clears the date.
func parseDueDate(raw *string) (*time.Time, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil, true, nil
	}
	t, err := validation.ParseDate(v)
	if err != nil {
		return nil, true, fmt.Errorf("dueDate %q: %w", v, err)
	}
	return &t, true, nil
}

func normalizeType(v *string) *string {
	if v == nil {
		return nil
	}
	n := pricing.NormalizeDiscountType(*v)
	return &n
}

func cleanDescription(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// precheck rejects inputs that are invalid regardless of stored state. With
// complete set, a discount without its type (or the reverse) is rejected too.
func precheck(serviceCharge, discount *decimal.Decimal, discountType *string, vat *decimal.Decimal, complete bool) error {
	if serviceCharge != nil && serviceCharge.IsNegative() {
		return pricing.ErrNegativeServiceCharge
	}
	if err := pricing.CheckMoney(serviceCharge); err != nil {
		return err
	}
	if err := pricing.CheckMoney(discount); err != nil {
		return err
	}
	if complete || (discount != nil && discountType != nil) {
		if err := pricing.CheckDiscount(discount, discountType); err != nil {
			return err
		}
	} else if discountType != nil {
		switch *discountType {
		case pricing.DiscountAmount, pricing.DiscountPercentage:
		default:
			return pricing.ErrInvalidDiscountType
		}
	}
	return pricing.CheckVAT(vat)
}

// mergeUpdate overlays the request on the stored document.
func mergeUpdate(cur store.Document, req UpdateRequest, dueDate *time.Time, setDueDate bool) store.Document {
	next := cur
	if req.CustomerID != nil {
		next.CustomerID = *req.CustomerID
	}
	if req.VehicleID != nil {
		next.VehicleID = *req.VehicleID
	}
	if req.JobTypeID != nil {
		next.JobTypeID = *req.JobTypeID
	}
	if req.Description != nil {
		next.Description = cleanDescription(req.Description)
	}
	if setDueDate {
		next.DueDate = dueDate
	}
	if req.ServiceCharge != nil {
		next.ServiceCharge = *req.ServiceCharge
	}
	if req.Discount != nil {
		next.Discount = toNull(req.Discount)
	}
	if req.DiscountType != nil {
		next.DiscountType = req.DiscountType
	}
	if req.VAT != nil {
		next.VAT = toNull(req.VAT)
	}
	if req.Paid != nil {
		next.Paid = *req.Paid
	}
	return next
}
