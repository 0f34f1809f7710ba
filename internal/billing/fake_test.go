package billing_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-bengkel/internal/billing"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/store"
)

type memState struct {
	docs      map[int64]store.Document
	lines     map[int64]map[int64]store.DocumentLine
	materials map[int64]store.Material
	customers map[int64]bool
	vehicles  map[int64]int64
	jobTypes  map[int64]bool
	counters  map[docnumber.Kind]int64
	events    []store.Event
	nextDoc   int64
	nextLine  int64
}

func newMemState() *memState {
	return &memState{
		docs:      map[int64]store.Document{},
		lines:     map[int64]map[int64]store.DocumentLine{},
		materials: map[int64]store.Material{},
		customers: map[int64]bool{},
		vehicles:  map[int64]int64{},
		jobTypes:  map[int64]bool{},
		counters:  map[docnumber.Kind]int64{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.docs {
		c.docs[k] = v
	}
	for doc, ls := range s.lines {
		m := make(map[int64]store.DocumentLine, len(ls))
		for k, v := range ls {
			m[k] = v
		}
		c.lines[doc] = m
	}
	for k, v := range s.materials {
		c.materials[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range s.jobTypes {
		c.jobTypes[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	c.events = append([]store.Event(nil), s.events...)
	c.nextDoc, c.nextLine = s.nextDoc, s.nextLine
	return c
}

// memDB is an in-memory Transactor. A transaction works on a copy of the
// state that replaces it only on success, and holds the lock throughout, the
// way the counter row lock serialises creators.
type memDB struct {
	mu   sync.Mutex
	st   *memState
	fail map[string]error
}

func newMemDB() *memDB {
	return &memDB{st: newMemState(), fail: map[string]error{}}
}

func (db *memDB) InTx(_ context.Context, fn func(billing.Querier) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	work := db.st.clone()
	if err := fn(&memQ{db: db, st: work}); err != nil {
		return err
	}
	db.st = work
	return nil
}

func (db *memDB) reader() *memQ { return &memQ{db: db, pool: true} }

func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.clone()
}

type memQ struct {
	db   *memDB
	st   *memState
	pool bool
}

func (q *memQ) with(name string, fn func(st *memState) error) error {
	if q.pool {
		q.db.mu.Lock()
		defer q.db.mu.Unlock()
		if err := q.db.fail[name]; err != nil {
			return err
		}
		return fn(q.db.st)
	}
	if err := q.db.fail[name]; err != nil {
		return err
	}
	return fn(q.st)
}

func (q *memQ) MaxDocumentNumber(_ context.Context, kind docnumber.Kind) (int64, error) {
	var n int64
	err := q.with("MaxDocumentNumber", func(st *memState) error {
		for _, d := range st.docs {
			if d.Kind == string(kind) && d.Number > n {
				n = d.Number
			}
		}
		return nil
	})
	return n, err
}

func (q *memQ) SeedCounter(_ context.Context, kind docnumber.Kind, value int64) error {
	return q.with("SeedCounter", func(st *memState) error {
		if value > st.counters[kind] {
			st.counters[kind] = value
		}
		return nil
	})
}

func (q *memQ) IncrementCounter(_ context.Context, kind docnumber.Kind) (int64, error) {
	var n int64
	err := q.with("IncrementCounter", func(st *memState) error {
		cur, ok := st.counters[kind]
		if !ok {
			return docnumber.ErrCounterMissing
		}
		n = cur + 1
		st.counters[kind] = n
		return nil
	})
	return n, err
}

func (q *memQ) GetDocument(_ context.Context, kind string, id int64) (store.Document, error) {
	var d store.Document
	err := q.with("GetDocument", func(st *memState) error {
		doc, ok := st.docs[id]
		if !ok || doc.Kind != kind {
			return pgx.ErrNoRows
		}
		d = doc
		return nil
	})
	return d, err
}

func (q *memQ) GetDocumentForUpdate(ctx context.Context, kind string, id int64) (store.Document, error) {
	return q.GetDocument(ctx, kind, id)
}

func (q *memQ) filtered(st *memState, arg store.ListDocumentsParams) []store.Document {
	var out []store.Document
	for _, d := range st.docs {
		if d.Kind != arg.Kind {
			continue
		}
		if arg.CustomerID != nil && d.CustomerID != *arg.CustomerID {
			continue
		}
		if arg.Paid != nil && d.Paid != *arg.Paid {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (q *memQ) ListDocuments(_ context.Context, arg store.ListDocumentsParams) ([]store.Document, error) {
	var out []store.Document
	err := q.with("ListDocuments", func(st *memState) error {
		all := q.filtered(st, arg)
		if arg.Offset >= len(all) {
			return nil
		}
		end := arg.Offset + arg.Limit
		if end > len(all) {
			end = len(all)
		}
		out = all[arg.Offset:end]
		return nil
	})
	return out, err
}

func (q *memQ) CountDocuments(_ context.Context, arg store.ListDocumentsParams) (int64, error) {
	var n int64
	err := q.with("CountDocuments", func(st *memState) error {
		n = int64(len(q.filtered(st, arg)))
		return nil
	})
	return n, err
}

func (q *memQ) CreateDocument(_ context.Context, arg store.CreateDocumentParams) (store.Document, error) {
	var d store.Document
	err := q.with("CreateDocument", func(st *memState) error {
		for _, existing := range st.docs {
			if existing.Kind == arg.Kind && existing.Number == arg.Number {
				return &pgconn.PgError{Code: store.CodeUniqueViolation}
			}
		}
		st.nextDoc++
		now := time.Now().UTC()
		d = store.Document{
			ID: st.nextDoc, Kind: arg.Kind, Number: arg.Number,
			CustomerID: arg.CustomerID, VehicleID: arg.VehicleID, JobTypeID: arg.JobTypeID,
			Description: arg.Description, DueDate: arg.DueDate,
			ServiceCharge: arg.ServiceCharge, Discount: arg.Discount, DiscountType: arg.DiscountType,
			VAT: arg.VAT, Amount: arg.Amount, Paid: arg.Paid,
			CreatedBy: arg.Actor, UpdatedBy: arg.Actor, CreatedAt: now, UpdatedAt: now,
		}
		st.docs[d.ID] = d
		return nil
	})
	return d, err
}

func (q *memQ) UpdateDocument(_ context.Context, arg store.UpdateDocumentParams) (store.Document, error) {
	var d store.Document
	err := q.with("UpdateDocument", func(st *memState) error {
		cur, ok := st.docs[arg.ID]
		if !ok || cur.Kind != arg.Kind {
			return pgx.ErrNoRows
		}
		cur.CustomerID, cur.VehicleID, cur.JobTypeID = arg.CustomerID, arg.VehicleID, arg.JobTypeID
		cur.Description, cur.DueDate = arg.Description, arg.DueDate
		cur.ServiceCharge, cur.Discount, cur.DiscountType, cur.VAT = arg.ServiceCharge, arg.Discount, arg.DiscountType, arg.VAT
		cur.Amount, cur.Paid, cur.UpdatedBy, cur.UpdatedAt = arg.Amount, arg.Paid, arg.Actor, time.Now().UTC()
		st.docs[cur.ID] = cur
		d = cur
		return nil
	})
	return d, err
}

func (q *memQ) DeleteDocument(_ context.Context, kind string, id int64) (int64, error) {
	var n int64
	err := q.with("DeleteDocument", func(st *memState) error {
		if d, ok := st.docs[id]; ok && d.Kind == kind {
			delete(st.docs, id)
			delete(st.lines, id)
			n = 1
		}
		return nil
	})
	return n, err
}

func (q *memQ) ListDocumentLines(_ context.Context, documentID int64) ([]store.DocumentLine, error) {
	var out []store.DocumentLine
	err := q.with("ListDocumentLines", func(st *memState) error {
		for _, l := range st.lines[documentID] {
			l.ProductName = st.materials[l.MaterialID].ProductName
			out = append(out, l)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
		return nil
	})
	return out, err
}

func (q *memQ) InsertDocumentLine(_ context.Context, arg store.InsertDocumentLineParams) error {
	return q.with("InsertDocumentLine", func(st *memState) error {
		if _, ok := st.materials[arg.MaterialID]; !ok {
			return &pgconn.PgError{Code: store.CodeForeignKeyViolation}
		}
		if st.lines[arg.DocumentID] == nil {
			st.lines[arg.DocumentID] = map[int64]store.DocumentLine{}
		}
		if _, dup := st.lines[arg.DocumentID][arg.MaterialID]; dup {
			return &pgconn.PgError{Code: store.CodeUniqueViolation}
		}
		st.nextLine++
		st.lines[arg.DocumentID][arg.MaterialID] = store.DocumentLine{
			ID: st.nextLine, DocumentID: arg.DocumentID, MaterialID: arg.MaterialID,
			Quantity: arg.Quantity, UnitPrice: arg.UnitPrice,
		}
		return nil
	})
}

func (q *memQ) UpdateDocumentLineQuantity(_ context.Context, documentID, materialID, quantity int64) error {
	return q.with("UpdateDocumentLineQuantity", func(st *memState) error {
		l, ok := st.lines[documentID][materialID]
		if !ok {
			return pgx.ErrNoRows
		}
		l.Quantity = quantity
		st.lines[documentID][materialID] = l
		return nil
	})
}

func (q *memQ) DeleteDocumentLine(_ context.Context, documentID, materialID int64) error {
	return q.with("DeleteDocumentLine", func(st *memState) error {
		delete(st.lines[documentID], materialID)
		return nil
	})
}

func (q *memQ) GetMaterialsByIDs(_ context.Context, ids []int64) ([]store.Material, error) {
	var out []store.Material
	err := q.with("GetMaterialsByIDs", func(st *memState) error {
		for _, id := range ids {
			if m, ok := st.materials[id]; ok {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (q *memQ) CustomerExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	err := q.with("CustomerExists", func(st *memState) error {
		ok = st.customers[id]
		return nil
	})
	return ok, err
}

func (q *memQ) VehicleOwner(_ context.Context, id int64) (int64, error) {
	var owner int64
	err := q.with("VehicleOwner", func(st *memState) error {
		o, ok := st.vehicles[id]
		if !ok {
			return pgx.ErrNoRows
		}
		owner = o
		return nil
	})
	return owner, err
}

func (q *memQ) JobTypeExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	err := q.with("JobTypeExists", func(st *memState) error {
		ok = st.jobTypes[id]
		return nil
	})
	return ok, err
}

func (q *memQ) InsertDomainEvent(_ context.Context, ev store.Event) error {
	return q.with("InsertDomainEvent", func(st *memState) error {
		st.events = append(st.events, ev)
		return nil
	})
}

// seed fills the reference data used across tests: customer 1 owns vehicle
// 10, customer 2 owns vehicle 20, job type 5 and three catalog materials.
func (db *memDB) seed() {
	st := db.st
	st.customers[1], st.customers[2] = true, true
	st.vehicles[10], st.vehicles[20] = 1, 2
	st.jobTypes[5] = true
	for _, m := range []store.Material{
		{ID: 1, ProductName: "Engine oil", ProductCost: decimal.NewFromInt(50)},
		{ID: 2, ProductName: "Oil filter", ProductCost: decimal.NewFromInt(30)},
		{ID: 3, ProductName: "Spark plug", ProductCost: decimal.RequireFromString("12.50")},
	} {
		st.materials[m.ID] = m
	}
}

func (db *memDB) setPrice(id int64, price string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m := db.st.materials[id]
	m.ProductCost = decimal.RequireFromString(price)
	db.st.materials[id] = m
}
