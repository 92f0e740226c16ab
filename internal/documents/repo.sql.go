package documents

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional document operations plus the ledger
// repository bound to the same transaction, so a status flip and its ledger
// effects are all-or-nothing.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	GetLineItems(ctx context.Context, documentID int64) ([]LineItem, error)
	SetStatus(ctx context.Context, id int64, status Status, postedAt *time.Time, expectedVersion int64) (Document, error)
	SetReservation(ctx context.Context, id int64, reserved bool, expectedVersion int64) (Document, error)
	Ledger() ledger.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

const documentColumns = `id, doc_type, status, warehouse_id, order_id, is_reserved, note, version, posted_at, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("documents repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// CreateDocument inserts a draft header with its line items.
func (r *Repository) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	var created Document
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		repo := &txRepository{tx: tx}
		var err error
		created, err = repo.insertDocument(ctx, doc)
		if err != nil {
			return err
		}
		for i := range doc.Items {
			item, err := repo.insertLineItem(ctx, created.ID, doc.Items[i])
			if err != nil {
				return err
			}
			created.Items = append(created.Items, item)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return created, nil
}

// GetDocument loads a document with its line items.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrDocumentNotFound
		}
		return Document{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, product_id, quantity, price FROM document_items WHERE document_id=$1 ORDER BY id`, id)
	if err != nil {
		return Document{}, err
	}
	defer rows.Close()
	doc.Items, err = collectLineItems(rows)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// StatusStats counts documents per status.
func (r *Repository) StatusStats(ctx context.Context) (StatusStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return StatusStats{}, err
	}
	defer rows.Close()
	var stats StatusStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return StatusStats{}, err
		}
		switch Status(status) {
		case StatusDraft:
			stats.Draft = count
		case StatusPosted:
			stats.Posted = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (r *txRepository) insertDocument(ctx context.Context, doc Document) (Document, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO documents (doc_type, status, warehouse_id, order_id, is_reserved, note, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,1,NOW(),NOW()) RETURNING `+documentColumns,
		string(doc.Type), string(StatusDraft), doc.WarehouseID, doc.OrderID, doc.IsReserved, doc.Note)
	return scanDocument(row)
}

func (r *txRepository) insertLineItem(ctx context.Context, documentID int64, item LineItem) (LineItem, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO document_items (document_id, product_id, quantity, price)
VALUES ($1,$2,$3,$4) RETURNING id`, documentID, item.ProductID, decimalToNumeric(item.Quantity), decimalToNumeric(item.Price)).Scan(&item.ID)
	if err != nil {
		return LineItem{}, err
	}
	item.DocumentID = documentID
	return item, nil
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrDocumentNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) GetLineItems(ctx context.Context, documentID int64) ([]LineItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, document_id, product_id, quantity, price FROM document_items WHERE document_id=$1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLineItems(rows)
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, postedAt *time.Time, expectedVersion int64) (Document, error) {
	row := r.tx.QueryRow(ctx, `UPDATE documents SET status=$2, posted_at=$3, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$4 RETURNING `+documentColumns,
		id, string(status), postedAt, expectedVersion)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrConcurrentModification
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) SetReservation(ctx context.Context, id int64, reserved bool, expectedVersion int64) (Document, error) {
	row := r.tx.QueryRow(ctx, `UPDATE documents SET is_reserved=$2, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$3 RETURNING `+documentColumns,
		id, reserved, expectedVersion)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrConcurrentModification
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var docType, status string
	if err := row.Scan(&doc.ID, &docType, &status, &doc.WarehouseID, &doc.OrderID, &doc.IsReserved,
		&doc.Note, &doc.Version, &doc.PostedAt, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Type = Type(docType)
	doc.Status = Status(status)
	return doc, nil
}

func collectLineItems(rows pgx.Rows) ([]LineItem, error) {
	var items []LineItem
	for rows.Next() {
		var item LineItem
		var qty, price pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.ProductID, &qty, &price); err != nil {
			return nil, err
		}
		item.Quantity = numericToDecimal(qty)
		item.Price = numericToDecimal(price)
		items = append(items, item)
	}
	return items, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
