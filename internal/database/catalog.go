package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tripdesk/internal/models"
	"tripdesk/internal/pricing"

	"github.com/shopspring/decimal"
)

// EnsureCurrency returns the id of an ISO currency code, creating the row on first use.
func (db *DB) EnsureCurrency(ctx context.Context, code string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := db.ExecContext(ctx, `INSERT INTO currencies (code) VALUES (?) ON CONFLICT(code) DO NOTHING`, code); err != nil {
		return 0, fmt.Errorf("failed to upsert currency: %w", err)
	}
	var id int64
	if err := db.QueryRowContext(ctx, `SELECT id FROM currencies WHERE code = ?`, code).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get currency: %w", err)
	}
	return id, nil
}

func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	now := time.Now()
	result, err := db.ExecContext(ctx, `INSERT INTO products (
				kind, name, location, owner_id, status, admin_approval,
				average_rating, comment_count, highlight, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Kind), p.Name, p.Location, p.OwnerID, p.Status, p.AdminApproval,
		p.AverageRating, p.CommentCount, p.Highlight, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}

const productColumns = `id, kind, name, location, owner_id, status, admin_approval,
        average_rating, comment_count, highlight, created_at, deleted_at`

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p       models.Product
		kind    string
		deleted sql.NullTime
	)
	err := row.Scan(&p.ID, &kind, &p.Name, &p.Location, &p.OwnerID, &p.Status, &p.AdminApproval,
		&p.AverageRating, &p.CommentCount, &p.Highlight, &p.CreatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	p.Kind = models.ProductKind(kind)
	p.DeletedAt = timePtr(deleted)
	return &p, nil
}

func (db *DB) GetProduct(ctx context.Context, kind models.ProductKind, id int64) (*models.Product, error) {
	row := db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ? AND kind = ?`, id, string(kind))
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListVisibleProducts returns approved, active, non-deleted products of a kind.
// highlightedOnly narrows the list to dashboard products.
func (db *DB) ListVisibleProducts(ctx context.Context, kind models.ProductKind, highlightedOnly bool) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
              WHERE kind = ? AND status = 1 AND admin_approval = 1 AND deleted_at IS NULL`
	if highlightedOnly {
		query += ` AND highlight = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (db *DB) CreatePackage(ctx context.Context, pkg *models.Package) error {
	result, err := db.ExecContext(ctx, `INSERT INTO packages (product_id, name, constant_price) VALUES (?, ?, ?)`,
		pkg.ProductID, pkg.Name, pkg.ConstantPrice)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	pkg.ID = id
	return nil
}

func (db *DB) GetPackage(ctx context.Context, id int64) (*models.Package, error) {
	var pkg models.Package
	err := db.QueryRowContext(ctx,
		`SELECT id, product_id, name, constant_price FROM packages WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&pkg.ID, &pkg.ProductID, &pkg.Name, &pkg.ConstantPrice)
	if err != nil {
		return nil, notFound(err)
	}
	return &pkg, nil
}

func (db *DB) ListPackages(ctx context.Context, productID int64) ([]models.Package, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, product_id, name, constant_price FROM packages
         WHERE product_id = ? AND deleted_at IS NULL ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var packages []models.Package
	for rows.Next() {
		var pkg models.Package
		if err := rows.Scan(&pkg.ID, &pkg.ProductID, &pkg.Name, &pkg.ConstantPrice); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// CreatePrice stores a price row. Dated rows whose validity overlaps another
// dated row of the same package are rejected, as is a second row on a
// constant-price package.
func (db *DB) CreatePrice(ctx context.Context, price *models.Price) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var constant bool
	err = tx.QueryRowContext(ctx, `SELECT constant_price FROM packages WHERE id = ? AND deleted_at IS NULL`, price.PackageID).Scan(&constant)
	if err != nil {
		return fmt.Errorf("failed to load package %d: %w", price.PackageID, notFound(err))
	}

	existing, err := queryPrices(ctx, tx, `p.package_id = ?`, price.PackageID)
	if err != nil {
		return err
	}
	if constant && len(existing) > 0 {
		return ErrConstantPriceExists
	}
	if !constant {
		for _, other := range existing {
			if pricing.Overlaps(*price, other) {
				return fmt.Errorf("%w: conflicts with price %d", ErrOverlappingPrice, other.ID)
			}
		}
	}

	code := strings.ToUpper(strings.TrimSpace(price.CurrencyCode))
	if _, err := tx.ExecContext(ctx, `INSERT INTO currencies (code) VALUES (?) ON CONFLICT(code) DO NOTHING`, code); err != nil {
		return fmt.Errorf("failed to upsert currency: %w", err)
	}
	var currencyID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM currencies WHERE code = ?`, code).Scan(&currencyID); err != nil {
		return fmt.Errorf("failed to get currency: %w", err)
	}

	result, err := tx.ExecContext(ctx, `INSERT INTO package_prices (
				package_id, main_price, child_price, baby_price, single_price, currency_id,
				discount, start_date, end_date, total_tax_amount
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		price.PackageID, price.MainPrice, price.ChildPrice, price.BabyPrice, price.SinglePrice, currencyID,
		price.Discount, dateArg(price.StartDate), dateArg(price.EndDate), price.TotalTaxAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert price: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price: %w", err)
	}
	price.ID = id
	price.CurrencyID = currencyID
	price.CurrencyCode = code
	return nil
}

// DeletePrice soft-deletes a price row.
func (db *DB) DeletePrice(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE package_prices SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete price: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProductPrices returns every live price row of a product's packages in id order.
func (db *DB) ListProductPrices(ctx context.Context, productID int64) ([]models.Price, error) {
	return queryPrices(ctx, db, `p.package_id IN (SELECT id FROM packages WHERE product_id = ? AND deleted_at IS NULL)`, productID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPrices(ctx context.Context, q querier, where string, args ...any) ([]models.Price, error) {
	rows, err := q.QueryContext(ctx, `SELECT p.id, p.package_id, p.main_price, p.child_price, p.baby_price, p.single_price,
               p.currency_id, c.code, p.discount, p.start_date, p.end_date, p.total_tax_amount
        FROM package_prices p JOIN currencies c ON c.id = p.currency_id
        WHERE p.deleted_at IS NULL AND `+where+` ORDER BY p.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var prices []models.Price
	for rows.Next() {
		var (
			p          models.Price
			start, end sql.NullString
		)
		err := rows.Scan(&p.ID, &p.PackageID, &p.MainPrice, &p.ChildPrice, &p.BabyPrice, &p.SinglePrice,
			&p.CurrencyID, &p.CurrencyCode, &p.Discount, &start, &end, &p.TotalTaxAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if p.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("price %d start_date: %w", p.ID, err)
		}
		if p.EndDate, err = parseDate(end); err != nil {
			return nil, fmt.Errorf("price %d end_date: %w", p.ID, err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (db *DB) AddProductImage(ctx context.Context, img *models.ProductImage) error {
	result, err := db.ExecContext(ctx, `INSERT INTO product_images (product_id, url) VALUES (?, ?)`, img.ProductID, img.URL)
	if err != nil {
		return fmt.Errorf("failed to add product image: %w", err)
	}
	img.ID, err = result.LastInsertId()
	return err
}

func (db *DB) ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, product_id, url FROM product_images WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}
	defer rows.Close()

	var images []models.ProductImage
	for rows.Next() {
		var img models.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL); err != nil {
			return nil, fmt.Errorf("failed to scan product image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (db *DB) CreateCommission(ctx context.Context, c *models.Commission) error {
	result, err := db.ExecContext(ctx, `INSERT INTO commissions (
				sales_partner_id, service_type, service_id, commission_type, commission_value, commission_currency
			) VALUES (?, ?, ?, ?, ?, ?)`,
		c.SalesPartnerID, c.ServiceType, c.ServiceID, string(c.Type), c.Value, c.Currency)
	if err != nil {
		return fmt.Errorf("failed to create commission: %w", err)
	}
	c.ID, err = result.LastInsertId()
	return err
}

// FindCommissions returns the partner's service-specific and generic rows for a service type.
// Either may be nil.
func (db *DB) FindCommissions(
	ctx context.Context,
	salesPartnerID int64,
	serviceType string,
	serviceID int64,
) (exact, generic *models.Commission, err error) {
	const query = `SELECT id, sales_partner_id, service_type, service_id, commission_type, commission_value, commission_currency
        FROM commissions WHERE sales_partner_id = ? AND service_type = ? AND %s ORDER BY id LIMIT 1`

	exact, err = db.scanCommission(ctx, fmt.Sprintf(query, "service_id = ?"), salesPartnerID, serviceType, serviceID)
	if err != nil {
		return nil, nil, err
	}
	generic, err = db.scanCommission(ctx, fmt.Sprintf(query, "service_id IS NULL"), salesPartnerID, serviceType)
	if err != nil {
		return nil, nil, err
	}
	return exact, generic, nil
}

func (db *DB) scanCommission(ctx context.Context, query string, args ...any) (*models.Commission, error) {
	var (
		c         models.Commission
		serviceID sql.NullInt64
		kind      string
		value     decimal.Decimal
	)
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.SalesPartnerID, &c.ServiceType, &serviceID, &kind, &value, &c.Currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	c.ServiceID = int64Ptr(serviceID)
	c.Type = models.CommissionType(kind)
	c.Value = value
	return &c, nil
}
