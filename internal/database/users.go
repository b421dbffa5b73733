package database

import (
	"context"
	"fmt"
	"strings"

	"tripdesk/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (name, surname, email, phone, fcm_token) VALUES (?, ?, ?, ?, ?)`,
		user.Name, user.Surname, user.Email, user.Phone, user.FCMToken)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = result.LastInsertId()
	return err
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx,
		`SELECT id, name, surname, email, phone, fcm_token FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Name, &user.Surname, &user.Email, &user.Phone, &user.FCMToken)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (db *DB) UpdateUserFCMToken(ctx context.Context, id int64, token string) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET fcm_token = ? WHERE id = ?`, token, id)
	return err
}

func (db *DB) CreateDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	result, err := db.ExecContext(ctx, `INSERT INTO discount_codes (code, active) VALUES (?, ?)`,
		strings.ToUpper(strings.TrimSpace(code.Code)), code.Active)
	if err != nil {
		return fmt.Errorf("failed to create discount code: %w", err)
	}
	code.ID, err = result.LastInsertId()
	return err
}

// GetActiveDiscountCode looks a code up case-insensitively.
func (db *DB) GetActiveDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := db.QueryRowContext(ctx,
		`SELECT id, code, active FROM discount_codes WHERE code = ? AND active = 1`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&dc.ID, &dc.Code, &dc.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &dc, nil
}

func (db *DB) GetDiscountUsage(ctx context.Context, paymentID string) (*models.DiscountUsage, error) {
	var du models.DiscountUsage
	err := db.QueryRowContext(ctx,
		`SELECT id, discount_code_id, user_id, payment_id, status, created_at
         FROM discount_usages WHERE payment_id = ? ORDER BY id LIMIT 1`, paymentID,
	).Scan(&du.ID, &du.DiscountCodeID, &du.UserID, &du.PaymentID, &du.Status, &du.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &du, nil
}
