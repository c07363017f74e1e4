package db

import (
	"context"
	"fmt"
)

// AccountRow is one serialized account keyed by its opaque account id.
type AccountRow struct {
	ID  string
	Doc []byte
}

// AlertRow is one serialized alert keyed by its alert id.
type AlertRow struct {
	ID  string
	Doc []byte
}

// SaveAccounts replaces the account snapshot atomically.
func (d *Database) SaveAccounts(ctx context.Context, rows []AccountRow) error {
	return d.replaceAll(ctx, "accounts", func(insert func(id string, doc []byte) error) error {
		for _, r := range rows {
			if err := insert(r.ID, r.Doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAccounts reads the full account snapshot, ordered by account id.
func (d *Database) LoadAccounts(ctx context.Context) ([]AccountRow, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT id, doc FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []AccountRow
	for rows.Next() {
		var r AccountRow
		if err := rows.Scan(&r.ID, &r.Doc); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAlerts replaces the alert snapshot atomically.
func (d *Database) SaveAlerts(ctx context.Context, rows []AlertRow) error {
	return d.replaceAll(ctx, "alerts", func(insert func(id string, doc []byte) error) error {
		for _, r := range rows {
			if err := insert(r.ID, r.Doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAlerts reads the full alert snapshot.
func (d *Database) LoadAlerts(ctx context.Context) ([]AlertRow, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT id, doc FROM alerts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRow
	for rows.Next() {
		var r AlertRow
		if err := rows.Scan(&r.ID, &r.Doc); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// replaceAll rewrites a snapshot table inside one transaction so a crashed
// snapshot never leaves a half-written store.
func (d *Database) replaceAll(ctx context.Context, table string, fill func(insert func(id string, doc []byte) error) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (id, doc) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	insert := func(id string, doc []byte) error {
		_, err := stmt.ExecContext(ctx, id, doc)
		return err
	}
	if err := fill(insert); err != nil {
		tx.Rollback()
		return fmt.Errorf("fill %s: %w", table, err)
	}

	return tx.Commit()
}
