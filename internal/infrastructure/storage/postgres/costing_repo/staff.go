package costing_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"jobcost/internal/core/id"
	"jobcost/internal/domain/costing"
	"jobcost/internal/infrastructure/storage/postgres"
)

// StaffDirectory implements costing.StaffDirectory on the staff table.
type StaffDirectory struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ costing.StaffDirectory = (*StaffDirectory)(nil)

// NewStaffDirectory creates a staff directory.
func NewStaffDirectory(txm *postgres.TxManager) *StaffDirectory {
	return &StaffDirectory{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// StaffExists reports whether an active staff member has the given id.
func (d *StaffDirectory) StaffExists(ctx context.Context, staffID id.ID) (bool, error) {
	sql, args, err := d.builder.Select("1").Prefix("SELECT EXISTS (").
		From("staff").
		Where(squirrel.Eq{"id": staffID, "is_active": true}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	var exists bool
	if err := d.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check staff: %w", err)
	}
	return exists, nil
}

// AddStaff registers a staff member. An existing id is reactivated.
func (d *StaffDirectory) AddStaff(ctx context.Context, staffID id.ID, name string) error {
	sql, args, err := d.builder.Insert("staff").
		Columns("id", "name").
		Values(staffID, name).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = TRUE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := d.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}
