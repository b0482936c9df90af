package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kumoarr/kumoarr/internal/quality"
)

// SaveQualityProfile inserts or updates a profile and its allowed-quality
// set in one transaction. A new profile gets its ID filled in.
func (s *Store) SaveQualityProfile(ctx context.Context, p *quality.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save quality profile: %w", err)
	}
	defer tx.Rollback()

	if err := writeProfile(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// SyncQualityProfiles rebuilds the whole profile set in one transaction:
// every profile in the slice is inserted or updated with its allowed set
// replaced, and profiles absent from the slice are removed. New profiles get
// their IDs filled in.
func (s *Store) SyncQualityProfiles(ctx context.Context, profiles []*quality.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync quality profiles: %w", err)
	}
	defer tx.Rollback()

	for _, p := range profiles {
		if err := writeProfile(ctx, tx, p); err != nil {
			return err
		}
	}

	if len(profiles) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quality_profiles`); err != nil {
			return fmt.Errorf("prune quality profiles: %w", err)
		}
		return tx.Commit()
	}
	keep := make([]int64, 0, len(profiles))
	for _, p := range profiles {
		keep = append(keep, p.ID)
	}
	query, args := inClause(`DELETE FROM quality_profiles WHERE id NOT IN `, keep)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune quality profiles: %w", err)
	}
	return tx.Commit()
}

// writeProfile upserts one profile row and rebuilds its allowed-quality set
// inside the caller's transaction.
func writeProfile(ctx context.Context, tx *sql.Tx, p *quality.Profile) error {
	if p.ID == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO quality_profiles (name, cutoff_quality_id, upgrade_allowed,
				seadex_preferred, min_size, max_size)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.Name, p.CutoffID, p.UpgradeAllowed, p.SeadexPreferred, p.MinSize, p.MaxSize)
		if err != nil {
			return fmt.Errorf("insert quality profile: %w", err)
		}
		p.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE quality_profiles
			SET name = ?, cutoff_quality_id = ?, upgrade_allowed = ?,
				seadex_preferred = ?, min_size = ?, max_size = ?
			WHERE id = ?`,
			p.Name, p.CutoffID, p.UpgradeAllowed, p.SeadexPreferred,
			p.MinSize, p.MaxSize, p.ID)
		if err != nil {
			return fmt.Errorf("update quality profile %d: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM quality_profile_items WHERE profile_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clear profile items %d: %w", p.ID, err)
		}
	}

	for qid, ok := range p.AllowedIDs {
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quality_profile_items (profile_id, quality_id) VALUES (?, ?)`,
			p.ID, qid); err != nil {
			return fmt.Errorf("insert profile item %d/%d: %w", p.ID, qid, err)
		}
	}
	return nil
}

// GetQualityProfile returns a profile with its allowed-quality set, or
// ErrNotFound.
func (s *Store) GetQualityProfile(ctx context.Context, id int64) (*quality.Profile, error) {
	var p quality.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cutoff_quality_id, upgrade_allowed, seadex_preferred, min_size, max_size
		FROM quality_profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CutoffID, &p.UpgradeAllowed, &p.SeadexPreferred, &p.MinSize, &p.MaxSize)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quality profile %d: %w", id, err)
	}

	p.AllowedIDs = make(map[int]bool)
	rows, err := s.db.QueryContext(ctx,
		`SELECT quality_id FROM quality_profile_items WHERE profile_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get profile items %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var qid int
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		p.AllowedIDs[qid] = true
	}
	return &p, rows.Err()
}

// ListQualityProfiles returns all profiles with their allowed sets.
func (s *Store) ListQualityProfiles(ctx context.Context) ([]*quality.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cutoff_quality_id, upgrade_allowed, seadex_preferred, min_size, max_size
		FROM quality_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quality profiles: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*quality.Profile)
	var out []*quality.Profile
	for rows.Next() {
		var p quality.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.CutoffID, &p.UpgradeAllowed,
			&p.SeadexPreferred, &p.MinSize, &p.MaxSize); err != nil {
			return nil, err
		}
		p.AllowedIDs = make(map[int]bool)
		byID[p.ID] = &p
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, quality_id FROM quality_profile_items`)
	if err != nil {
		return nil, fmt.Errorf("list profile items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var pid int64
		var qid int
		if err := itemRows.Scan(&pid, &qid); err != nil {
			return nil, err
		}
		if p, ok := byID[pid]; ok {
			p.AllowedIDs[qid] = true
		}
	}
	return out, itemRows.Err()
}

// DeleteQualityProfile removes a profile; its items cascade.
func (s *Store) DeleteQualityProfile(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quality_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quality profile %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveReleaseRule inserts a rule and returns its ID.
func (s *Store) SaveReleaseRule(ctx context.Context, r *quality.Rule) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO release_profile_rules (profile_id, term, score, rule_type)
		VALUES (?, ?, ?, ?)`,
		r.ProfileID, r.Term, r.Score, string(r.Type))
	if err != nil {
		return 0, fmt.Errorf("save release rule: %w", err)
	}
	return res.LastInsertId()
}

// GetReleaseRules returns every rule attached to the given release profiles.
func (s *Store) GetReleaseRules(ctx context.Context, profileIDs []int64) ([]quality.Rule, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}
	query, args := inClause(
		`SELECT profile_id, term, score, rule_type FROM release_profile_rules WHERE profile_id IN `,
		profileIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get release rules: %w", err)
	}
	defer rows.Close()

	var out []quality.Rule
	for rows.Next() {
		var r quality.Rule
		var ruleType string
		if err := rows.Scan(&r.ProfileID, &r.Term, &r.Score, &ruleType); err != nil {
			return nil, err
		}
		r.Type = quality.RuleType(ruleType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReleaseRule removes one rule by its row ID.
func (s *Store) DeleteReleaseRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM release_profile_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete release rule %d: %w", id, err)
	}
	return nil
}
