package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Account operations

// LinkAccount atomically links an OAK to a user. The existence check,
// user upsert and insert run in one transaction; the unique constraint on
// nk_id is the backstop if a concurrent link wins the insert race.
func (r *Repository) LinkAccount(ctx context.Context, discordID, nkID, displayName string) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &NKAccount{}
		err := tx.NewSelect().Model(existing).Where("nk_id = ?", nkID).Scan(ctx)
		if err == nil {
			if existing.DiscordID == discordID {
				return ErrAlreadyLinkedSelf
			}
			return ErrAlreadyLinkedOther
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing link: %w", err)
		}

		if err := upsertUser(ctx, tx, discordID); err != nil {
			return err
		}

		account := &NKAccount{
			DiscordID:   discordID,
			NKID:        nkID,
			DisplayName: displayName,
			LinkedAt:    time.Now(),
		}
		if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
		return nil
	})
	if err == nil || errors.Is(err, ErrAlreadyLinkedSelf) || errors.Is(err, ErrAlreadyLinkedOther) {
		return err
	}

	// The insert may have lost a race the existence check did not see.
	// Re-query ownership so the caller gets a precise answer.
	if owner, lookupErr := r.AccountOwner(ctx, nkID); lookupErr == nil {
		if owner == discordID {
			return ErrAlreadyLinkedSelf
		}
		return ErrAlreadyLinkedOther
	}
	return err
}

// ForceLink links an OAK to a user, stealing it from its current owner if
// necessary. Returns the previous owner's Discord ID, or "" if the OAK was
// unclaimed.
func (r *Repository) ForceLink(ctx context.Context, discordID, nkID, displayName string) (string, error) {
	var previousOwner string
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &NKAccount{}
		err := tx.NewSelect().Model(existing).Where("nk_id = ?", nkID).Scan(ctx)
		if err == nil {
			if existing.DiscordID == discordID {
				return ErrAlreadyLinkedSelf
			}
			previousOwner = existing.DiscordID
			if _, err := tx.NewDelete().Model((*NKAccount)(nil)).Where("nk_id = ?", nkID).Exec(ctx); err != nil {
				return fmt.Errorf("failed to remove previous link: %w", err)
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing link: %w", err)
		}

		if err := upsertUser(ctx, tx, discordID); err != nil {
			return err
		}

		account := &NKAccount{
			DiscordID:   discordID,
			NKID:        nkID,
			DisplayName: displayName,
			LinkedAt:    time.Now(),
		}
		if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previousOwner, nil
}

// UnlinkAccount removes a link owned by the given user
func (r *Repository) UnlinkAccount(ctx context.Context, discordID, nkID string) error {
	result, err := r.db.NewDelete().
		Model((*NKAccount)(nil)).
		Where("discord_id = ? AND nk_id = ?", discordID, nkID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotLinked
	}
	return nil
}

// AccountOwner returns the Discord ID that currently owns an OAK
func (r *Repository) AccountOwner(ctx context.Context, nkID string) (string, error) {
	account := &NKAccount{}
	err := r.db.NewSelect().Model(account).Column("discord_id").Where("nk_id = ?", nkID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotLinked
		}
		return "", err
	}
	return account.DiscordID, nil
}

// AccountsByUser returns all linked accounts for a Discord identity
func (r *Repository) AccountsByUser(ctx context.Context, discordID string) ([]NKAccount, error) {
	var accounts []NKAccount
	err := r.db.NewSelect().
		Model(&accounts).
		Where("discord_id = ?", discordID).
		Order("linked_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// AllAccounts returns every linked account
func (r *Repository) AllAccounts(ctx context.Context) ([]NKAccount, error) {
	var accounts []NKAccount
	if err := r.db.NewSelect().Model(&accounts).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UsersWithAccounts returns the Discord IDs of every identity that has at
// least one linked account.
func (r *Repository) UsersWithAccounts(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*NKAccount)(nil)).
		ColumnExpr("DISTINCT discord_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

func upsertUser(ctx context.Context, tx bun.Tx, discordID string) error {
	user := &User{DiscordID: discordID, CreatedAt: time.Now()}
	_, err := tx.NewInsert().
		Model(user).
		On("CONFLICT (discord_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
