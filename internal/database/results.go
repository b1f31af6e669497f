// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/typemasterhq/typemaster/internal/models"
)

// SaveRaceResult persists the final per-player outcomes of a finished race.
// Guests are stored with a null account reference.
func SaveRaceResult(ctx context.Context, res models.RaceResult) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO race_results (race_id, account_id, username, wpm, accuracy, rank, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (race_id, username, rank) DO NOTHING
		`
		for _, r := range res.Rankings {
			var accountID interface{}
			if r.AccountID != "" {
				accountID = r.AccountID
			}
			if _, e := tx.Exec(ctx, q, res.RaceID, accountID, r.Username, r.WPM, r.Accuracy, r.Rank, res.FinishedAt); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert race results: %w", err)
	}
	return nil
}

// SaveTypingResult persists a solo-mode typing test result.
func SaveTypingResult(ctx context.Context, res models.TypingResult) error {
	var accountID interface{}
	if res.AccountID != "" {
		accountID = res.AccountID
	}
	q := `
		INSERT INTO typing_results (account_id, session_id, is_guest, wpm, accuracy, word_count, source, test_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := DB.Exec(ctx, q, accountID, res.SessionID, res.IsGuest, res.WPM, res.Accuracy, res.WordCount, res.Source, res.TestDate); err != nil {
		return fmt.Errorf("insert typing result: %w", err)
	}
	return nil
}
