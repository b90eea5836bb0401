package store

import (
	"context"
)

// GrantAdmin promotes the user with the given email. ErrNotFound when
// no such user exists.
func (s *Store) GrantAdmin(ctx context.Context, email string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET is_admin = true WHERE email = $1`, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllUsersVerified flips email_verified for every user. Returns
// the number of rows changed.
func (s *Store) MarkAllUsersVerified(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET email_verified = true WHERE NOT email_verified`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TruncateAll wipes every table. Admin tooling for test and staging
// environments only.
func (s *Store) TruncateAll(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		TRUNCATE agent_knowledge_bases, agents, document_chunks, documents,
		         scrape_jobs, knowledge_bases, users`)
	return err
}
