// Copyright (c) https://github.com/maragudk/goqite
// https://github.com/maragudk/goqite/blob/6d1bf3c0bcab5a683e0bc7a82a4c76ceac1bbe3f/LICENSE
//
// This source code is licensed under the MIT license found in the LICENSE file
// in the root directory of this source tree, or at:
// https://opensource.org/licenses/MIT

package sql

import (
	"context"
	"database/sql"
	"fmt"
)

// InTx runs the given function in a transaction, rolling back on error
// and on panics.
func InTx(ctx context.Context, db *sql.DB, cb func(*sql.Tx) error) (err error) {
	tx, txErr := db.BeginTx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("cannot start tx: %w", txErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err := cb(tx); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit tx: %w", err)
	}

	return nil
}

// rollback a transaction, handling both the original error and any
// rollback error.
func rollback(tx *sql.Tx, originalErr error) error {
	if err := tx.Rollback(); err != nil {
		if originalErr == nil {
			return fmt.Errorf("cannot roll back tx: %w", err)
		}
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", err, originalErr)
	}
	return originalErr
}
