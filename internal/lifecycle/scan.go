package lifecycle

import (
	"context"
	"time"

	"eduplatform/internal/types"
)

// classifiedAccount is one account after resolution and classification.
type classifiedAccount struct {
	Account      types.Account
	LastActivity time.Time
	Classification
}

// participatingRoles lists the roles the engine fetches.
func (e *Engine) participatingRoles() []types.Role {
	roles := []types.Role{types.RoleStudent}
	if e.features.IncludeContentOwners {
		roles = append(roles, types.RoleProfessor)
	}
	return roles
}

// scan is the classification pass shared by Run, Preview and SendWarnings.
// visit is called once per classified account, in store order. Accounts
// whose activity cannot be resolved are logged and skipped.
//
// It returns the number of classified accounts. The error is either the
// store failure that prevented listing accounts or ctx.Err().
func (e *Engine) scan(ctx context.Context, th Thresholds, now time.Time, visit func(classifiedAccount)) (int, error) {
	accounts, err := e.accounts.FindAccountsByRoles(ctx, e.participatingRoles())
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list accounts for inactivity scan", err)
	}

	checked := 0
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return checked, err
		}

		last, err := e.lastActivity(ctx, acct, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to resolve account activity, skipping",
				"account_id", acct.ID,
				"role", string(acct.Role),
				"error", err,
			)
			continue
		}

		visit(classifiedAccount{
			Account:        acct,
			LastActivity:   last,
			Classification: Classify(acct, last, now, th),
		})
		checked++
	}

	return checked, nil
}

// lastActivity resolves activity only when the classifier can use it.
// Opted-out, inert and already-scheduled accounts are decided by their
// stored fields alone, so they skip the signal queries.
func (e *Engine) lastActivity(ctx context.Context, acct types.Account, now time.Time) (time.Time, error) {
	if acct.EmailOptOut || !acct.Role.ParticipatesInLifecycle() || acct.ScheduledDeletionAt != nil {
		return acct.CreatedAt.UTC(), nil
	}
	return e.resolver.ResolveAt(ctx, acct.ID, acct.Role, acct.CreatedAt, now)
}
