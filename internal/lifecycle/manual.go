package lifecycle

import "context"

// ManualWarnResult is the outcome of SendWarnings.
type ManualWarnResult struct {
	Sent int `json:"sent"`
}

// ManualDeleteResult is the outcome of DeleteAccounts.
type ManualDeleteResult struct {
	Deleted int `json:"deleted"`
}

// SendWarnings warns the requested accounts that are currently in their warn
// window. The window is recomputed from the store on every call; ids outside
// it are ignored, never force-warned. The warning cap does not apply.
func (e *Engine) SendWarnings(ctx context.Context, accountIDs []string, params PreviewParams) (ManualWarnResult, error) {
	requested := uniqueIDs(accountIDs)
	if len(requested) == 0 {
		return ManualWarnResult{}, nil
	}

	th := params.thresholds()
	now := e.referenceTime(params.Now)

	var result ManualWarnResult
	_, err := e.scan(ctx, th, now, func(c classifiedAccount) {
		if c.Bucket != BucketWarnWindow {
			return
		}
		if _, ok := requested[c.Account.ID]; !ok {
			return
		}
		delete(requested, c.Account.ID)
		if e.warn(ctx, c, now) {
			result.Sent++
		}
	})
	if err != nil {
		return result, err
	}

	if len(requested) > 0 {
		e.logger.DebugContext(ctx, "manual warning ignored accounts outside the warn window",
			"ignored", len(requested),
		)
	}
	e.logger.InfoContext(ctx, "manual inactivity warnings processed",
		"requested", len(accountIDs),
		"sent", result.Sent,
	)
	return result, nil
}

// DeleteAccounts deletes every listed account without consulting the
// classifier. Authorization happens in the admin layer in front of it.
// Unknown ids and per-id failures only reduce the count.
func (e *Engine) DeleteAccounts(ctx context.Context, accountIDs []string) (ManualDeleteResult, error) {
	var result ManualDeleteResult
	for id := range uniqueIDs(accountIDs) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.delete(ctx, id) {
			result.Deleted++
		}
	}

	e.logger.InfoContext(ctx, "manual account deletion processed",
		"requested", len(accountIDs),
		"deleted", result.Deleted,
	)
	return result, nil
}

// uniqueIDs drops empty and duplicate ids.
func uniqueIDs(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
