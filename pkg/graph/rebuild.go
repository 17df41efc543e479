package graph

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/object"
)

// Rebuild clears db and re-records every commit reachable from tips,
// reading commits from store one generation frontier at a time. It returns
// the number of commits recorded.
func Rebuild(ctx context.Context, store object.Store, db Database, tips []object.ObjectID) (int, error) {
	if err := db.Truncate(); err != nil {
		return 0, err
	}
	return Index(ctx, store, db, tips)
}

// Index records every commit reachable from tips that db does not know yet.
// Walking stops at commits already present.
func Index(ctx context.Context, store object.Store, db Database, tips []object.ObjectID) (int, error) {
	seen := make(map[object.ObjectID]struct{})
	var frontier []object.ObjectID
	for _, t := range tips {
		if t.IsNull() {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		frontier = append(frontier, t)
	}

	count := 0
	for len(frontier) > 0 {
		var pending []object.ObjectID
		for _, id := range frontier {
			ok, err := db.Exists(id)
			if err != nil {
				return count, err
			}
			if !ok {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}

		objs, missing, err := object.CollectAll(ctx, store, pending)
		if err != nil {
			return count, fmt.Errorf("graph: index: %w", err)
		}
		if len(missing) > 0 {
			return count, fmt.Errorf("graph: index: commit %s: %w", missing[0].Short(), object.ErrNotFound)
		}

		var next []object.ObjectID
		for _, id := range pending {
			c, ok := objs[id].(object.RevCommit)
			if !ok {
				return count, fmt.Errorf("graph: index: %s is a %s, not a commit: %w", id.Short(), objs[id].Type(), object.ErrInvalid)
			}
			inserted, err := db.Put(id, c.Parents())
			if err != nil {
				return count, err
			}
			if inserted {
				count++
			}
			for _, p := range c.Parents() {
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				next = append(next, p)
			}
		}
		frontier = next
	}
	return count, nil
}
