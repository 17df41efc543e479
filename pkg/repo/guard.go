package repo

import "fmt"

// OpKind names a repository-mutating operation.
type OpKind int

const (
	OpConfig OpKind = iota + 1
	OpEdit
	OpClean
	OpAdd
	OpReset
	OpCommit
	OpBranch
	OpCheckout
	OpTag
	OpMerge
	OpMergeAbort
	OpRebase
	OpRebaseContinue
	OpRebaseSkip
	OpRebaseAbort
	OpGC
	OpRebuildGraph
)

type opInfo struct {
	name string
	// duringConflict allows the operation while unresolved conflicts are
	// recorded.
	duringConflict bool
}

var opTable = map[OpKind]opInfo{
	OpConfig:         {"config", true},
	OpEdit:           {"edit", true},
	OpClean:          {"clean", true},
	OpAdd:            {"add", true},
	OpReset:          {"reset", true},
	OpCommit:         {"commit", false},
	OpBranch:         {"branch", false},
	OpCheckout:       {"checkout", false},
	OpTag:            {"tag", true},
	OpMerge:          {"merge", false},
	OpMergeAbort:     {"merge abort", true},
	OpRebase:         {"rebase", false},
	OpRebaseContinue: {"rebase continue", true},
	OpRebaseSkip:     {"rebase skip", true},
	OpRebaseAbort:    {"rebase abort", true},
	OpGC:             {"gc", true},
	OpRebuildGraph:   {"rebuild graph", true},
}

func (k OpKind) String() string {
	if info, ok := opTable[k]; ok {
		return info.name
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// CanRunDuringConflict reports whether op may run while conflicts are
// unresolved.
func (k OpKind) CanRunDuringConflict() bool {
	return opTable[k].duringConflict
}

// guard is called on entry to every mutating operation.
func (r *Repo) guard(op OpKind) error {
	if op.CanRunDuringConflict() {
		return nil
	}
	has, err := r.HasConflicts()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if has {
		return fmt.Errorf("%s: %w", op, ErrUnresolvedConflicts)
	}
	return nil
}
