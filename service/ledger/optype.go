package ledger

// nonMemo strips memo instructions before shape matching; a memo riding along
// with a transfer must not change how the transfer is categorized.
func nonMemo(descs []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Program == ProgramMemo {
			continue
		}
		out = append(out, d)
	}
	return out
}

// kindFromDelta falls back to the sign of the account's balance movement.
func kindFromDelta(delta int64) OperationKind {
	switch {
	case delta > 0:
		return OperationIn
	case delta < 0:
		return OperationOut
	default:
		return OperationNone
	}
}

// ResolveMainKind categorizes a transaction from the wallet account's point
// of view. Shape matching applies only when, after dropping memos, the
// transaction carries exactly one instruction; anything more composite falls
// back to FEES (fee payer whose whole movement is the fee) or to the sign of
// the balance delta.
func ResolveMainKind(descs []Descriptor, isFeePayer bool, fee uint64, delta int64) OperationKind {
	ix := nonMemo(descs)
	if len(ix) == 1 {
		switch {
		case ix[0].Program == ProgramAssociatedToken && ix[0].Kind == KindAssociate:
			return OperationOptIn
		case ix[0].Program == ProgramToken && ix[0].Kind == KindCloseAccount:
			return OperationOptOut
		case ix[0].Program == ProgramStake && ix[0].Kind == KindDelegate:
			return OperationDelegate
		case ix[0].Program == ProgramStake && ix[0].Kind == KindDeactivate:
			return OperationUndelegate
		}
	}
	if isFeePayer && delta <= 0 && uint64(-delta) == fee {
		return OperationFees
	}
	return kindFromDelta(delta)
}

// ResolveTokenKind categorizes a transaction from a token sub-account's point
// of view. Only the associate shape is special-cased: closing is observed on
// the main account, not the sub-account, and stake shapes never apply here.
func ResolveTokenKind(descs []Descriptor, delta int64) OperationKind {
	ix := nonMemo(descs)
	if len(ix) == 1 && ix[0].Program == ProgramAssociatedToken && ix[0].Kind == KindAssociate {
		return OperationOptIn
	}
	return kindFromDelta(delta)
}

// ExtractMemo returns the first memo instruction's text, if any.
func ExtractMemo(descs []Descriptor) *string {
	for _, d := range descs {
		if d.Program == ProgramMemo && d.Memo != "" {
			memo := d.Memo
			return &memo
		}
	}
	return nil
}
