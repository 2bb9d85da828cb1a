package ledger

import (
	"encoding/binary"

	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
)

// Memo program ids. The SPL variant is the common one; v1 still appears in
// old history.
var (
	memoProgramIDSPL    = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	memoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// Program is the closed enumeration of programs the classifier understands.
type Program string

const (
	ProgramSystem               Program = "system"
	ProgramToken                Program = "spl-token"
	ProgramAssociatedToken      Program = "spl-associated-token-account"
	ProgramStake                Program = "stake"
	ProgramMemo                 Program = "spl-memo"
	ProgramVote                 Program = "vote"
	ProgramBPFLoader            Program = "bpf-loader"
	ProgramBPFUpgradeableLoader Program = "bpf-upgradeable-loader"
	ProgramUnknown              Program = "unknown"
)

// InstructionKind is the closed enumeration of instruction shapes.
// KindOpaque marks a recognized program whose payload did not validate
// against any known schema; it is a value, never an error.
type InstructionKind string

const (
	KindOpaque             InstructionKind = "opaque"
	KindCreateAccount      InstructionKind = "createAccount"
	KindTransfer           InstructionKind = "transfer"
	KindTransferChecked    InstructionKind = "transferChecked"
	KindInitializeAccount  InstructionKind = "initializeAccount"
	KindCloseAccount       InstructionKind = "closeAccount"
	KindApprove            InstructionKind = "approve"
	KindApproveChecked     InstructionKind = "approveChecked"
	KindMintTo             InstructionKind = "mintTo"
	KindBurn               InstructionKind = "burn"
	KindAssociate          InstructionKind = "associate"
	KindDelegate           InstructionKind = "delegate"
	KindDeactivate         InstructionKind = "deactivate"
	KindWithdraw           InstructionKind = "withdraw"
	KindMemo               InstructionKind = "memo"
)

// System program instruction discriminators (u32 little-endian).
const (
	systemCreateAccount = uint32(0)
	systemTransfer      = uint32(2)
)

// Token program instruction discriminators (first data byte).
const (
	tokenInitializeAccount  = uint8(1)
	tokenTransfer           = uint8(3)
	tokenApprove            = uint8(4)
	tokenMintTo             = uint8(7)
	tokenBurn               = uint8(8)
	tokenCloseAccount       = uint8(9)
	tokenTransferChecked    = uint8(12)
	tokenApproveChecked     = uint8(13)
	tokenInitializeAccount2 = uint8(16)
	tokenInitializeAccount3 = uint8(18)
)

// Stake program instruction discriminators (u32 little-endian).
const (
	stakeDelegate   = uint32(2)
	stakeWithdraw   = uint32(4)
	stakeDeactivate = uint32(5)
)

// Descriptor is a classified instruction: which program, which instruction
// shape, and the decoded fields for the shapes that carry them.
type Descriptor struct {
	Program Program
	Kind    InstructionKind

	// Lamports is set for system transfers and createAccount.
	Lamports *uint64
	// TokenAmount is set for token transfer/approve/mint/burn shapes.
	TokenAmount *uint64
	// Decimals is set for the checked token shapes.
	Decimals *uint8
	// Memo is set for memo instructions.
	Memo string
}

// Classify decodes one raw instruction into a Descriptor. It never fails:
// unrecognized program ids yield ProgramUnknown and payloads that do not
// validate against their program's schemas yield KindOpaque.
func Classify(ix chain.Instruction) Descriptor {
	switch {
	case ix.ProgramID.Equals(solana.SystemProgramID):
		return classifySystem(ix.Data)
	case ix.ProgramID.Equals(solana.TokenProgramID):
		return classifyToken(ix.Data)
	case ix.ProgramID.Equals(solana.SPLAssociatedTokenAccountProgramID):
		return classifyAssociatedToken(ix.Data)
	case ix.ProgramID.Equals(solana.StakeProgramID):
		return classifyStake(ix.Data)
	case ix.ProgramID.Equals(memoProgramIDSPL), ix.ProgramID.Equals(memoProgramIDLegacy):
		return Descriptor{Program: ProgramMemo, Kind: KindMemo, Memo: string(ix.Data)}
	case ix.ProgramID.Equals(solana.VoteProgramID):
		return Descriptor{Program: ProgramVote, Kind: KindOpaque}
	case ix.ProgramID.Equals(solana.BPFLoaderProgramID):
		return Descriptor{Program: ProgramBPFLoader, Kind: KindOpaque}
	case ix.ProgramID.Equals(solana.BPFLoaderUpgradeableProgramID):
		return Descriptor{Program: ProgramBPFUpgradeableLoader, Kind: KindOpaque}
	default:
		return Descriptor{Program: ProgramUnknown, Kind: KindOpaque}
	}
}

func classifySystem(data []byte) Descriptor {
	d := Descriptor{Program: ProgramSystem, Kind: KindOpaque}
	if len(data) < 4 {
		return d
	}
	switch binary.LittleEndian.Uint32(data[0:4]) {
	case systemTransfer:
		// [0..4] discriminator, [4..12] lamports
		if len(data) != 12 {
			return d
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		return Descriptor{Program: ProgramSystem, Kind: KindTransfer, Lamports: &lamports}
	case systemCreateAccount:
		// [0..4] discriminator, [4..12] lamports, [12..20] space, [20..52] owner
		if len(data) != 52 {
			return d
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		return Descriptor{Program: ProgramSystem, Kind: KindCreateAccount, Lamports: &lamports}
	default:
		return d
	}
}

func classifyToken(data []byte) Descriptor {
	d := Descriptor{Program: ProgramToken, Kind: KindOpaque}
	if len(data) == 0 {
		return d
	}
	switch data[0] {
	case tokenTransfer, tokenApprove, tokenMintTo, tokenBurn:
		// [0] discriminator, [1..9] amount
		if len(data) != 9 {
			return d
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		kind := map[uint8]InstructionKind{
			tokenTransfer: KindTransfer,
			tokenApprove:  KindApprove,
			tokenMintTo:   KindMintTo,
			tokenBurn:     KindBurn,
		}[data[0]]
		return Descriptor{Program: ProgramToken, Kind: kind, TokenAmount: &amount}
	case tokenTransferChecked, tokenApproveChecked:
		// [0] discriminator, [1..9] amount, [9] decimals
		if len(data) != 10 {
			return d
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		decimals := data[9]
		kind := KindTransferChecked
		if data[0] == tokenApproveChecked {
			kind = KindApproveChecked
		}
		return Descriptor{Program: ProgramToken, Kind: kind, TokenAmount: &amount, Decimals: &decimals}
	case tokenInitializeAccount:
		if len(data) != 1 {
			return d
		}
		return Descriptor{Program: ProgramToken, Kind: KindInitializeAccount}
	case tokenInitializeAccount2, tokenInitializeAccount3:
		// [0] discriminator, [1..33] owner
		if len(data) != 33 {
			return d
		}
		return Descriptor{Program: ProgramToken, Kind: KindInitializeAccount}
	case tokenCloseAccount:
		if len(data) != 1 {
			return d
		}
		return Descriptor{Program: ProgramToken, Kind: KindCloseAccount}
	default:
		return d
	}
}

func classifyAssociatedToken(data []byte) Descriptor {
	// The create instruction historically has empty data; newer clients send
	// a one-byte discriminator (0 = Create, 1 = CreateIdempotent).
	if len(data) == 0 || (len(data) == 1 && data[0] <= 1) {
		return Descriptor{Program: ProgramAssociatedToken, Kind: KindAssociate}
	}
	return Descriptor{Program: ProgramAssociatedToken, Kind: KindOpaque}
}

func classifyStake(data []byte) Descriptor {
	d := Descriptor{Program: ProgramStake, Kind: KindOpaque}
	if len(data) < 4 {
		return d
	}
	switch binary.LittleEndian.Uint32(data[0:4]) {
	case stakeDelegate:
		if len(data) != 4 {
			return d
		}
		return Descriptor{Program: ProgramStake, Kind: KindDelegate}
	case stakeDeactivate:
		if len(data) != 4 {
			return d
		}
		return Descriptor{Program: ProgramStake, Kind: KindDeactivate}
	case stakeWithdraw:
		// [0..4] discriminator, [4..12] lamports
		if len(data) != 12 {
			return d
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		return Descriptor{Program: ProgramStake, Kind: KindWithdraw, Lamports: &lamports}
	default:
		return d
	}
}
