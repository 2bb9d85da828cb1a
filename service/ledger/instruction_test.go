package ledger

import (
	"encoding/binary"
	"testing"

	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func ix(program solana.PublicKey, data []byte) chain.Instruction {
	return chain.Instruction{ProgramID: program, Data: data}
}

func TestClassifySystem(t *testing.T) {
	t.Run("transfer", func(t *testing.T) {
		data := append(u32le(2), u64le(1_000_000)...)
		d := Classify(ix(solana.SystemProgramID, data))
		assert.Equal(t, ProgramSystem, d.Program)
		assert.Equal(t, KindTransfer, d.Kind)
		require.NotNil(t, d.Lamports)
		assert.Equal(t, uint64(1_000_000), *d.Lamports)
	})

	t.Run("create account", func(t *testing.T) {
		data := append(u32le(0), u64le(2_039_280)...)
		data = append(data, u64le(165)...)         // space
		data = append(data, make([]byte, 32)...)   // owner
		require.Len(t, data, 52)
		d := Classify(ix(solana.SystemProgramID, data))
		assert.Equal(t, KindCreateAccount, d.Kind)
		require.NotNil(t, d.Lamports)
		assert.Equal(t, uint64(2_039_280), *d.Lamports)
	})

	t.Run("transfer with truncated payload is opaque", func(t *testing.T) {
		data := append(u32le(2), u64le(1)...)
		d := Classify(ix(solana.SystemProgramID, data[:10]))
		assert.Equal(t, ProgramSystem, d.Program)
		assert.Equal(t, KindOpaque, d.Kind)
		assert.Nil(t, d.Lamports)
	})

	t.Run("unknown discriminator is opaque", func(t *testing.T) {
		d := Classify(ix(solana.SystemProgramID, u32le(99)))
		assert.Equal(t, KindOpaque, d.Kind)
	})

	t.Run("short data is opaque", func(t *testing.T) {
		d := Classify(ix(solana.SystemProgramID, []byte{2}))
		assert.Equal(t, KindOpaque, d.Kind)
	})
}

func TestClassifyToken(t *testing.T) {
	amountShapes := []struct {
		disc uint8
		kind InstructionKind
	}{
		{3, KindTransfer},
		{4, KindApprove},
		{7, KindMintTo},
		{8, KindBurn},
	}
	for _, tc := range amountShapes {
		t.Run(string(tc.kind), func(t *testing.T) {
			data := append([]byte{tc.disc}, u64le(42_000)...)
			d := Classify(ix(solana.TokenProgramID, data))
			assert.Equal(t, ProgramToken, d.Program)
			assert.Equal(t, tc.kind, d.Kind)
			require.NotNil(t, d.TokenAmount)
			assert.Equal(t, uint64(42_000), *d.TokenAmount)
			assert.Nil(t, d.Decimals)
		})
	}

	t.Run("transfer checked", func(t *testing.T) {
		data := append([]byte{12}, u64le(500)...)
		data = append(data, 6)
		d := Classify(ix(solana.TokenProgramID, data))
		assert.Equal(t, KindTransferChecked, d.Kind)
		require.NotNil(t, d.TokenAmount)
		assert.Equal(t, uint64(500), *d.TokenAmount)
		require.NotNil(t, d.Decimals)
		assert.Equal(t, uint8(6), *d.Decimals)
	})

	t.Run("approve checked", func(t *testing.T) {
		data := append([]byte{13}, u64le(7)...)
		data = append(data, 9)
		d := Classify(ix(solana.TokenProgramID, data))
		assert.Equal(t, KindApproveChecked, d.Kind)
	})

	t.Run("initialize account variants", func(t *testing.T) {
		d := Classify(ix(solana.TokenProgramID, []byte{1}))
		assert.Equal(t, KindInitializeAccount, d.Kind)

		owner := make([]byte, 32)
		d = Classify(ix(solana.TokenProgramID, append([]byte{16}, owner...)))
		assert.Equal(t, KindInitializeAccount, d.Kind)

		d = Classify(ix(solana.TokenProgramID, append([]byte{18}, owner...)))
		assert.Equal(t, KindInitializeAccount, d.Kind)
	})

	t.Run("close account", func(t *testing.T) {
		d := Classify(ix(solana.TokenProgramID, []byte{9}))
		assert.Equal(t, KindCloseAccount, d.Kind)
	})

	t.Run("wrong lengths are opaque", func(t *testing.T) {
		for _, data := range [][]byte{
			{},
			append([]byte{3}, u64le(1)[:7]...), // transfer short one byte
			append([]byte{12}, u64le(1)...),    // checked missing decimals
			{1, 0},                             // initializeAccount with trailing byte
			{9, 0},                             // closeAccount with trailing byte
			append([]byte{16}, make([]byte, 31)...),
		} {
			d := Classify(ix(solana.TokenProgramID, data))
			assert.Equal(t, KindOpaque, d.Kind, "data %v", data)
		}
	})
}

func TestClassifyAssociatedToken(t *testing.T) {
	t.Run("empty data is associate", func(t *testing.T) {
		d := Classify(ix(solana.SPLAssociatedTokenAccountProgramID, nil))
		assert.Equal(t, ProgramAssociatedToken, d.Program)
		assert.Equal(t, KindAssociate, d.Kind)
	})

	t.Run("one byte create and createIdempotent", func(t *testing.T) {
		for _, b := range []byte{0, 1} {
			d := Classify(ix(solana.SPLAssociatedTokenAccountProgramID, []byte{b}))
			assert.Equal(t, KindAssociate, d.Kind)
		}
	})

	t.Run("other payloads are opaque", func(t *testing.T) {
		for _, data := range [][]byte{{2}, {0, 0}} {
			d := Classify(ix(solana.SPLAssociatedTokenAccountProgramID, data))
			assert.Equal(t, KindOpaque, d.Kind)
		}
	})
}

func TestClassifyStake(t *testing.T) {
	t.Run("delegate", func(t *testing.T) {
		d := Classify(ix(solana.StakeProgramID, u32le(2)))
		assert.Equal(t, ProgramStake, d.Program)
		assert.Equal(t, KindDelegate, d.Kind)
	})

	t.Run("deactivate", func(t *testing.T) {
		d := Classify(ix(solana.StakeProgramID, u32le(5)))
		assert.Equal(t, KindDeactivate, d.Kind)
	})

	t.Run("withdraw", func(t *testing.T) {
		data := append(u32le(4), u64le(3_000_000)...)
		d := Classify(ix(solana.StakeProgramID, data))
		assert.Equal(t, KindWithdraw, d.Kind)
		require.NotNil(t, d.Lamports)
		assert.Equal(t, uint64(3_000_000), *d.Lamports)
	})

	t.Run("trailing bytes are opaque", func(t *testing.T) {
		d := Classify(ix(solana.StakeProgramID, append(u32le(2), 0)))
		assert.Equal(t, KindOpaque, d.Kind)
	})

	t.Run("unknown discriminator is opaque", func(t *testing.T) {
		d := Classify(ix(solana.StakeProgramID, u32le(42)))
		assert.Equal(t, KindOpaque, d.Kind)
	})
}

func TestClassifyMemo(t *testing.T) {
	for _, program := range []solana.PublicKey{memoProgramIDSPL, memoProgramIDLegacy} {
		d := Classify(ix(program, []byte("invoice 42")))
		assert.Equal(t, ProgramMemo, d.Program)
		assert.Equal(t, KindMemo, d.Kind)
		assert.Equal(t, "invoice 42", d.Memo)
	}
}

func TestClassifyOtherPrograms(t *testing.T) {
	cases := []struct {
		program solana.PublicKey
		want    Program
	}{
		{solana.VoteProgramID, ProgramVote},
		{solana.BPFLoaderProgramID, ProgramBPFLoader},
		{solana.BPFLoaderUpgradeableProgramID, ProgramBPFUpgradeableLoader},
		{solana.MustPublicKeyFromBase58("JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB"), ProgramUnknown},
	}
	for _, tc := range cases {
		d := Classify(ix(tc.program, []byte{1, 2, 3}))
		assert.Equal(t, tc.want, d.Program)
		assert.Equal(t, KindOpaque, d.Kind)
	}
}
