package mempool

import "github.com/h3tag-core/consensus/wire"

// Standard script template opcodes, the same values the teacher's
// txscript package operates on (OP_0/OP_1 push the empty/true element,
// OP_DATA_20/OP_DATA_32 push a fixed-length element, OP_DUP/OP_HASH160/
// OP_EQUALVERIFY/OP_CHECKSIG/OP_EQUAL are the classic P2PKH/P2SH
// template opcodes).
const (
	opZero        = 0x00
	opData20      = 0x14
	opData32      = 0x20
	opOne         = 0x51
	opDup         = 0x76
	opEqual       = 0x87
	opEqualVerify = 0x88
	opHash160     = 0xa9
	opCheckSig    = 0xac
)

// classifyScript recognises the handful of standard script templates the
// mempool reports on (spec §4.1 step 3 "script recognition"), the
// generalisation of the teacher's txscript opcode-template matching
// (txscript/engine.go's opcode execution loop) into a direct classifier:
// this module has no UTXO-spend script interpreter of its own (Non-goal),
// so it only needs to recognise a script's shape, not execute it. Returns
// ok=false for anything that doesn't match a known template — this is
// informational (surfaced via GetRawMempool), not an admission gate; see
// recognisedScript for that.
func classifyScript(script []byte) (scriptType wire.ScriptType, ok bool) {
	switch {
	case len(script) == 25 &&
		script[0] == opDup && script[1] == opHash160 && script[2] == opData20 &&
		script[23] == opEqualVerify && script[24] == opCheckSig:
		return wire.ScriptP2PKH, true

	case len(script) == 23 &&
		script[0] == opHash160 && script[1] == opData20 && script[22] == opEqual:
		return wire.ScriptP2SH, true

	case len(script) == 22 && script[0] == opZero && script[1] == opData20:
		return wire.ScriptP2WPKH, true

	case len(script) == 34 && script[0] == opZero && script[1] == opData32:
		return wire.ScriptP2WSH, true

	case len(script) == 34 && script[0] == opOne && script[1] == opData32:
		return wire.ScriptP2TR, true

	default:
		return "", false
	}
}
