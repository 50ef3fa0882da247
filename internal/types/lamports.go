// internal/types/lamports.go
package types

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// SOLMint is the native SOL mint address used by swap aggregators.
const SOLMint = "So11111111111111111111111111111111111111112"

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts SOL to lamports.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * LamportsPerSOL)
}
