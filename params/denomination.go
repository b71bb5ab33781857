package params

// These are the multipliers for credit denominations. One credit is backed
// by one unit of the native coin in escrow.
// Example: To get the wei value of an amount in 'gwei', use
//
//	new(uint256.Int).Mul(value, uint256.NewInt(params.GWei))
const (
	Wei    = 1
	GWei   = 1e9
	Credit = 1e18
)

// Denominations maps the unit suffixes accepted by the tooling to their
// multipliers.
var Denominations = map[string]uint64{
	"wei":    Wei,
	"gwei":   GWei,
	"credit": Credit,
}
