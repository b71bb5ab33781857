package engine

import "github.com/ethereum/go-ethereum/metrics"

var (
	selfPayMeter   = metrics.NewRegisteredMeter("paymaster/precheck/selfpay", nil)
	sponsoredMeter = metrics.NewRegisteredMeter("paymaster/precheck/sponsored", nil)
	rejectedMeter  = metrics.NewRegisteredMeter("paymaster/precheck/rejected", nil)
	sigFailedMeter = metrics.NewRegisteredMeter("paymaster/precheck/sigfailed", nil)

	settleMeter         = metrics.NewRegisteredMeter("paymaster/settle/count", nil)
	settleRejectedMeter = metrics.NewRegisteredMeter("paymaster/settle/rejected", nil)
)
