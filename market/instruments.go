package market

// InstrumentMeta describes a perpetual contract. ContractSuffix is appended
// when mapping the internal symbol to the exchange wire instrument
// (BTC-USDT -> BTC-USDT-SWAP).
type InstrumentMeta struct {
	Name            string
	BaseCurrency    string
	QuoteCurrency   string
	ContractSuffix  string
	TickSize        float64
	MinTradeSize    float64
	MaxLeverage     float64
	MaintMarginRate float64
}

var Instruments = map[string]InstrumentMeta{
	"BTC-USDT": {
		Name:            "BTC-USDT",
		BaseCurrency:    "BTC",
		QuoteCurrency:   "USDT",
		ContractSuffix:  "-SWAP",
		TickSize:        0.1,
		MinTradeSize:    0.001,
		MaxLeverage:     20,
		MaintMarginRate: 0.005,
	},
	"ETH-USDT": {
		Name:            "ETH-USDT",
		BaseCurrency:    "ETH",
		QuoteCurrency:   "USDT",
		ContractSuffix:  "-SWAP",
		TickSize:        0.01,
		MinTradeSize:    0.01,
		MaxLeverage:     20,
		MaintMarginRate: 0.01,
	},
}
