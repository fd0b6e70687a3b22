package indicator

import (
	"errors"
	"testing"

	"tradelab/internal/model"
)

func TestParseSpecs_Default(t *testing.T) {
	configs, err := ParseSpecs("")
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 5 {
		t.Fatalf("expected 5 default indicators, got %d", len(configs))
	}
	inds, err := BuildAll(configs)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"SMA_20", "SMA_50", "EMA_9", "EMA_21", "RSI_14"}
	for i, ind := range inds {
		if ind.Name() != want[i] {
			t.Errorf("indicator %d: name=%s, want %s", i, ind.Name(), want[i])
		}
	}
}

func TestParseSpecs_AllTypes(t *testing.T) {
	configs, err := ParseSpecs("sma:10, EMA:9@high, MACD:12:26:9, BB:20, BB:20:3, STOCH:14, WILLR:14, CCI:20, ATR:14, SMMA:7, LAST, LAST@open")
	if err != nil {
		t.Fatal(err)
	}
	inds, err := BuildAll(configs)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"SMA_10", "EMA_9_high", "MACD_12_26_9", "BBP_20_2", "BBP_20_3", "STOCH_14",
		"WILLR_14", "CCI_20", "ATR_14", "SMMA_7", "LAST", "LAST_open",
	}
	if len(inds) != len(want) {
		t.Fatalf("built %d indicators, want %d", len(inds), len(want))
	}
	for i, ind := range inds {
		if ind.Name() != want[i] {
			t.Errorf("indicator %d: name=%s, want %s", i, ind.Name(), want[i])
		}
	}
	if _, ok := inds[2].(Composite[model.Candle]); !ok {
		t.Error("MACD should be composite")
	}
	if _, ok := inds[0].(Incremental[model.Candle]); !ok {
		t.Error("SMA should be incremental")
	}
}

func TestValidateConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Type: "SMA", Periods: []int{20}}, true},
		{"unknown type", Config{Type: "VWAP", Periods: []int{20}}, false},
		{"zero period", Config{Type: "EMA", Periods: []int{0}}, false},
		{"missing period", Config{Type: "RSI"}, false},
		{"macd arity", Config{Type: "MACD", Periods: []int{12, 26}}, false},
		{"macd order", Config{Type: "MACD", Periods: []int{26, 12, 9}}, false},
		{"bad field", Config{Type: "SMA", Periods: []int{5}, Field: "vwap"}, false},
		{"field on atr", Config{Type: "ATR", Periods: []int{14}, Field: "close"}, false},
	}
	for _, tc := range cases {
		err := ValidateConfigs([]Config{tc.cfg})
		if (err == nil) != tc.ok {
			t.Errorf("%s: err=%v, want ok=%v", tc.name, err, tc.ok)
		}
	}

	err := ValidateConfigs([]Config{{Type: "VWAP", Periods: []int{1}}})
	if !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("expected ErrUnknownIndicator, got %v", err)
	}
	_, err = Build(Config{Type: "SMA", Periods: []int{5}, Field: "vwap"})
	if !errors.Is(err, model.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseSpecs_BadPeriod(t *testing.T) {
	if _, err := ParseSpecs("SMA:abc"); err == nil {
		t.Error("expected error for non-numeric period")
	}
	if _, err := ParseSpecs("SMA:-3"); err == nil {
		t.Error("expected error for negative period")
	}
}

func TestNames_CarryNonDefaultField(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{NewSMA(3, model.Close).Name(), "SMA_3"},
		{NewSMA(3, model.High).Name(), "SMA_3_high"},
		{NewSMA(3, model.Scalar).Name(), "SMA_3"},
		{NewEMA(9, model.Open).Name(), "EMA_9_open"},
		{NewRSI(14, model.Volume).Name(), "RSI_14_volume"},
		{NewMACD(12, 26, 9, model.Typical).Name(), "MACD_12_26_9_typical"},
		{NewCCI(20, model.Typical).Name(), "CCI_20"},
		{NewCCI(20, model.Close).Name(), "CCI_20_close"},
		{NewBollingerB(20, 2, model.Low).Name(), "BBP_20_2_low"},
		{NewStochastic(14, model.High, model.Low, model.Close).Name(), "STOCH_14"},
		{NewStochastic(14, model.Close, model.Close, model.Close).Name(), "STOCH_14_close_close_close"},
		{NewWilliamsR(14, model.Scalar, model.Scalar, model.Scalar).Name(), "WILLR_14"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("name=%s, want %s", tc.got, tc.want)
		}
	}

	custom := model.NewField("mid", func(c model.Candle) float64 { return (c.High + c.Low) / 2 })
	if got := NewSMA(5, custom).Name(); got != "SMA_5_mid" {
		t.Errorf("custom field name=%s", got)
	}
}
