package iiotest

import "fmt"

// Device names of an AD936x based radio.
const (
	PhyName = "ad9361-phy"
	RXName  = "cf-ad9361-lpc"
	TXName  = "cf-ad9361-dds-core-lpc"
)

// Pluto is a fake context shaped like an AD9361 radio with two RX and two
// TX complex channels.
type Pluto struct {
	*Context
	Phy *Device
	RX  *Device
	TX  *Device
}

// NewPluto returns a fake radio at 30.72 MSPS with the FIR filter disabled.
func NewPluto() *Pluto {
	c := NewContext("ip:192.168.2.1")
	c.DescV = "192.168.2.1 Linux (none) 5.10.0 PlutoSDR Rev.C (Z7010-AD9363A)"
	c.ContextAttr["hw_model"] = "Analog Devices PlutoSDR Rev.C (Z7010-AD9363A)"

	phy := c.AddDevice("iio:device0", PhyName)
	phy.Attr().
		Set("filter_fir_config", "FIR Rx: 0,0 Tx: 0,0").
		Set("tx_path_rates", "BBPLL:983040000 DAC:122880000 T2:122880000 T1:61440000 TF:30720000 TXSAMP:30720000").
		Set("rx_path_rates", "BBPLL:983040000 ADC:245760000 R2:122880000 R1:61440000 RF:30720000 RXSAMP:30720000")
	phy.Debug().Set("loopback", "0").Set("direct_reg_access", "0x0")

	rx0 := phy.AddChannel("voltage0", false)
	rx0.Attr().
		Set("sampling_frequency", "30720000").
		Set("hardwaregain", "71.000000 dB").
		Set("rf_bandwidth", "18000000").
		Set("gain_control_mode", "slow_attack")
	tx0 := phy.AddChannel("voltage0", true)
	tx0.Attr().
		Set("sampling_frequency", "30720000").
		Set("hardwaregain", "-10.000000 dB").
		Set("rf_bandwidth", "18000000")
	phy.AddChannel("altvoltage0", true).Attr().Set("frequency", "2400000000")
	phy.AddChannel("altvoltage1", true).Attr().Set("frequency", "2450000000")
	phy.AddChannel("out", false).Attr().Set("voltage_filter_fir_en", "0")

	rx := c.AddDevice("iio:device3", RXName)
	for i := 0; i < 4; i++ {
		ch := rx.AddScanElement(fmt.Sprintf("voltage%d", i), false, i, "le:S12/16>>0")
		ch.Attr().
			Set("sampling_frequency", "30720000").
			Set("sampling_frequency_available", "30720000 3840000")
	}

	tx := c.AddDevice("iio:device2", TXName)
	for i := 0; i < 4; i++ {
		ch := tx.AddScanElement(fmt.Sprintf("voltage%d", i), true, i, "le:S16/16>>0")
		ch.Attr().
			Set("sampling_frequency", "30720000").
			Set("sampling_frequency_available", "30720000 3840000")
	}
	for i := 0; i < 8; i++ {
		ch := tx.AddChannel(fmt.Sprintf("altvoltage%d", i), true)
		ch.Attr().
			Set("raw", "1").
			Set("frequency", "9279985").
			Set("scale", "0.000000").
			Set("phase", "90000")
	}

	return &Pluto{Context: c, Phy: phy, RX: rx, TX: tx}
}
